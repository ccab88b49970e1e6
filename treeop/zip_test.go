package treeop

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"cabinet/types"
)

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		out[f.Name] = string(content)
	}
	return out
}

func TestZipStreamsTree(t *testing.T) {
	engine, _, root := testEngine(t, Clamps{})
	write(t, root, "docs/a.txt", "alpha")
	write(t, root, "docs/sub/b.txt", "beta")
	write(t, root, "single.txt", "solo")

	var buf bytes.Buffer
	if err := engine.Zip(context.Background(), "alice", []string{"docs", "single.txt"}, &buf); err != nil {
		t.Fatalf("zip: %v", err)
	}

	got := readArchive(t, buf.Bytes())
	want := map[string]string{
		"docs/a.txt":     "alpha",
		"docs/sub/b.txt": "beta",
		"single.txt":     "solo",
	}
	if len(got) != len(want) {
		t.Fatalf("entries = %v", got)
	}
	for name, content := range want {
		if got[name] != content {
			t.Fatalf("entry %s = %q, want %q", name, got[name], content)
		}
	}
}

func TestZipDuplicateTopNamesAreUnique(t *testing.T) {
	engine, _, root := testEngine(t, Clamps{})
	write(t, root, "x/report.txt", "one")
	write(t, root, "y/report.txt", "two")

	var buf bytes.Buffer
	if err := engine.Zip(context.Background(), "alice", []string{"x/report.txt", "y/report.txt"}, &buf); err != nil {
		t.Fatalf("zip: %v", err)
	}
	got := readArchive(t, buf.Bytes())
	if got["report.txt"] != "one" || got["report (1).txt"] != "two" {
		t.Fatalf("entries = %v", got)
	}
}

func TestZipUnreadableItemIsSkipped(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits not enforced for root")
	}
	engine, _, root := testEngine(t, Clamps{})
	write(t, root, "docs/ok.txt", "fine")
	write(t, root, "docs/secret.txt", "blocked")
	if err := os.Chmod(filepath.Join(root, "docs", "secret.txt"), 0o000); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := engine.Zip(context.Background(), "alice", []string{"docs"}, &buf); err != nil {
		t.Fatalf("zip: %v", err)
	}
	got := readArchive(t, buf.Bytes())
	if got["docs/ok.txt"] != "fine" {
		t.Fatalf("archive lost the readable file: %v", got)
	}
}

func TestZipRejectsBadInputBeforeStreaming(t *testing.T) {
	engine, _, _ := testEngine(t, Clamps{})

	var buf bytes.Buffer
	if err := engine.Zip(context.Background(), "alice", []string{"../escape"}, &buf); !errors.Is(err, types.ErrPathTraversal) {
		t.Fatalf("zip traversal = %v, want ErrPathTraversal", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("bytes were streamed before validation")
	}
	if err := engine.Zip(context.Background(), "alice", []string{"missing"}, &buf); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("zip missing = %v, want ErrNotFound", err)
	}
}

func TestZipEntryBudgetStillFinalizes(t *testing.T) {
	engine, _, root := testEngine(t, Clamps{MaxDepth: 16, MaxFiles: 1000, MaxDuration: 10 * time.Second, MaxZipEntries: 2})
	write(t, root, "docs/a.txt", "a")
	write(t, root, "docs/b.txt", "b")
	write(t, root, "docs/c.txt", "c")

	var buf bytes.Buffer
	if err := engine.Zip(context.Background(), "alice", []string{"docs"}, &buf); err != nil {
		t.Fatalf("zip: %v", err)
	}
	got := readArchive(t, buf.Bytes()) // a truncated but valid archive
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
}
