package treeop

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"cabinet/pathguard"
	"cabinet/tool"
	"cabinet/types"
)

// Zip streams a compressed archive of the given paths. All inputs are
// resolved and stat'ed before the first byte is written, so bad requests
// still fail with a clean status. Once streaming starts, a failing item is
// logged and skipped; the archive is always finalized.
func (e *Engine) Zip(ctx context.Context, owner string, paths []string, w io.Writer) error {
	root := e.rootFor(owner)

	type zipItem struct {
		abs   string
		rel   string
		isDir bool
	}
	items := make([]zipItem, 0, len(paths))
	for _, p := range paths {
		src, err := pathguard.Resolve(root, p)
		if err != nil {
			return err
		}
		fi, err := os.Lstat(src.Abs)
		if err != nil {
			return types.ErrNotFound
		}
		items = append(items, zipItem{abs: src.Abs, rel: src.Rel, isDir: fi.IsDir()})
	}
	if len(items) == 0 {
		return types.ErrNotFound
	}

	zw := zip.NewWriter(w)
	defer zw.Close()

	b := e.newBudget(nil)
	entries := 0
	used := make(map[string]int)
	uniqueTop := func(name string) string {
		n := used[name]
		used[name] = n + 1
		if n == 0 {
			return name
		}
		ext := path.Ext(name)
		return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
	}

	addFile := func(abs, zipPath string, fi os.FileInfo) {
		if entries >= e.clamps.MaxZipEntries {
			b.stop(fmt.Sprintf("zip entry budget exceeded (%d)", e.clamps.MaxZipEntries))
			return
		}
		header := &zip.FileHeader{
			Name:     zipPath,
			Method:   zip.Deflate,
			Modified: time.Now(),
		}
		if fi != nil {
			header.Modified = fi.ModTime()
		}
		wr, err := zw.CreateHeader(header)
		if err != nil {
			tool.DefaultLogger.Warnf("[Zip] Header for %s failed: %v", zipPath, err)
			return
		}
		f, err := os.Open(abs)
		if err != nil {
			tool.DefaultLogger.Warnf("[Zip] Open %s failed: %v", zipPath, err)
			return
		}
		if _, err := tool.CopyWithContext(ctx, wr, f); err != nil {
			tool.DefaultLogger.Warnf("[Zip] Copy %s failed: %v", zipPath, err)
		}
		_ = f.Close()
		entries++
	}

	for _, item := range items {
		if !b.ok(ctx) {
			break
		}
		top := uniqueTop(path.Base(item.rel))
		if !item.isDir {
			fi, _ := os.Lstat(item.abs)
			addFile(item.abs, top, fi)
			continue
		}
		e.zipTree(ctx, item.abs, top, b, addFile)
	}

	if b.reason != "" {
		tool.DefaultLogger.Warnf("[Zip] Archive for %s truncated: %s", owner, b.reason)
	}
	return nil
}

// zipTree walks one directory depth-first off an explicit stack, handing
// regular files to add. Symlinks are skipped so archive walks cannot cycle.
func (e *Engine) zipTree(ctx context.Context, rootAbs, topName string, b *budget, add func(abs, zipPath string, fi os.FileInfo)) {
	stack := []copyItem{{src: rootAbs, dst: topName, depth: 0}}
	visited := make(map[string]struct{})

	for len(stack) > 0 {
		if !b.ok(ctx) {
			return
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		fi, err := os.Lstat(item.src)
		if err != nil {
			tool.DefaultLogger.Warnf("[Zip] Stat %s failed: %v", item.dst, err)
			continue
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			tool.DefaultLogger.Warnf("[Zip] Symlink %s skipped", item.dst)
			continue
		}
		if !fi.IsDir() {
			if !b.spendFile() {
				return
			}
			add(item.src, item.dst, fi)
			continue
		}

		if _, seen := visited[item.src]; seen {
			continue
		}
		visited[item.src] = struct{}{}
		if item.depth >= b.maxDepth {
			b.stop(fmt.Sprintf("depth budget exceeded (%d)", b.maxDepth))
			return
		}
		dirEntries, err := os.ReadDir(item.src)
		if err != nil {
			tool.DefaultLogger.Warnf("[Zip] Read %s failed: %v", item.dst, err)
			continue
		}
		for _, entry := range dirEntries {
			stack = append(stack, copyItem{
				src:   filepath.Join(item.src, entry.Name()),
				dst:   item.dst + "/" + entry.Name(),
				depth: item.depth + 1,
			})
		}
	}
}
