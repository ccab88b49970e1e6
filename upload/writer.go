package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ChunkWriter appends a byte stream to a file at a verified offset. Callers
// must hold the per-path lock for absPath; the writer itself only does I/O.
type ChunkWriter struct {
	bufSize int
}

func NewChunkWriter() *ChunkWriter {
	return &ChunkWriter{bufSize: 2 * 1024 * 1024}
}

// AppendAt writes the body starting at offset, creating the file and its
// parent directories on first touch. The copy loop checks ctx and the alive
// callback at every buffer boundary so an aborted session or dropped request
// stops promptly instead of draining the whole body.
func (w *ChunkWriter) AppendAt(ctx context.Context, absPath string, offset int64, body io.Reader, alive func() bool) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(absPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	buf := make([]byte, w.bufSize)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}
		if alive != nil && !alive() {
			return written, context.Canceled
		}

		nr, readErr := body.Read(buf)
		if nr > 0 {
			nw, writeErr := f.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return written, readErr
		}
	}

	if err := f.Sync(); err != nil {
		return written, fmt.Errorf("sync after append: %w", err)
	}
	return written, nil
}
