package agent

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
)

// scan walks root and sends every path below it, parents before children.
// Unreadable entries are logged and skipped.
func scan(ctx context.Context, root string, skip func(path string) bool, out chan<- string) (int, error) {
	sent := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("initial scan skip", "path", path, "error", err)
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		if skip != nil && skip(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		select {
		case out <- path:
			sent++
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return sent, err
}
