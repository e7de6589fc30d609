// Package utils holds the path rules shared by the config, the CLI and the
// private state mirrorbox keeps on disk (lock file, drive index, logs).
package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PrivateDirPerm is used for every directory mirrorbox creates for itself
const PrivateDirPerm = 0o700

var ErrEmptyPath = errors.New("path cannot be empty")

// ResolvePath expands $VARS and a leading "~" then returns a clean absolute
// path. Config values and flags go through it before they are compared.
func ResolvePath(path string) (string, error) {
	path = os.ExpandEnv(strings.TrimSpace(path))
	if path == "" {
		return "", ErrEmptyPath
	}

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", path, err)
		}
		path = filepath.Join(home, path[1:])
	}

	return filepath.Abs(path)
}

// EnsureParent creates the directory holding path
func EnsureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), PrivateDirPerm)
}

// IsWithin reports whether path is root or lies below it. Both must be
// resolved with ResolvePath first.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
