package filter

import (
	"bufio"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile holds extra gitignore style lines at the top of the sync root
const IgnoreFile = ".mirrorignore"

var defaultIgnoreLines = []string{
	IgnoreFile,
	// partial writes
	"*.tmp",
	"*.part",
	"*.crdownload",
	"*.swp",
	// vcs
	".git",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	".Trash-*",
}

// IgnoreList excludes paths before filter rules are considered
type IgnoreList struct {
	baseDir string
	extra   []string
	ignore  *gitignore.GitIgnore
}

// NewIgnoreList takes extra lines from configuration, applied after the defaults
func NewIgnoreList(baseDir string, extra ...string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir, extra: extra}
}

// Load compiles the defaults plus the ignore file, if any
func (l *IgnoreList) Load() {
	ignorePath := filepath.Join(l.baseDir, IgnoreFile)
	lines := append([]string{}, defaultIgnoreLines...)
	lines = append(lines, l.extra...)

	fileLines, err := readIgnoreFile(ignorePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		slog.Warn("failed to read ignore file", "path", ignorePath, "error", err)
	default:
		slog.Info("loaded ignore file", "path", ignorePath, "rules", len(fileLines))
	}
	lines = append(lines, fileLines...)

	l.ignore = gitignore.CompileIgnoreLines(lines...)
}

// readIgnoreFile returns the rule lines, skipping blanks and # comments.
// Lines read before an error are still returned.
func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// ShouldIgnore matches path relative to the base dir. Paths outside of it are
// never ignored.
func (l *IgnoreList) ShouldIgnore(path string) bool {
	if l.ignore == nil {
		return false
	}

	rel := path
	if filepath.IsAbs(path) {
		var err error
		rel, err = filepath.Rel(l.baseDir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false
		}
	}
	return l.ignore.MatchesPath(filepath.ToSlash(rel))
}
