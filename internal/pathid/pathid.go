// Package pathid maps local paths under a sync root to their remote path and
// to the unique id stored as metadata on the matching remote object.
package pathid

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const remoteSep = "/"

var (
	ErrNotUnderRoot     = errors.New("path is not under the sync root")
	ErrInvalidPath      = errors.New("invalid path")
	ErrIdentityEncoding = errors.New("path is not representable as text")
)

// RemotePath is the segment list of a path on the remote side. The first
// segment is always the remote root label.
type RemotePath []string

func (p RemotePath) String() string {
	return strings.Join(p, remoteSep)
}

// Name is the last segment
func (p RemotePath) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// IsRoot reports whether p is the remote root label itself
func (p RemotePath) IsRoot() bool {
	return len(p) == 1
}

// Parent returns the containing path. The root has no parent.
func (p RemotePath) Parent() (RemotePath, error) {
	if len(p) < 2 {
		return nil, fmt.Errorf("%w: %q has no parent", ErrInvalidPath, p.String())
	}
	return p[: len(p)-1 : len(p)-1], nil
}

// Join returns a new path with seg appended. p is never modified.
func (p RemotePath) Join(seg string) RemotePath {
	joined := make(RemotePath, len(p), len(p)+1)
	copy(joined, p)
	return append(joined, seg)
}

func (p RemotePath) Equal(other RemotePath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// UniqueID is the reversible encoding of a RemotePath. Equal paths always
// produce equal ids and distinct paths never collide.
type UniqueID string

// Encode is the one encoding used both when tagging a remote object and when
// looking it up later.
func Encode(p RemotePath) UniqueID {
	return UniqueID(base64.StdEncoding.EncodeToString([]byte(p.String())))
}

// Decode reverses Encode
func Decode(id UniqueID) (RemotePath, error) {
	raw, err := base64.StdEncoding.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %q: %w", ErrIdentityEncoding, id, err)
	}
	if len(raw) == 0 || !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: %q does not decode to a path", ErrIdentityEncoding, id)
	}
	return RemotePath(strings.Split(string(raw), remoteSep)), nil
}

// Mapper replaces the sync root prefix of a local path with the remote root label.
type Mapper struct {
	root  string
	label string
}

func NewMapper(syncRoot string, label string) (*Mapper, error) {
	if syncRoot == "" || !filepath.IsAbs(syncRoot) {
		return nil, fmt.Errorf("%w: sync root %q must be absolute", ErrInvalidPath, syncRoot)
	}
	if label == "" || strings.Contains(label, remoteSep) || label == "." || label == ".." {
		return nil, fmt.Errorf("%w: remote label %q must be a single path segment", ErrInvalidPath, label)
	}
	if !utf8.ValidString(label) {
		return nil, fmt.Errorf("%w: remote label", ErrIdentityEncoding)
	}
	return &Mapper{root: filepath.Clean(syncRoot), label: label}, nil
}

func (m *Mapper) Root() string {
	return m.root
}

func (m *Mapper) Label() string {
	return m.label
}

// RootRemotePath is the remote path of the sync root itself
func (m *Mapper) RootRemotePath() RemotePath {
	return RemotePath{m.label}
}

// Segments returns the segments of localPath after the sync root. The sync
// root itself yields an empty slice.
func (m *Mapper) Segments(localPath string) ([]string, error) {
	if !filepath.IsAbs(localPath) {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrNotUnderRoot, localPath)
	}

	rel, err := filepath.Rel(m.root, filepath.Clean(localPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrNotUnderRoot, localPath, err)
	}
	if rel == "." {
		return []string{}, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %q", ErrNotUnderRoot, localPath)
	}
	if !utf8.ValidString(rel) {
		return nil, fmt.Errorf("%w: %q", ErrIdentityEncoding, localPath)
	}

	return strings.Split(rel, string(filepath.Separator)), nil
}

// RemotePath maps localPath to its path under the remote root label.
func (m *Mapper) RemotePath(localPath string) (RemotePath, error) {
	segments, err := m.Segments(localPath)
	if err != nil {
		return nil, err
	}
	return append(m.RootRemotePath(), segments...), nil
}

// ParentRemotePath is the remote path of the directory containing localPath.
// A file directly under the sync root has the root as parent; the sync root
// itself has none.
func (m *Mapper) ParentRemotePath(localPath string) (RemotePath, error) {
	remotePath, err := m.RemotePath(localPath)
	if err != nil {
		return nil, err
	}
	return remotePath.Parent()
}

// UniqueID maps localPath straight to the id of its remote path
func (m *Mapper) UniqueID(localPath string) (UniqueID, error) {
	remotePath, err := m.RemotePath(localPath)
	if err != nil {
		return "", err
	}
	return Encode(remotePath), nil
}
