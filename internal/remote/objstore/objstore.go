// Package objstore maps the folder tree onto an S3 compatible bucket.
//
// A remote id is an object key. Folders are zero byte marker objects whose key
// ends in "/"; files live at "<folder key><name>". Every object carries its
// unique id as user metadata. Because unique ids are reversible, a lookup
// decodes the id back to its key instead of scanning the bucket.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
)

// metaKey is the user metadata key. S3 metadata travels as HTTP headers, so
// the dash form is used instead of remote.MetadataKey.
const metaKey = "mirror-id"

var ErrNoBucket = errors.New("objstore: bucket missing")

type Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	// Prefix scopes every key, e.g. "mirrors/"
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// UnderParent folds a remote parent folder into the key prefix. Keys are
// derived from the remote path on lookup, so folders created below a parent
// are only found again when the parent is part of the prefix.
func (c Config) UnderParent(parent string) Config {
	parent = strings.Trim(parent, "/")
	if parent == "" {
		return c
	}
	if prefix := strings.Trim(c.Prefix, "/"); prefix != "" {
		parent = prefix + "/" + parent
	}
	c.Prefix = parent
	return c
}

// objectClient is the slice of an S3 SDK the store needs
type objectClient interface {
	// StatObject returns the user metadata of key, or ok=false when it does not exist
	StatObject(ctx context.Context, key string) (meta map[string]string, ok bool, err error)
	PutObject(ctx context.Context, key string, body io.Reader, size int64, meta map[string]string) error
}

type Store struct {
	client objectClient
	prefix string
}

func newStore(client objectClient, prefix string) *Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{client: client, prefix: prefix}
}

// FindByIdentity checks the folder marker and the plain object for the
// decoded path. Both carrying the id counts as two matches; the folder wins.
func (s *Store) FindByIdentity(ctx context.Context, id pathid.UniqueID) (remote.Match, error) {
	remotePath, err := pathid.Decode(id)
	if err != nil {
		return remote.Match{}, err
	}

	base := s.prefix + remotePath.String()
	var match remote.Match
	for _, key := range []string{base + "/", base} {
		meta, ok, err := s.client.StatObject(ctx, key)
		if err != nil {
			return remote.Match{}, fmt.Errorf("%w: objstore stat %s: %w", remote.ErrRemoteUnavailable, key, err)
		}
		if !ok || metaValue(meta) != string(id) {
			continue
		}
		if match.Count == 0 {
			match.ID = remote.ID(key)
		}
		match.Count++
	}
	return match, nil
}

func (s *Store) CreateDirectory(ctx context.Context, name string, parent *remote.ID, id pathid.UniqueID) (remote.ID, error) {
	key := s.childKey(parent, name) + "/"
	if err := s.client.PutObject(ctx, key, strings.NewReader(""), 0, map[string]string{metaKey: string(id)}); err != nil {
		return "", fmt.Errorf("%w: objstore put %s: %w", remote.ErrRemoteUnavailable, key, err)
	}
	slog.Debug("objstore mkdir", "key", key)
	return remote.ID(key), nil
}

// UploadFile writes the file under its parent folder, overwriting any
// previous version at the same key.
func (s *Store) UploadFile(ctx context.Context, localPath string, parent *remote.ID, id pathid.UniqueID) (remote.ID, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: objstore open: %w", remote.ErrRemoteUnavailable, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: objstore stat: %w", remote.ErrRemoteUnavailable, err)
	}

	key := s.childKey(parent, filepath.Base(localPath))
	if err := s.client.PutObject(ctx, key, file, info.Size(), map[string]string{metaKey: string(id)}); err != nil {
		return "", fmt.Errorf("%w: objstore put %s: %w", remote.ErrRemoteUnavailable, key, err)
	}

	slog.Debug("objstore upload", "key", key, "size", humanize.Bytes(uint64(info.Size())))
	return remote.ID(key), nil
}

// Prefix is the key prefix every object lives under, "" or ending in "/"
func (s *Store) Prefix() string { return s.prefix }

func (s *Store) childKey(parent *remote.ID, name string) string {
	if parent == nil {
		return s.prefix + name
	}
	return strings.TrimSuffix(string(*parent), "/") + "/" + name
}

// metaValue finds the id regardless of how the SDK cased the header name
func metaValue(meta map[string]string) string {
	for k, v := range meta {
		if strings.EqualFold(k, metaKey) {
			return v
		}
	}
	return ""
}

var _ remote.Directory = (*Store)(nil)
