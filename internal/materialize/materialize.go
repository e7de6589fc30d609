// Package materialize makes sure the remote folders above a local path exist
// before something is placed into them.
package materialize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/mirrorbox/internal/idcache"
	"github.com/openmined/mirrorbox/internal/metrics"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
)

// Materializer resolves remote folder ids for local directories, creating
// folders that do not exist yet.
//
// Every folder is resolved in the same order: identity cache, then a remote
// lookup by unique id, then a remote create. Concurrent calls may race to
// create the same new folder; both creates go through and the cache keeps
// whichever id it saw last. Deduplication is left to the provider lookup.
type Materializer struct {
	mapper     *pathid.Mapper
	cache      *idcache.Cache
	dir        remote.Directory
	rootParent *remote.ID
}

type Option func(*Materializer)

// WithRootParent places the remote root label folder inside an existing
// provider folder instead of the provider's top level.
func WithRootParent(id remote.ID) Option {
	return func(m *Materializer) {
		m.rootParent = remote.Ref(id)
	}
}

func New(mapper *pathid.Mapper, cache *idcache.Cache, dir remote.Directory, opts ...Option) *Materializer {
	m := &Materializer{
		mapper: mapper,
		cache:  cache,
		dir:    dir,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureRoot resolves the folder standing for the sync root itself
func (m *Materializer) EnsureRoot(ctx context.Context) (remote.ID, error) {
	return m.resolve(ctx, m.mapper.RootRemotePath(), m.rootParent)
}

// EnsurePath returns the remote id of the folder that should contain
// localPath, creating every missing folder from the root down. localPath
// itself is never created.
func (m *Materializer) EnsurePath(ctx context.Context, localPath string) (remote.ID, error) {
	segments, err := m.mapper.Segments(localPath)
	if err != nil {
		return "", err
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: sync root has no parent", pathid.ErrInvalidPath)
	}
	return m.walk(ctx, segments[:len(segments)-1])
}

// EnsureDir is EnsurePath for a directory that should exist remotely as well.
// It returns the id of localPath's own folder.
func (m *Materializer) EnsureDir(ctx context.Context, localPath string) (remote.ID, error) {
	segments, err := m.mapper.Segments(localPath)
	if err != nil {
		return "", err
	}
	return m.walk(ctx, segments)
}

func (m *Materializer) walk(ctx context.Context, dirs []string) (remote.ID, error) {
	current := m.mapper.RootRemotePath()
	parentID, err := m.resolve(ctx, current, m.rootParent)
	if err != nil {
		return "", err
	}

	for _, segment := range dirs {
		current = current.Join(segment)
		id, err := m.resolve(ctx, current, remote.Ref(parentID))
		if err != nil {
			return "", err
		}
		parentID = id
	}

	return parentID, nil
}

// resolve finds or creates the folder at remotePath. Nothing is cached when it fails.
func (m *Materializer) resolve(ctx context.Context, remotePath pathid.RemotePath, parent *remote.ID) (remote.ID, error) {
	uid := pathid.Encode(remotePath)

	if id, ok := m.cache.Get(uid); ok {
		metrics.IdentityCacheLookups.WithLabelValues("hit").Inc()
		return id, nil
	}
	metrics.IdentityCacheLookups.WithLabelValues("miss").Inc()

	match, err := m.dir.FindByIdentity(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("find %q: %w", remotePath.String(), err)
	}

	if match.Found() {
		if match.Ambiguous() {
			metrics.AmbiguousIdentities.Inc()
			slog.Warn("multiple remote folders share an identity",
				"path", remotePath.String(),
				"matches", match.Count,
				"using", match.ID,
				"error", remote.ErrAmbiguousIdentity,
			)
		}
		m.cache.Set(uid, match.ID)
		return match.ID, nil
	}

	id, err := m.dir.CreateDirectory(ctx, remotePath.Name(), parent, uid)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", remotePath.String(), err)
	}

	slog.Info("remote folder created", "path", remotePath.String(), "id", id)
	m.cache.Set(uid, id)
	return id, nil
}
