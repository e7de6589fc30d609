package materialize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/mirrorbox/internal/idcache"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
	"github.com/openmined/mirrorbox/internal/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	m      *Materializer
	rec    *remotetest.Recorder
	cache  *idcache.Cache
	clock  *clockwork.FakeClock
	rootID remote.ID
}

func uid(segments ...string) pathid.UniqueID {
	return pathid.Encode(append(pathid.RemotePath{"Backup"}, segments...))
}

// newFixture mirrors /data to "Backup", with the Backup folder already present remotely
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	mapper, err := pathid.NewMapper("/data", "Backup")
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	cache, err := idcache.New(idcache.DefaultSize, idcache.WithClock(clock))
	require.NoError(t, err)

	rec := remotetest.NewRecorder()
	rootID := rec.Seed("Backup", "", uid())

	return &fixture{
		m:      New(mapper, cache, rec, opts...),
		rec:    rec,
		cache:  cache,
		clock:  clock,
		rootID: rootID,
	}
}

func TestEnsurePath_CreatesAncestorsParentFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	parentID, err := f.m.EnsurePath(ctx, "/data/2024/01/img.jpg")
	require.NoError(t, err)

	mkdirs := f.rec.Calls(remotetest.OpMkdir)
	require.Len(t, mkdirs, 2)

	assert.Equal(t, "2024", mkdirs[0].Name)
	assert.Equal(t, f.rootID, mkdirs[0].Parent)
	assert.Equal(t, uid("2024"), mkdirs[0].UID)

	assert.Equal(t, "01", mkdirs[1].Name)
	assert.Equal(t, mkdirs[0].Result, mkdirs[1].Parent)
	assert.Equal(t, uid("2024", "01"), mkdirs[1].UID)

	assert.Equal(t, mkdirs[1].Result, parentID)

	// the leaf is never looked up nor created
	for _, c := range f.rec.Calls() {
		assert.NotEqual(t, uid("2024", "01", "img.jpg"), c.UID)
	}
}

func TestEnsurePath_SecondCallHitsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.m.EnsurePath(ctx, "/data/2024/01/img.jpg")
	require.NoError(t, err)
	f.rec.Reset()

	second, err := f.m.EnsurePath(ctx, "/data/2024/01/img2.jpg")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, f.rec.Calls(), "all ancestors should come from the cache")
}

func TestEnsurePath_RootLevelFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	parentID, err := f.m.EnsurePath(ctx, "/data/file.txt")
	require.NoError(t, err)
	assert.Equal(t, f.rootID, parentID)
	assert.Zero(t, f.rec.Count(remotetest.OpMkdir))
}

func TestEnsurePath_InvalidPaths(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.EnsurePath(ctx, "/data")
	assert.ErrorIs(t, err, pathid.ErrInvalidPath)

	_, err = f.m.EnsurePath(ctx, "/elsewhere/file.txt")
	assert.ErrorIs(t, err, pathid.ErrNotUnderRoot)

	assert.Empty(t, f.rec.Calls())
}

func TestEnsurePath_FindsFoldersFromPreviousRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	yearID := f.rec.Seed("2024", f.rootID, uid("2024"))
	monthID := f.rec.Seed("01", yearID, uid("2024", "01"))

	parentID, err := f.m.EnsurePath(ctx, "/data/2024/01/img.jpg")
	require.NoError(t, err)

	assert.Equal(t, monthID, parentID)
	assert.Zero(t, f.rec.Count(remotetest.OpMkdir))
	assert.Equal(t, 3, f.rec.Count(remotetest.OpFind))

	cached, ok := f.cache.Get(uid("2024"))
	require.True(t, ok)
	assert.Equal(t, yearID, cached)
}

func TestEnsurePath_FailureKeepsResolvedAncestors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boom := fmt.Errorf("%w: quota exceeded", remote.ErrRemoteUnavailable)
	f.rec.FailWith = func(c remotetest.Call) error {
		if c.Op == remotetest.OpMkdir && c.Name == "01" {
			return boom
		}
		return nil
	}

	_, err := f.m.EnsurePath(ctx, "/data/2024/01/img.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrRemoteUnavailable)
	assert.ErrorIs(t, err, boom)

	_, ok := f.cache.Get(uid("2024"))
	assert.True(t, ok, "ancestor resolved before the failure stays cached")
	_, ok = f.cache.Get(uid("2024", "01"))
	assert.False(t, ok, "failing folder must not be cached")

	f.rec.FailWith = nil
	f.rec.Reset()

	_, err = f.m.EnsurePath(ctx, "/data/2024/01/img.jpg")
	require.NoError(t, err)

	mkdirs := f.rec.Calls(remotetest.OpMkdir)
	require.Len(t, mkdirs, 1)
	assert.Equal(t, "01", mkdirs[0].Name)
}

func TestEnsurePath_LookupErrorAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.rec.FailWith = func(c remotetest.Call) error {
		if c.Op == remotetest.OpFind {
			return remote.ErrRemoteUnavailable
		}
		return nil
	}

	_, err := f.m.EnsurePath(ctx, "/data/2024/img.jpg")
	assert.ErrorIs(t, err, remote.ErrRemoteUnavailable)
	assert.Zero(t, f.rec.Count(remotetest.OpMkdir), "no create after a failed lookup")
}

func TestEnsurePath_AmbiguousIdentityIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.rec.Seed("2024", f.rootID, uid("2024"))
	f.rec.Seed("2024", f.rootID, uid("2024"))

	parentID, err := f.m.EnsurePath(ctx, "/data/2024/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, first, parentID)
	assert.Zero(t, f.rec.Count(remotetest.OpMkdir))
}

func TestEnsurePath_ExpiredCacheLooksUpAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.m.EnsurePath(ctx, "/data/2024/img.jpg")
	require.NoError(t, err)
	f.rec.Reset()

	f.clock.Advance(idcache.DefaultTTL + time.Second)

	_, err = f.m.EnsurePath(ctx, "/data/2024/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, 2, f.rec.Count(remotetest.OpFind), "root and 2024 are looked up again")
	assert.Zero(t, f.rec.Count(remotetest.OpMkdir), "folders found remotely are not recreated")
}

func TestEnsureRoot_CreatesUnderRootParent(t *testing.T) {
	ctx := context.Background()

	mapper, err := pathid.NewMapper("/data", "Camera")
	require.NoError(t, err)
	cache, err := idcache.New(idcache.DefaultSize)
	require.NoError(t, err)
	rec := remotetest.NewRecorder()

	m := New(mapper, cache, rec, WithRootParent("drive-folder"))

	rootID, err := m.EnsureRoot(ctx)
	require.NoError(t, err)

	mkdirs := rec.Calls(remotetest.OpMkdir)
	require.Len(t, mkdirs, 1)
	assert.Equal(t, "Camera", mkdirs[0].Name)
	assert.Equal(t, remote.ID("drive-folder"), mkdirs[0].Parent)
	assert.Equal(t, pathid.Encode(pathid.RemotePath{"Camera"}), mkdirs[0].UID)

	again, err := m.EnsureRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, rootID, again)
	assert.Equal(t, 1, rec.Count(remotetest.OpMkdir))
}

func TestEnsureDir_CreatesLeafToo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.m.EnsureDir(ctx, "/data/2024/01")
	require.NoError(t, err)

	mkdirs := f.rec.Calls(remotetest.OpMkdir)
	require.Len(t, mkdirs, 2)
	assert.Equal(t, mkdirs[1].Result, id)

	rootID, err := f.m.EnsureDir(ctx, "/data")
	require.NoError(t, err)
	assert.Equal(t, f.rootID, rootID)
}

func TestEnsurePath_ConcurrentSharedAncestors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	parents := make(chan remote.ID, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.m.EnsurePath(ctx, fmt.Sprintf("/data/2024/01/img-%d.jpg", i))
			if err != nil {
				errs <- err
				return
			}
			parents <- id
		}()
	}
	wg.Wait()
	close(errs)
	close(parents)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	// duplicates are tolerated, but every returned id must be a "01" folder
	for id := range parents {
		obj, ok := f.rec.Object(id)
		require.True(t, ok)
		assert.Equal(t, uid("2024", "01"), obj.UID)
	}
	assert.GreaterOrEqual(t, f.rec.Count(remotetest.OpMkdir), 2)
}

func TestEnsurePath_ContextIsPassedThrough(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.rec.FailWith = func(remotetest.Call) error { return ctx.Err() }
	_, err := f.m.EnsurePath(ctx, "/data/a/b.txt")
	assert.True(t, errors.Is(err, context.Canceled))
}
