package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/mirrorbox/internal/filter"
	"github.com/openmined/mirrorbox/internal/idcache"
	"github.com/openmined/mirrorbox/internal/materialize"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
	"github.com/openmined/mirrorbox/internal/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root   string
	rec    *remotetest.Recorder
	rootID remote.ID
	mapper *pathid.Mapper
	m      *materialize.Materializer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	mapper, err := pathid.NewMapper(root, "Backup")
	require.NoError(t, err)

	cache, err := idcache.New(idcache.DefaultSize)
	require.NoError(t, err)

	rec := remotetest.NewRecorder()
	rootID := rec.Seed("Backup", "", pathid.Encode(pathid.RemotePath{"Backup"}))

	return &fixture{
		root:   root,
		rec:    rec,
		rootID: rootID,
		mapper: mapper,
		m:      materialize.New(mapper, cache, rec),
	}
}

func (f *fixture) dispatcher(opts ...Option) *Dispatcher {
	return New(f.mapper, f.m, f.rec, opts...)
}

func (f *fixture) writeFile(t *testing.T, rel string) string {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("content of "+rel), 0o644))
	return path
}

func TestHandle_UploadScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.dispatcher()

	path := f.writeFile(t, "2024/01/img.jpg")

	assert.Equal(t, Uploaded, d.Handle(ctx, path))

	mkdirs := f.rec.Calls(remotetest.OpMkdir)
	require.Len(t, mkdirs, 2)
	assert.Equal(t, "2024", mkdirs[0].Name)
	assert.Equal(t, "01", mkdirs[1].Name)

	uploads := f.rec.Calls(remotetest.OpUpload)
	require.Len(t, uploads, 1)
	assert.Equal(t, "img.jpg", uploads[0].Name)
	assert.Equal(t, mkdirs[1].Result, uploads[0].Parent)
	assert.Equal(t, pathid.Encode(pathid.RemotePath{"Backup", "2024", "01", "img.jpg"}), uploads[0].UID)

	// replaying the same event creates no folders and uploads once more
	f.rec.Reset()
	assert.Equal(t, Uploaded, d.Handle(ctx, path))
	assert.Zero(t, f.rec.Count(remotetest.OpMkdir))
	assert.Equal(t, 1, f.rec.Count(remotetest.OpUpload))
}

func TestHandle_RootLevelFile(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()

	path := f.writeFile(t, "notes.txt")
	assert.Equal(t, Uploaded, d.Handle(context.Background(), path))

	uploads := f.rec.Calls(remotetest.OpUpload)
	require.Len(t, uploads, 1)
	assert.Equal(t, f.rootID, uploads[0].Parent)
}

func TestHandle_Filtered(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(WithFilter(filter.New([]string{`\.jpg$`, "glob:*.png"})))

	tests := []struct {
		rel  string
		want Outcome
	}{
		{"a/photo.jpg", Uploaded},
		{"a/shot.png", Uploaded},
		{"a/notes.txt", Filtered},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Handle(context.Background(), f.writeFile(t, tt.rel)))
		})
	}
	assert.Equal(t, 2, f.rec.Count(remotetest.OpUpload))
}

func TestHandle_Ignored(t *testing.T) {
	f := newFixture(t)
	ignore := filter.NewIgnoreList(f.root)
	ignore.Load()
	d := f.dispatcher(WithIgnoreList(ignore))

	assert.Equal(t, Ignored, d.Handle(context.Background(), f.writeFile(t, "2024/.DS_Store")))
	assert.Equal(t, Ignored, d.Handle(context.Background(), f.writeFile(t, "2024/big.iso.part")))
	assert.Empty(t, f.rec.Calls())
}

func TestHandle_DirectoryIsLazyByDefault(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()

	dir := filepath.Join(f.root, "2024", "02")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	assert.Equal(t, Skipped, d.Handle(context.Background(), dir))
	assert.Empty(t, f.rec.Calls())
}

func TestHandle_EagerDirectory(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(WithEagerDirs(true))

	dir := filepath.Join(f.root, "2024", "02")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	assert.Equal(t, DirSynced, d.Handle(context.Background(), dir))

	mkdirs := f.rec.Calls(remotetest.OpMkdir)
	require.Len(t, mkdirs, 2)
	assert.Equal(t, "02", mkdirs[1].Name)
	assert.Zero(t, f.rec.Count(remotetest.OpUpload))
}

func TestHandle_DropsBadPaths(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()

	assert.Equal(t, Failed, d.Handle(context.Background(), filepath.Join(t.TempDir(), "outside.txt")))
	assert.Equal(t, Skipped, d.Handle(context.Background(), filepath.Join(f.root, "vanished.txt")))
	assert.Empty(t, f.rec.Calls())
}

func TestHandle_RemoteFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()

	f.rec.FailWith = func(c remotetest.Call) error {
		if c.Op == remotetest.OpUpload {
			return fmt.Errorf("%w: 503", remote.ErrRemoteUnavailable)
		}
		return nil
	}
	assert.Equal(t, Failed, d.Handle(context.Background(), f.writeFile(t, "a/b.txt")))

	f.rec.Reset()
	f.rec.FailWith = func(c remotetest.Call) error {
		if c.Op == remotetest.OpMkdir {
			return errors.New("quota")
		}
		return nil
	}
	assert.Equal(t, Failed, d.Handle(context.Background(), f.writeFile(t, "c/d.txt")))
	assert.Zero(t, f.rec.Count(remotetest.OpUpload), "no upload once materialization failed")
}

func TestRun_WorkersDrainChannel(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(WithWorkers(4))

	const n = 20
	paths := make(chan string, n)
	for i := range n {
		paths <- f.writeFile(t, fmt.Sprintf("batch/%02d/file-%02d.bin", i%5, i))
	}
	close(paths)

	require.NoError(t, d.Run(context.Background(), paths))
	assert.Equal(t, n, f.rec.Count(remotetest.OpUpload))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Run(ctx, make(chan string))
	assert.ErrorIs(t, err, context.Canceled)
}
