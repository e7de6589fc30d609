package localdrive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/mirrorbox/internal/db"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDrive(t *testing.T) *Drive {
	t.Helper()
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.jpg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDrive_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	d := openDrive(t)

	rootUID := pathid.Encode(pathid.RemotePath{"Backup"})
	childUID := pathid.Encode(pathid.RemotePath{"Backup", "2024"})

	m, err := d.FindByIdentity(ctx, rootUID)
	require.NoError(t, err)
	assert.False(t, m.Found())

	rootID, err := d.CreateDirectory(ctx, "Backup", nil, rootUID)
	require.NoError(t, err)

	childID, err := d.CreateDirectory(ctx, "2024", remote.Ref(rootID), childUID)
	require.NoError(t, err)

	m, err = d.FindByIdentity(ctx, childUID)
	require.NoError(t, err)
	assert.True(t, m.Found())
	assert.False(t, m.Ambiguous())
	assert.Equal(t, childID, m.ID)

	children, err := d.Children(ctx, remote.Ref(rootID))
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "2024", children[0].Name)
	assert.True(t, children[0].IsDir)
}

func TestDrive_FindByIdentity_AmbiguousPicksOldest(t *testing.T) {
	ctx := context.Background()
	d := openDrive(t)
	uid := pathid.Encode(pathid.RemotePath{"Backup"})

	first, err := d.CreateDirectory(ctx, "Backup", nil, uid)
	require.NoError(t, err)
	_, err = d.CreateDirectory(ctx, "Backup", nil, uid)
	require.NoError(t, err)

	m, err := d.FindByIdentity(ctx, uid)
	require.NoError(t, err)
	assert.True(t, m.Ambiguous())
	assert.Equal(t, 2, m.Count)
	assert.Equal(t, first, m.ID)
}

func TestDrive_FindByIdentity_SkipsTrashed(t *testing.T) {
	ctx := context.Background()
	d := openDrive(t)
	uid := pathid.Encode(pathid.RemotePath{"Backup"})

	id, err := d.CreateDirectory(ctx, "Backup", nil, uid)
	require.NoError(t, err)
	require.NoError(t, d.Trash(ctx, id))

	m, err := d.FindByIdentity(ctx, uid)
	require.NoError(t, err)
	assert.False(t, m.Found())

	assert.ErrorIs(t, d.Trash(ctx, "missing"), ErrObjectNotFound)
}

func TestDrive_CreateDirectory_BadParent(t *testing.T) {
	ctx := context.Background()
	d := openDrive(t)
	uid := pathid.Encode(pathid.RemotePath{"Backup", "x"})

	_, err := d.CreateDirectory(ctx, "x", remote.Ref("missing"), uid)
	assert.ErrorIs(t, err, remote.ErrRemoteUnavailable)
	assert.ErrorIs(t, err, ErrParentNotFound)

	fileID, err := d.UploadFile(ctx, writeFile(t, "data"), nil, uid)
	require.NoError(t, err)
	_, err = d.CreateDirectory(ctx, "y", remote.Ref(fileID), uid)
	assert.ErrorIs(t, err, ErrNotAFolder)
}

func TestDrive_UploadFile_ReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	d := openDrive(t)

	dirID, err := d.CreateDirectory(ctx, "Backup", nil, pathid.Encode(pathid.RemotePath{"Backup"}))
	require.NoError(t, err)
	fileUID := pathid.Encode(pathid.RemotePath{"Backup", "img.jpg"})

	first, err := d.UploadFile(ctx, writeFile(t, "v1"), remote.Ref(dirID), fileUID)
	require.NoError(t, err)

	data, err := os.ReadFile(d.BlobPath(first))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	second, err := d.UploadFile(ctx, writeFile(t, "version2"), remote.Ref(dirID), fileUID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	data, err = os.ReadFile(d.BlobPath(second))
	require.NoError(t, err)
	assert.Equal(t, "version2", string(data))

	obj, err := d.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(8), obj.Size)
	assert.Equal(t, "img.jpg", obj.Name)
	assert.Equal(t, string(dirID), obj.ParentID.String)
}

func TestDrive_UploadFile_MissingLocalFile(t *testing.T) {
	ctx := context.Background()
	d := openDrive(t)

	_, err := d.UploadFile(ctx, filepath.Join(t.TempDir(), "nope"), nil, "id")
	assert.ErrorIs(t, err, remote.ErrRemoteUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDrive_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	uid := pathid.Encode(pathid.RemotePath{"Backup"})

	d, err := Open(dir)
	require.NoError(t, err)
	id, err := d.CreateDirectory(ctx, "Backup", nil, uid)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(dir)
	require.NoError(t, err)
	defer d.Close()

	m, err := d.FindByIdentity(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)

	version, err := db.SchemaVersion(d.db)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}
