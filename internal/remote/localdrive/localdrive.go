// Package localdrive is a remote.Directory kept on a local (or mounted) disk.
// Objects form a folder tree recorded in a sqlite index; file contents live
// in a flat blob directory keyed by object id.
package localdrive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/mirrorbox/internal/db"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
	"github.com/openmined/mirrorbox/internal/utils"
)

const (
	indexFile = "index.db"
	blobsDir  = "blobs"
)

// schema steps, applied in order by db.OpenIndex
var migrations = []string{`
CREATE TABLE objects (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    parent_id TEXT,
    sync_id TEXT NOT NULL,
    is_dir INTEGER NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    trashed INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL -- RFC3339
);

CREATE INDEX idx_objects_sync_id ON objects(sync_id);
CREATE INDEX idx_objects_parent_id ON objects(parent_id);
`}

var (
	ErrParentNotFound = errors.New("parent folder not found")
	ErrNotAFolder     = errors.New("parent is not a folder")
	ErrObjectNotFound = errors.New("object not found")
)

// Object is a row of the index
type Object struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	ParentID  sql.NullString `db:"parent_id"`
	SyncID    string         `db:"sync_id"`
	IsDir     bool           `db:"is_dir"`
	Size      int64          `db:"size"`
	Trashed   bool           `db:"trashed"`
	CreatedAt string         `db:"created_at"`
}

type Drive struct {
	root    string
	blobDir string
	db      *sqlx.DB
}

// Open opens (or creates) a drive rooted at dir
func Open(dir string) (*Drive, error) {
	root, err := utils.ResolvePath(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve drive dir: %w", err)
	}

	blobDir := filepath.Join(root, blobsDir)
	if err := os.MkdirAll(blobDir, utils.PrivateDirPerm); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}

	database, err := db.OpenIndex(filepath.Join(root, indexFile), migrations)
	if err != nil {
		return nil, fmt.Errorf("open drive index: %w", err)
	}

	slog.Info("localdrive open", "root", root)
	return &Drive{root: root, blobDir: blobDir, db: database}, nil
}

func (d *Drive) Close() error {
	return d.db.Close()
}

func (d *Drive) FindByIdentity(ctx context.Context, id pathid.UniqueID) (remote.Match, error) {
	var ids []string
	err := d.db.SelectContext(ctx, &ids,
		"SELECT id FROM objects WHERE sync_id = ? AND trashed = 0 ORDER BY seq", string(id))
	if err != nil {
		return remote.Match{}, unavailable("find by identity", err)
	}
	if len(ids) == 0 {
		return remote.Match{}, nil
	}
	return remote.Match{ID: remote.ID(ids[0]), Count: len(ids)}, nil
}

func (d *Drive) CreateDirectory(ctx context.Context, name string, parent *remote.ID, id pathid.UniqueID) (remote.ID, error) {
	if err := d.checkParent(ctx, parent); err != nil {
		return "", unavailable("create directory", err)
	}

	obj := d.newObject(name, parent, id, true)
	if err := d.insert(ctx, obj); err != nil {
		return "", unavailable("create directory", err)
	}

	slog.Debug("localdrive mkdir", "name", name, "id", obj.ID)
	return remote.ID(obj.ID), nil
}

// UploadFile stores the file contents. A live file with the same unique id
// under the same parent is replaced in place and keeps its id.
func (d *Drive) UploadFile(ctx context.Context, localPath string, parent *remote.ID, id pathid.UniqueID) (remote.ID, error) {
	if err := d.checkParent(ctx, parent); err != nil {
		return "", unavailable("upload file", err)
	}

	existing, err := d.findFile(ctx, parent, id)
	if err != nil {
		return "", unavailable("upload file", err)
	}

	obj := existing
	if obj == nil {
		obj = d.newObject(filepath.Base(localPath), parent, id, false)
	}

	size, err := d.writeBlob(localPath, obj.ID)
	if err != nil {
		return "", unavailable("upload file", err)
	}
	obj.Size = size

	if existing != nil {
		_, err = d.db.ExecContext(ctx, "UPDATE objects SET size = ? WHERE id = ?", obj.Size, obj.ID)
	} else {
		err = d.insert(ctx, obj)
	}
	if err != nil {
		return "", unavailable("upload file", err)
	}

	return remote.ID(obj.ID), nil
}

// Get returns the object with the given id, trashed or not
func (d *Drive) Get(ctx context.Context, id remote.ID) (*Object, error) {
	var obj Object
	err := d.db.GetContext(ctx, &obj, "SELECT id, name, parent_id, sync_id, is_dir, size, trashed, created_at FROM objects WHERE id = ?", string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, err
	}
	return &obj, nil
}

// Children lists the live objects under parent, oldest first
func (d *Drive) Children(ctx context.Context, parent *remote.ID) ([]Object, error) {
	var objs []Object
	var err error
	if parent == nil {
		err = d.db.SelectContext(ctx, &objs, "SELECT id, name, parent_id, sync_id, is_dir, size, trashed, created_at FROM objects WHERE parent_id IS NULL AND trashed = 0 ORDER BY seq")
	} else {
		err = d.db.SelectContext(ctx, &objs, "SELECT id, name, parent_id, sync_id, is_dir, size, trashed, created_at FROM objects WHERE parent_id = ? AND trashed = 0 ORDER BY seq", string(*parent))
	}
	return objs, err
}

// Trash hides an object from identity lookups without deleting its content
func (d *Drive) Trash(ctx context.Context, id remote.ID) error {
	res, err := d.db.ExecContext(ctx, "UPDATE objects SET trashed = 1 WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrObjectNotFound
	}
	return nil
}

// BlobPath is where the content of file id is stored
func (d *Drive) BlobPath(id remote.ID) string {
	return filepath.Join(d.blobDir, string(id))
}

func (d *Drive) newObject(name string, parent *remote.ID, id pathid.UniqueID, isDir bool) *Object {
	obj := &Object{
		ID:        uuid.NewString(),
		Name:      name,
		SyncID:    string(id),
		IsDir:     isDir,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if parent != nil {
		obj.ParentID = sql.NullString{String: string(*parent), Valid: true}
	}
	return obj
}

func (d *Drive) insert(ctx context.Context, obj *Object) error {
	_, err := d.db.NamedExecContext(ctx, `
		INSERT INTO objects (id, name, parent_id, sync_id, is_dir, size, trashed, created_at)
		VALUES (:id, :name, :parent_id, :sync_id, :is_dir, :size, :trashed, :created_at)`, obj)
	return err
}

func (d *Drive) checkParent(ctx context.Context, parent *remote.ID) error {
	if parent == nil {
		return nil
	}
	obj, err := d.Get(ctx, *parent)
	if errors.Is(err, ErrObjectNotFound) || (obj != nil && obj.Trashed) {
		return fmt.Errorf("%w: %s", ErrParentNotFound, *parent)
	} else if err != nil {
		return err
	}
	if !obj.IsDir {
		return fmt.Errorf("%w: %s", ErrNotAFolder, *parent)
	}
	return nil
}

func (d *Drive) findFile(ctx context.Context, parent *remote.ID, id pathid.UniqueID) (*Object, error) {
	var obj Object
	var err error
	query := "SELECT id, name, parent_id, sync_id, is_dir, size, trashed, created_at FROM objects WHERE sync_id = ? AND is_dir = 0 AND trashed = 0"
	if parent == nil {
		err = d.db.GetContext(ctx, &obj, query+" AND parent_id IS NULL ORDER BY seq LIMIT 1", string(id))
	} else {
		err = d.db.GetContext(ctx, &obj, query+" AND parent_id = ? ORDER BY seq LIMIT 1", string(id), string(*parent))
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &obj, nil
}

func (d *Drive) writeBlob(localPath string, objectID string) (int64, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(d.blobDir, objectID+".*.tmp")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}

	if err := os.Rename(tmp.Name(), filepath.Join(d.blobDir, objectID)); err != nil {
		return 0, err
	}
	return size, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: localdrive %s: %w", remote.ErrRemoteUnavailable, op, err)
}

var _ remote.Directory = (*Drive)(nil)
