// Package db opens the sqlite indexes mirrorbox keeps on disk. An index has
// exactly one writer, the agent holding the state dir lock, so it runs on a
// single connection and never waits on itself.
package db

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/mirrorbox/internal/utils"
)

// Memory opens a throwaway index
const Memory = ":memory:"

// per connection settings. The index can be rebuilt from the remote, so
// synchronous=NORMAL trades the last commits on power loss for fewer fsyncs.
const indexPragmas = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=NORMAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
`

// OpenIndex opens or creates the index at path and brings its schema up to
// date. migrations[i] moves the schema from user_version i to i+1; applied
// steps are skipped on the next open.
func OpenIndex(path string, migrations []string) (*sqlx.DB, error) {
	dsn := Memory
	if path != Memory {
		if err := utils.EnsureParent(path); err != nil {
			return nil, fmt.Errorf("index dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", path)
	}

	slog.Debug("index open", "driver", driverID, "path", path)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(indexPragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("index pragmas: %w", err)
	}

	if err := migrate(db, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SchemaVersion is the number of migrations applied to db
func SchemaVersion(db *sqlx.DB) (int, error) {
	var version int
	err := db.Get(&version, "PRAGMA user_version")
	return version, err
}

func migrate(db *sqlx.DB, migrations []string) error {
	version, err := SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("index schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("index schema version %d is newer than this build (%d)", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("index migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("index migration %d: %w", i+1, err)
		}
		// user_version takes no bind parameters
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("index migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("index migration %d: %w", i+1, err)
		}
		slog.Debug("index migrated", "version", i+1)
	}
	return nil
}
