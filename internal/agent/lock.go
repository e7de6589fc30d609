package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/mirrorbox/internal/utils"
)

const lockFileName = "mirrorbox.lock"

var ErrStateDirLocked = errors.New("state dir locked by another process")

// stateLock keeps a second agent from sharing a state dir
type stateLock struct {
	flock *flock.Flock
}

func newStateLock(stateDir string) *stateLock {
	return &stateLock{flock: flock.New(filepath.Join(stateDir, lockFileName))}
}

func (l *stateLock) Lock() error {
	if err := utils.EnsureParent(l.flock.Path()); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock state dir: %w", err)
	}
	if !locked {
		return ErrStateDirLocked
	}
	return nil
}

func (l *stateLock) Unlock() error {
	// never remove a lock file held by someone else
	if !l.flock.Locked() {
		return nil
	}

	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock state dir: %w", err)
	}
	return os.Remove(l.flock.Path())
}
