// Package remotetest provides an in-memory remote.Directory that records
// every call, for tests.
package remotetest

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
)

const (
	OpFind   = "find"
	OpMkdir  = "mkdir"
	OpUpload = "upload"
)

type Call struct {
	Op     string
	Name   string
	Parent remote.ID // empty for the provider top level
	UID    pathid.UniqueID
	Result remote.ID
}

type Object struct {
	ID     remote.ID
	Name   string
	Parent remote.ID
	UID    pathid.UniqueID
	IsDir  bool
}

// Recorder is safe for concurrent use
type Recorder struct {
	mu      sync.Mutex
	seq     int
	objects map[remote.ID]Object
	byUID   map[pathid.UniqueID][]remote.ID
	calls   []Call

	// FailWith, when set, is asked before every call; a non-nil error fails it
	FailWith func(c Call) error
}

func NewRecorder() *Recorder {
	return &Recorder{
		objects: map[remote.ID]Object{},
		byUID:   map[pathid.UniqueID][]remote.ID{},
	}
}

// Seed adds a folder that exists before the test starts, without recording a call
func (r *Recorder) Seed(name string, parent remote.ID, uid pathid.UniqueID) remote.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(name, parent, uid, true)
}

func (r *Recorder) FindByIdentity(_ context.Context, uid pathid.UniqueID) (remote.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Op: OpFind, UID: uid}
	if err := r.fail(call); err != nil {
		return remote.Match{}, err
	}

	ids := r.byUID[uid]
	if len(ids) == 0 {
		r.calls = append(r.calls, call)
		return remote.Match{}, nil
	}
	call.Result = ids[0]
	r.calls = append(r.calls, call)
	return remote.Match{ID: ids[0], Count: len(ids)}, nil
}

func (r *Recorder) CreateDirectory(_ context.Context, name string, parent *remote.ID, uid pathid.UniqueID) (remote.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Op: OpMkdir, Name: name, Parent: deref(parent), UID: uid}
	if err := r.fail(call); err != nil {
		return "", err
	}

	call.Result = r.add(name, call.Parent, uid, true)
	r.calls = append(r.calls, call)
	return call.Result, nil
}

func (r *Recorder) UploadFile(_ context.Context, localPath string, parent *remote.ID, uid pathid.UniqueID) (remote.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Op: OpUpload, Name: filepath.Base(localPath), Parent: deref(parent), UID: uid}
	if err := r.fail(call); err != nil {
		return "", err
	}

	call.Result = r.add(call.Name, call.Parent, uid, false)
	r.calls = append(r.calls, call)
	return call.Result, nil
}

// Calls returns the recorded calls, optionally only those of the given ops
func (r *Recorder) Calls(ops ...string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Call
	for _, c := range r.calls {
		if len(ops) == 0 || slices.Contains(ops, c.Op) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) Count(op string) int {
	return len(r.Calls(op))
}

// Reset forgets recorded calls but keeps objects
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) Object(id remote.ID) (Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	return obj, ok
}

func (r *Recorder) add(name string, parent remote.ID, uid pathid.UniqueID, isDir bool) remote.ID {
	r.seq++
	id := remote.ID(fmt.Sprintf("obj-%d", r.seq))
	r.objects[id] = Object{ID: id, Name: name, Parent: parent, UID: uid, IsDir: isDir}
	r.byUID[uid] = append(r.byUID[uid], id)
	return id
}

func (r *Recorder) fail(c Call) error {
	if r.FailWith == nil {
		return nil
	}
	if err := r.FailWith(c); err != nil {
		r.calls = append(r.calls, c)
		return err
	}
	return nil
}

func deref(id *remote.ID) remote.ID {
	if id == nil {
		return ""
	}
	return *id
}

var _ remote.Directory = (*Recorder)(nil)
