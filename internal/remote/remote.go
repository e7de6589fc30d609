// Package remote defines the capability a storage provider offers to the
// mirror, independent of any concrete provider.
package remote

import (
	"context"
	"errors"

	"github.com/openmined/mirrorbox/internal/pathid"
)

// MetadataKey is the metadata/app property carrying an object's unique id
const MetadataKey = "mirror_id"

var (
	// ErrRemoteUnavailable wraps every failed provider call (network, auth, quota)
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrAmbiguousIdentity flags more than one live object carrying the same unique id
	ErrAmbiguousIdentity = errors.New("ambiguous identity")
	ErrUnknownProvider   = errors.New("unknown provider")
)

// ID is the provider assigned identifier of a remote object
type ID string

// Match is the result of an identity lookup. Count is the number of live
// objects that carried the unique id; ID is the one the provider picked.
type Match struct {
	ID    ID
	Count int
}

func (m Match) Found() bool {
	return m.Count > 0
}

func (m Match) Ambiguous() bool {
	return m.Count > 1
}

// Directory is a hierarchical remote store addressable by provider ids.
//
// A nil parent means the provider's own top level. Implementations must be
// safe for concurrent use.
type Directory interface {
	// FindByIdentity looks up a non-trashed object tagged with id. When
	// several exist the provider picks one deterministically.
	FindByIdentity(ctx context.Context, id pathid.UniqueID) (Match, error)
	// CreateDirectory creates a folder named name under parent, tagged with id
	CreateDirectory(ctx context.Context, name string, parent *ID, id pathid.UniqueID) (ID, error)
	// UploadFile creates a file from localPath under parent, tagged with id
	UploadFile(ctx context.Context, localPath string, parent *ID, id pathid.UniqueID) (ID, error)
}

// Ref returns a pointer to id, or nil when id is empty.
func Ref(id ID) *ID {
	if id == "" {
		return nil
	}
	return &id
}
