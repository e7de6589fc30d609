package remote

import (
	"context"
	"time"

	"github.com/openmined/mirrorbox/internal/metrics"
	"github.com/openmined/mirrorbox/internal/pathid"
)

type instrumented struct {
	next Directory
}

// Instrument records call counts and durations of every operation on dir
func Instrument(dir Directory) Directory {
	return &instrumented{next: dir}
}

func (d *instrumented) FindByIdentity(ctx context.Context, id pathid.UniqueID) (m Match, err error) {
	defer func(start time.Time) { metrics.ObserveRemoteOp("find", start, err) }(time.Now())
	return d.next.FindByIdentity(ctx, id)
}

func (d *instrumented) CreateDirectory(ctx context.Context, name string, parent *ID, id pathid.UniqueID) (created ID, err error) {
	defer func(start time.Time) { metrics.ObserveRemoteOp("mkdir", start, err) }(time.Now())
	return d.next.CreateDirectory(ctx, name, parent, id)
}

func (d *instrumented) UploadFile(ctx context.Context, localPath string, parent *ID, id pathid.UniqueID) (created ID, err error) {
	defer func(start time.Time) { metrics.ObserveRemoteOp("upload", start, err) }(time.Now())
	return d.next.UploadFile(ctx, localPath, parent, id)
}
