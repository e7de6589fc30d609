// Package dispatch turns created paths into remote uploads.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/mirrorbox/internal/filter"
	"github.com/openmined/mirrorbox/internal/materialize"
	"github.com/openmined/mirrorbox/internal/metrics"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
	"golang.org/x/sync/errgroup"
)

// Outcome is what happened to a single path
type Outcome string

const (
	Uploaded  Outcome = metrics.OutcomeUploaded
	DirSynced Outcome = metrics.OutcomeDirSynced
	Skipped   Outcome = metrics.OutcomeSkipped
	Filtered  Outcome = metrics.OutcomeFiltered
	Ignored   Outcome = metrics.OutcomeIgnored
	Failed    Outcome = metrics.OutcomeFailed
)

// Dispatcher handles "created" notifications one path at a time: ignore list,
// filter rules, ancestor materialization, then the upload. Files are not
// cached; every created file is uploaded.
type Dispatcher struct {
	mapper       *pathid.Mapper
	materializer *materialize.Materializer
	dir          remote.Directory
	filter       *filter.Filter
	ignore       *filter.IgnoreList
	eagerDirs    bool
	workers      int
}

type Option func(*Dispatcher)

func WithFilter(f *filter.Filter) Option {
	return func(d *Dispatcher) {
		d.filter = f
	}
}

func WithIgnoreList(l *filter.IgnoreList) Option {
	return func(d *Dispatcher) {
		d.ignore = l
	}
}

// WithEagerDirs creates remote folders as soon as a local directory appears,
// instead of waiting for the first file inside it
func WithEagerDirs(eager bool) Option {
	return func(d *Dispatcher) {
		d.eagerDirs = eager
	}
}

// WithWorkers sets how many paths Run handles in parallel
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func New(mapper *pathid.Mapper, m *materialize.Materializer, dir remote.Directory, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		mapper:       mapper,
		materializer: m,
		dir:          dir,
		filter:       filter.New(nil),
		workers:      1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run handles paths until the channel is closed or ctx is done
func (d *Dispatcher) Run(ctx context.Context, paths <-chan string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for {
		select {
		case <-gctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case path, ok := <-paths:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				d.Handle(gctx, path)
				return nil
			})
		}
	}
}

// Handle processes one created path. Errors are logged and counted, never returned.
func (d *Dispatcher) Handle(ctx context.Context, path string) Outcome {
	outcome := d.handle(ctx, path)
	metrics.EventsTotal.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (d *Dispatcher) handle(ctx context.Context, path string) Outcome {
	uid, err := d.mapper.UniqueID(path)
	if err != nil {
		slog.Warn("sync drop", "reason", "unrepresentable path", "path", path, "error", err)
		return Failed
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("sync skip", "reason", "gone", "path", path)
			return Skipped
		}
		slog.Warn("sync drop", "reason", "stat", "path", path, "error", err)
		return Failed
	}

	if d.ignore != nil && d.ignore.ShouldIgnore(path) {
		slog.Debug("sync skip", "reason", "ignored", "path", path)
		return Ignored
	}

	if !d.filter.Passes(filepath.Base(path)) {
		slog.Debug("sync skip", "reason", "filtered", "path", path)
		return Filtered
	}

	switch {
	case info.IsDir():
		return d.handleDir(ctx, path)
	case info.Mode().IsRegular():
		return d.handleFile(ctx, path, uid, info.Size())
	default:
		slog.Debug("sync skip", "reason", "not a regular file", "path", path, "mode", info.Mode().String())
		return Skipped
	}
}

func (d *Dispatcher) handleDir(ctx context.Context, path string) Outcome {
	if !d.eagerDirs {
		slog.Debug("sync skip", "reason", "directory", "path", path)
		return Skipped
	}

	id, err := d.materializer.EnsureDir(ctx, path)
	if err != nil {
		slog.Error("sync dir failed", "path", path, "error", err)
		return Failed
	}

	slog.Info("sync dir", "path", path, "id", id)
	return DirSynced
}

func (d *Dispatcher) handleFile(ctx context.Context, path string, uid pathid.UniqueID, size int64) Outcome {
	start := time.Now()

	parentID, err := d.materializer.EnsurePath(ctx, path)
	if err != nil {
		slog.Error("sync upload failed", "stage", "materialize", "path", path, "error", err)
		return Failed
	}

	id, err := d.dir.UploadFile(ctx, path, remote.Ref(parentID), uid)
	if err != nil {
		slog.Error("sync upload failed", "stage", "upload", "path", path, "error", err)
		return Failed
	}

	slog.Info("sync upload",
		"path", path,
		"id", id,
		"parent", parentID,
		"size", humanize.Bytes(uint64(size)),
		"took", time.Since(start),
	)
	return Uploaded
}
