// Package agent wires the mirror together: provider, identity cache,
// materializer, dispatcher and filesystem watcher.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/mirrorbox/internal/config"
	"github.com/openmined/mirrorbox/internal/dispatch"
	"github.com/openmined/mirrorbox/internal/filter"
	"github.com/openmined/mirrorbox/internal/idcache"
	"github.com/openmined/mirrorbox/internal/materialize"
	"github.com/openmined/mirrorbox/internal/metrics"
	"github.com/openmined/mirrorbox/internal/pathid"
	"github.com/openmined/mirrorbox/internal/remote"
	"github.com/openmined/mirrorbox/internal/watch"
	"golang.org/x/sync/errgroup"
)

const pathBufferSize = 256

var ErrWatcherClosed = errors.New("file watcher closed unexpectedly")

type Agent struct {
	config       *config.Config
	lock         *stateLock
	dir          remote.Directory
	closeDir     func() error
	mapper       *pathid.Mapper
	materializer *materialize.Materializer
	ignore       *filter.IgnoreList
	dispatcher   *dispatch.Dispatcher
	watcher      *watch.FileWatcher
}

// New builds an agent for a validated config
func New(ctx context.Context, cfg *config.Config) (*Agent, error) {
	dir, closeDir, err := NewDirectory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote: %w", err)
	}

	a, err := newWithDirectory(cfg, dir)
	if err != nil {
		closeDir()
		return nil, err
	}
	a.closeDir = closeDir
	return a, nil
}

func newWithDirectory(cfg *config.Config, dir remote.Directory) (*Agent, error) {
	mapper, err := pathid.NewMapper(cfg.SyncRoot, cfg.RemoteLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to map sync root: %w", err)
	}

	cache, err := idcache.New(cfg.Cache.Size, idcache.WithDefaultTTL(cfg.Cache.TTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create identity cache: %w", err)
	}

	dir = remote.Instrument(dir)

	m := materialize.New(mapper, cache, dir, materializeOptions(cfg)...)

	ignore := filter.NewIgnoreList(cfg.SyncRoot, cfg.Ignore...)
	ignore.Load()

	rules := filter.New(cfg.Filters)
	if rules.Len() < len(cfg.Filters) {
		slog.Warn("some filter rules are unusable", "configured", len(cfg.Filters), "usable", rules.Len())
	}

	d := dispatch.New(mapper, m, dir,
		dispatch.WithFilter(rules),
		dispatch.WithIgnoreList(ignore),
		dispatch.WithEagerDirs(cfg.EagerDirs),
		dispatch.WithWorkers(cfg.Workers),
	)

	w := watch.NewFileWatcher(cfg.SyncRoot,
		watch.WithDebounce(cfg.Debounce),
		watch.WithFilter(ignore.ShouldIgnore),
	)

	return &Agent{
		config:       cfg,
		lock:         newStateLock(cfg.StateDir),
		dir:          dir,
		closeDir:     func() error { return nil },
		mapper:       mapper,
		materializer: m,
		ignore:       ignore,
		dispatcher:   d,
		watcher:      w,
	}, nil
}

// Start runs until ctx is done. It returns early only when startup fails.
func (a *Agent) Start(ctx context.Context) error {
	slog.Info("mirrorbox agent start",
		"root", a.config.SyncRoot,
		"label", a.config.RemoteLabel,
		"provider", a.config.Provider,
		"workers", a.config.Workers,
	)

	defer func() {
		if err := a.closeDir(); err != nil {
			slog.Warn("remote close", "error", err)
		}
	}()

	if err := a.lock.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := a.lock.Unlock(); err != nil {
			slog.Warn("state dir unlock", "error", err)
		}
	}()

	// not fatal: every EnsurePath resolves the root again on a cache miss
	if rootID, err := a.materializer.EnsureRoot(ctx); err != nil {
		slog.Warn("remote root unresolved", "label", a.config.RemoteLabel, "error", err)
	} else {
		slog.Info("remote root", "label", a.config.RemoteLabel, "id", rootID)
	}

	if err := a.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	paths := make(chan string, pathBufferSize)

	if addr := a.config.MetricsAddr; addr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, addr)
		})
	}

	g.Go(func() error {
		return a.dispatcher.Run(gctx, paths)
	})

	g.Go(func() error {
		defer close(paths)
		return a.feed(gctx, paths)
	})

	<-gctx.Done()
	if ctx.Err() != nil {
		slog.Info("received interrupt signal, stopping agent")
	} else {
		slog.Error("agent stopping", "cause", context.Cause(gctx))
	}
	a.watcher.Stop()

	err := g.Wait()
	slog.Info("mirrorbox agent stop")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// feed forwards watcher events and, when enabled, the initial scan. Both run
// at once so a long scan never leaves the watcher waiting on a full channel.
func (a *Agent) feed(ctx context.Context, out chan<- string) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.config.InitialScan {
		g.Go(func() error {
			n, err := scan(gctx, a.config.SyncRoot, a.ignore.ShouldIgnore, out)
			if err != nil {
				return err
			}
			slog.Info("initial scan done", "paths", n)
			return nil
		})
	}

	g.Go(func() error {
		return forwardEvents(gctx, a.watcher.Events(), out)
	})

	return g.Wait()
}

// forwardEvents copies events to out until ctx is done. A channel closed
// while ctx is still live means the watcher died.
func forwardEvents(ctx context.Context, events <-chan string, out chan<- string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return ErrWatcherClosed
			}
			select {
			case out <- path:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
