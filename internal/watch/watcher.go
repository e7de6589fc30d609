// Package watch turns recursive filesystem notifications under the sync root
// into a stream of newly created paths.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	DefaultDebounce = time.Second
	eventBufferSize = 256
)

var ErrAlreadyStarted = errors.New("watcher already started")

// FilterCallback returns true for paths that should never be forwarded
type FilterCallback func(path string) bool

type pending struct {
	created bool
	timer   *time.Timer
}

// FileWatcher coalesces notifications per path. Once a path has been quiet
// for the debounce window it is forwarded, but only if one of the coalesced
// notifications was a create (or a move into the tree). Plain writes to
// files that already existed are dropped.
type FileWatcher struct {
	watchDir  string
	debounce  time.Duration
	events    chan string
	rawEvents chan notify.EventInfo
	done      chan struct{}
	halted    sync.Once
	wg        sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[string]*pending

	// serializes timer sends and guards events against sends after close
	sendMu sync.Mutex
	closed bool

	ignore FilterCallback
}

type Option func(*FileWatcher)

func WithDebounce(d time.Duration) Option {
	return func(fw *FileWatcher) {
		if d > 0 {
			fw.debounce = d
		}
	}
}

func WithFilter(cb FilterCallback) Option {
	return func(fw *FileWatcher) {
		fw.ignore = cb
	}
}

func NewFileWatcher(watchDir string, opts ...Option) *FileWatcher {
	fw := &FileWatcher{
		watchDir: watchDir,
		debounce: DefaultDebounce,
		events:   make(chan string, eventBufferSize),
		done:     make(chan struct{}),
		pending:  make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(fw)
	}
	return fw
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	if fw.rawEvents != nil {
		return ErrAlreadyStarted
	}

	slog.Info("file watcher start", "dir", fw.watchDir, "debounce", fw.debounce)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	recursivePath := filepath.Join(fw.watchDir, "...")
	if err := notify.Watch(recursivePath, fw.rawEvents, notify.Create, notify.Write, notify.Rename); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.loop(ctx)

	return nil
}

// Stop ends watching and closes the Events channel. Paths still inside their
// debounce window are flushed first, as far as the channel buffer allows.
func (fw *FileWatcher) Stop() {
	fw.halt()
	fw.wg.Wait()
}

// halt releases senders blocked on a full Events channel
func (fw *FileWatcher) halt() {
	fw.halted.Do(func() {
		slog.Info("file watcher stopping")
		close(fw.done)
	})
}

// Events delivers created paths. A slow reader delays delivery but loses
// nothing until Stop. The channel is closed after Stop.
func (fw *FileWatcher) Events() <-chan string {
	return fw.events
}

func (fw *FileWatcher) loop(ctx context.Context) {
	defer func() {
		notify.Stop(fw.rawEvents)
		fw.halt()
		fw.flushAll()
		fw.sendMu.Lock()
		fw.closed = true
		close(fw.events)
		fw.sendMu.Unlock()
		slog.Info("file watcher stopped")
		fw.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case ev, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			fw.observe(ev.Path(), ev.Event())
		}
	}
}

func (fw *FileWatcher) observe(path string, event notify.Event) {
	if fw.ignore != nil && fw.ignore(path) {
		return
	}

	fw.pendingMu.Lock()
	defer fw.pendingMu.Unlock()

	p, ok := fw.pending[path]
	if !ok {
		p = &pending{}
		fw.pending[path] = p
	}
	if event&(notify.Create|notify.Rename) != 0 {
		p.created = true
	}

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(fw.debounce, func() {
		fw.flush(path)
	})
}

func (fw *FileWatcher) flush(path string) {
	fw.pendingMu.Lock()
	p, ok := fw.pending[path]
	if ok {
		delete(fw.pending, path)
	}
	fw.pendingMu.Unlock()

	if !ok {
		return
	}
	fw.forward(path, p)
}

// flushAll runs on exit, after which no timer may send anymore
func (fw *FileWatcher) flushAll() {
	fw.pendingMu.Lock()
	drained := fw.pending
	fw.pending = make(map[string]*pending)
	for _, p := range drained {
		p.timer.Stop()
	}
	fw.pendingMu.Unlock()

	for path, p := range drained {
		fw.forward(path, p)
	}
}

func (fw *FileWatcher) forward(path string, p *pending) {
	if !p.created {
		slog.Debug("file watcher skip", "reason", "not created", "path", path)
		return
	}
	// renamed away or deleted before it settled
	if _, err := os.Lstat(path); err != nil {
		slog.Debug("file watcher skip", "reason", "gone", "path", path)
		return
	}

	fw.sendMu.Lock()
	defer fw.sendMu.Unlock()
	if fw.closed {
		return
	}

	select {
	case fw.events <- path:
		slog.Debug("file watcher", "event", "created", "path", path)
		return
	default:
	}

	// the buffer is full: wait for the reader, or for shutdown
	select {
	case fw.events <- path:
		slog.Debug("file watcher", "event", "created", "path", path)
	case <-fw.done:
		slog.Warn("file watcher dropped", "reason", "stopped", "path", path)
	}
}
