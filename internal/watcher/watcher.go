// Package watcher reloads the loaded document when it changes on disk, using
// fsnotify with debouncing.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// ErrNotStarted is returned by Watch before Start.
var ErrNotStarted = errors.New("watcher not started")

// Watcher follows a single document file and invokes callbacks when it is
// rewritten or removed. The parent directory is watched so editors that
// replace files by rename are seen too.
type Watcher struct {
	onChange func(path string)
	onRemove func(path string)
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	target   string
	dir      string
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watcher events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the document must be quiet before onChange runs.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher. onChange runs after the target settles;
// onRemove runs when it is deleted. Either may be nil.
func NewWatcher(onChange, onRemove func(path string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		onChange: onChange,
		onRemove: onRemove,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	w.started = true
	w.mu.Unlock()
	go w.run(ctx, fw)
	return nil
}

// Watch makes path the watched document, replacing any previous target.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return ErrNotStarted
	}
	if abs == w.target {
		return nil
	}
	w.stopTimerLocked()
	if dir != w.dir {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		if w.dir != "" {
			_ = w.watcher.Remove(w.dir)
		}
		w.dir = dir
	}
	w.target = abs
	w.logger.Debug("watching document", zap.String("path", abs))
	return nil
}

// Target returns the watched document path, or "".
func (w *Watcher) Target() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.mu.Lock()
	target := w.target
	w.mu.Unlock()
	if path != target {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		w.debounceChange(path)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.mu.Lock()
		w.stopTimerLocked()
		w.mu.Unlock()
		if w.onRemove != nil {
			w.onRemove(path)
		}
	}
}

func (w *Watcher) debounceChange(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimerLocked()
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		current := w.target
		w.timer = nil
		w.mu.Unlock()
		if current != path {
			return
		}
		w.logger.Debug("document changed (debounced)", zap.String("path", path))
		if w.onChange != nil {
			w.onChange(path)
		}
	})
}

func (w *Watcher) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	w.stopTimerLocked()
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.target = ""
	w.dir = ""
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
