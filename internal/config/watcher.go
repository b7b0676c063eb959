package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 1500 * time.Millisecond

// Watcher watches the config file and calls the handlers of each top-level
// table ("daemon", "logging", ...) whose contents changed since the last load.
// Handlers re-resolve their settings themselves, usually with Resolve.
type Watcher struct {
	path     string
	debounce time.Duration
	onError  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	sections []sectionHandler
	nextID   int
	tables   map[string]any

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

type sectionHandler struct {
	id      int
	section string
	fn      func()
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce duration for config changes.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithErrorHandler sets a callback for files that fail to parse.
// If not set, errors are only logged.
func WithErrorHandler(handler func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = handler
	}
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, logger *slog.Logger, opts ...WatcherOption) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnSection registers fn to run when the [section] table changes, including
// when it is added or removed. Returns an unsubscribe function.
func (w *Watcher) OnSection(section string, fn func()) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.sections = append(w.sections, sectionHandler{id: id, section: section, fn: fn})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, h := range w.sections {
			if h.id == id {
				w.sections = append(w.sections[:i], w.sections[i+1:]...)
				return
			}
		}
	}
}

// Start records the current tables and begins watching. The directory is
// watched rather than the file so editors that replace the file are seen,
// and the file may be created after Start.
func (w *Watcher) Start() error {
	tables, err := readTables(w.path)
	if err != nil {
		w.logger.Warn("Config file unreadable at start", "path", w.path, "error", err)
	}
	w.mu.Lock()
	w.tables = tables
	w.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if addErr := watcher.Add(filepath.Dir(w.path)); addErr != nil {
		watcher.Close()
		return addErr
	}
	w.watcher = watcher

	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	go w.watch()
	return nil
}

// Stop stops watching and cleans up resources.
func (w *Watcher) Stop() error {
	w.cancel()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) watch() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Debug("Config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.Debug("Config file change detected", "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// reload re-reads the file and runs the handlers of changed tables. A file
// that fails to parse leaves the previous tables in place.
func (w *Watcher) reload() {
	tables, err := readTables(w.path)
	if err != nil {
		w.logger.Warn("Failed to load config", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	previous := w.tables
	w.tables = tables
	var run []func()
	changed := make(map[string]bool)
	for _, h := range w.sections {
		if !reflect.DeepEqual(previous[h.section], tables[h.section]) {
			changed[h.section] = true
			run = append(run, h.fn)
		}
	}
	w.mu.Unlock()

	if len(changed) == 0 {
		w.logger.Debug("Config file changed without affecting watched sections")
		return
	}
	for section := range changed {
		w.logger.Info("Config section changed", "section", section)
	}
	for _, fn := range run {
		fn()
	}
}
