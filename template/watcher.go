package template

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/flowcanvas/errors"
)

// DefaultWatchDebounce collapses bursts of editor saves into one reload
const DefaultWatchDebounce = 250 * time.Millisecond

// ReloadCallback is called after the library reloaded its directory
type ReloadCallback func(LoadReport)

// Watcher reloads a Library whenever files in its template directory change
type Watcher struct {
	dir     string
	library *Library
	watcher *fsnotify.Watcher
	logger  *zap.SugaredLogger

	mu             sync.Mutex
	callbacks      []ReloadCallback
	debounceTimer  *time.Timer
	debouncePeriod time.Duration

	started bool
	done    chan struct{}
}

// NewWatcher watches dir and reloads library on change. Call Start to begin.
func NewWatcher(dir string, library *Library, logger *zap.SugaredLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "failed to watch template dir %s", dir)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Watcher{
		dir:            dir,
		library:        library,
		watcher:        fw,
		logger:         logger,
		debouncePeriod: DefaultWatchDebounce,
		done:           make(chan struct{}),
	}, nil
}

// SetDebounce overrides the reload delay. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debouncePeriod = d
}

// OnReload registers a callback run after each reload
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching in a background goroutine
func (w *Watcher) Start() {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.watchLoop()
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsLibraryFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debugw("Template file changed", "file", event.Name, "op", event.Op.String())
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Template watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, w.reload)
}

func (w *Watcher) reload() {
	report, err := w.library.LoadDir(w.dir)
	if err != nil {
		w.logger.Errorw("Template reload failed", "dir", w.dir, "error", err)
		return
	}

	w.mu.Lock()
	callbacks := append([]ReloadCallback(nil), w.callbacks...)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(report)
	}
}

// Stop stops watching and cancels any pending reload
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	started := w.started
	w.mu.Unlock()

	err := w.watcher.Close()
	if started {
		<-w.done
	}
	return err
}
