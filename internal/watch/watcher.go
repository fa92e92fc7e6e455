// Package watch imports structured documents as they appear in a directory.
package watch

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"datalogbridge/internal/importer"
	"datalogbridge/internal/logging"
)

// Handler imports settled files. *importer.Importer implements it.
type Handler interface {
	Import(ctx context.Context, paths ...string) ([]importer.Report, error)
}

// Watcher watches one directory for .xml and .json documents.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	handler     Handler
	dir         string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	FilesCreated  int
	FilesModified int
	Imports       int
	Failures      int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// New creates a watcher over dir. Events on one file are batched until it
// has been quiet for debounce.
func New(dir string, h Handler, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		watcher:     fw,
		handler:     h,
		dir:         dir,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		logging.WatchWarn("failed to create watch dir %s: %v", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Watch("watching directory: %s (debounce=%v)", w.dir, w.debounceDur)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit. A watcher
// that was never started only releases its fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("error closing watcher: %v", err)
	}
	logging.Watch("watcher stopped")
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !importer.Supported(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case event.Op&fsnotify.Create != 0:
		w.stats.FilesCreated++
	case event.Op&fsnotify.Write != 0:
		w.stats.FilesModified++
	default:
		return
	}
	logging.WatchDebug("%s event for %s", event.Op, event.Name)
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.debounceMap[event.Name] = time.Now()
}

// processDebouncedEvents imports every file that has settled.
func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	if len(settled) == 0 {
		return
	}
	sort.Strings(settled)

	reports, err := w.handler.Import(ctx, settled...)
	failed := 0
	for _, r := range reports {
		if !r.OK() {
			failed++
		}
	}
	if err != nil {
		logging.WatchWarn("import of %d file(s) had failures: %v", len(settled), err)
	} else {
		logging.Watch("imported %d file(s)", len(settled))
	}

	w.mu.Lock()
	w.stats.Imports += len(settled)
	w.stats.Failures += failed
	w.mu.Unlock()
}
