package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const maxTick = 100 * time.Millisecond

// Watcher reports suite files that changed in a set of directories. Bursts of events
// for one path collapse into a single callback once the path has been quiet for the
// debounce window.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dirs     []string
	onChange func(path string)
	logger   *zap.Logger
	pending  map[string]time.Time
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stopped  bool
	stats    Stats
}

// Stats counts watcher activity.
type Stats struct {
	Events    int
	Triggered int
	Errors    int
}

func New(dirs []string, debounce time.Duration, onChange func(path string), logger *zap.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("watch: nil change callback")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	return &Watcher{
		watcher:  watcher,
		dirs:     append([]string(nil), dirs...),
		onChange: onChange,
		logger:   logger,
		pending:  make(map[string]time.Time),
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start subscribes to every directory and runs the event loop in a goroutine until ctx
// is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.stopped {
		w.mu.Unlock()
		return nil
	}
	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Unlock()
			return fmt.Errorf("watch: add %s: %w", dir, err)
		}
		w.logger.Debug("watching directory", zap.String("dir", dir))
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop ends the event loop, waits for it to exit and releases the fsnotify watcher.
// It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	running := w.running
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	if running {
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", zap.Error(err))
	}
}

func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(tickFor(w.debounce))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
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
			w.logger.Warn("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !IsSuiteFile(event.Name) {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("suite event", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	w.mu.Lock()
	w.stats.Events++
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush fires the callback for every path that has settled past the debounce window.
func (w *Watcher) flush() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.stats.Triggered += len(ready)
	w.mu.Unlock()

	for _, path := range ready {
		w.onChange(path)
	}
}

// IsSuiteFile reports whether path names a YAML suite file.
func IsSuiteFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		return true
	default:
		return false
	}
}

func tickFor(debounce time.Duration) time.Duration {
	tick := debounce / 2
	if tick > maxTick {
		return maxTick
	}
	if tick <= 0 {
		return 10 * time.Millisecond
	}
	return tick
}
