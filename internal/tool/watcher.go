package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kota/internal/script"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher keeps the scripted tools in a Registry in sync with their
// manifest. Native tools are never touched.
type Watcher struct {
	mu       sync.Mutex
	reg      *Registry
	path     string
	logger   *zap.Logger
	opts     []script.Option
	debounce time.Duration

	// dynamic holds the names the last reload registered.
	dynamic map[string]bool
	pending time.Time

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher creates a Watcher for the manifest at path. opts are passed to
// every session the loaded tools open.
func NewWatcher(reg *Registry, path string, logger *zap.Logger, opts ...script.Option) *Watcher {
	return &Watcher{
		reg:      reg,
		path:     path,
		logger:   logger,
		opts:     opts,
		debounce: 300 * time.Millisecond,
		dynamic:  make(map[string]bool),
	}
}

// SetDebounce changes how long the manifest must stay quiet before a reload.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Reload loads the manifest and applies it to the registry: new and changed
// tools are (re)registered, tools that disappeared are unregistered.
func (w *Watcher) Reload(ctx context.Context) (*LoadResult, error) {
	res, err := LoadTools(ctx, w.path, w.logger, w.opts...)
	if err != nil {
		return nil, err
	}
	if w.reg.metrics != nil {
		w.reg.metrics.ObserveManifestLoad(len(res.Errors))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]bool, len(res.Tools))
	for _, d := range res.Tools {
		w.reg.Register(NewLuaTool(d, w.logger, w.opts...))
		seen[d.Name] = true
	}
	for name := range w.dynamic {
		if !seen[name] {
			w.reg.Unregister(name)
			w.logger.Info("scripted tool removed", zap.String("name", name))
		}
	}
	w.dynamic = seen
	return res, nil
}

// Start watches the manifest for changes in the background. It returns
// immediately; call Stop to end watching.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := w.watchDir()
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return err
	}
	w.logger.Info("watching tool manifests", zap.String("dir", dir))

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing manifest watcher", zap.Error(err))
	}
}

func (w *Watcher) watchDir() string {
	if info, err := os.Stat(w.path); err == nil && info.IsDir() {
		return w.path
	}
	return filepath.Dir(w.path)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				w.mu.Lock()
				w.pending = time.Now()
				w.mu.Unlock()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("manifest watcher error", zap.Error(err))
		case <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()
			if due {
				if _, err := w.Reload(ctx); err != nil {
					w.logger.Warn("tool reload failed", zap.Error(err))
				}
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if info, err := os.Stat(w.path); err == nil && info.IsDir() {
		return strings.HasSuffix(ev.Name, ".lua")
	}
	return filepath.Clean(ev.Name) == filepath.Clean(w.path)
}
