// Package configwatch hot-reloads the predicate governance mapping table
// from disk so reviewer corrections to config/predicates.yaml take effect
// without a process restart. Other config files (ontology, thresholds) are
// treated as build-time only and are not watched.
package configwatch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yungbote/neurobridge-backend/internal/config"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
)

const debounceDelay = 500 * time.Millisecond

// PredicateWatcher watches config/predicates.yaml and swaps in a freshly
// parsed PredicateConfig whenever it changes on disk.
type PredicateWatcher struct {
	path   string
	log    *logger.Logger
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	current *config.PredicateConfig
}

// New loads the initial predicates file and arms a watcher on its
// directory (fsnotify watches directories, not files, so editors that
// replace-by-rename still trigger an event).
func New(path string, log *logger.Logger) (*PredicateWatcher, error) {
	initial := &config.PredicateConfig{}
	if err := loadPredicates(path, initial); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &PredicateWatcher{
		path:    path,
		log:     log,
		watcher: fsw,
		current: initial,
	}, nil
}

// Current returns the most recently loaded predicate config.
func (w *PredicateWatcher) Current() *config.PredicateConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run blocks, reloading predicates.yaml on every debounced filesystem
// change until ctx-like stop is signaled via Close.
func (w *PredicateWatcher) Run(stop <-chan struct{}) {
	var pendingTimer *time.Timer
	reload := func() {
		next := &config.PredicateConfig{}
		if err := loadPredicates(w.path, next); err != nil {
			w.log.Warn("configwatch: reload failed, keeping previous predicates", "error", err)
			return
		}
		w.mu.Lock()
		w.current = next
		w.mu.Unlock()
		w.log.Info("configwatch: reloaded predicates.yaml")
	}

	for {
		select {
		case <-stop:
			if pendingTimer != nil {
				pendingTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if pendingTimer != nil {
				pendingTimer.Stop()
			}
			pendingTimer = time.AfterFunc(debounceDelay, reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("configwatch: watcher error", "error", err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *PredicateWatcher) Close() error {
	return w.watcher.Close()
}

func loadPredicates(path string, out *config.PredicateConfig) error {
	dir := filepath.Dir(path)
	cfg, err := config.Load(dir, "")
	if err != nil {
		return err
	}
	*out = cfg.Predicates
	return nil
}
