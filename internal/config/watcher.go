package config

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher watches a config file for external changes so a running daemon
// can pick up edits without a restart.
type Watcher struct {
	mu     sync.RWMutex
	logger *slog.Logger

	// Path to watch
	path string

	// Last known modification time
	lastModTime time.Time

	// Polling interval
	pollInterval time.Duration

	// Callback for changes
	onChangeCallback func()

	// Control channels
	stopCh chan struct{}
	doneCh chan struct{}

	running bool
}

// NewWatcher creates a new Watcher for the given config file path.
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		logger:       logger,
		path:         path,
		pollInterval: 2 * time.Second, // Poll every 2s
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// SetPollInterval sets the polling interval for file changes.
func (w *Watcher) SetPollInterval(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pollInterval = interval
}

// SetChangeCallback sets the callback to invoke when the config file changes.
func (w *Watcher) SetChangeCallback(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChangeCallback = callback
}

// Start begins watching the config file for changes.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true

	// Get initial modification time
	if info, err := os.Stat(w.path); err == nil {
		w.lastModTime = info.ModTime()
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.watchLoop(ctx)

	w.logger.Debug("config watcher started", "path", w.path, "interval", w.pollInterval)
	return nil
}

// Stop stops watching the config file.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	// Wait for goroutine to finish
	<-w.doneCh
	w.logger.Debug("config watcher stopped")
}

// watchLoop is the main polling loop.
func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)

	w.mu.RLock()
	interval := w.pollInterval
	w.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

// checkForChanges checks if the config file has been modified.
func (w *Watcher) checkForChanges() {
	w.mu.RLock()
	callback := w.onChangeCallback
	lastModTime := w.lastModTime
	w.mu.RUnlock()

	info, err := os.Stat(w.path)
	if err != nil {
		// File might not exist yet or was deleted
		if !os.IsNotExist(err) {
			w.logger.Debug("failed to stat config file", "path", w.path, "error", err)
		}
		return
	}

	modTime := info.ModTime()
	if modTime.After(lastModTime) {
		w.mu.Lock()
		w.lastModTime = modTime
		w.mu.Unlock()

		w.logger.Debug("config file changed", "path", w.path, "modTime", modTime)

		if callback != nil {
			callback()
		}
	}
}
