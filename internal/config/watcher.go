package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// snapshot is one successfully loaded config together with the file state
// it was read from.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// Watcher reloads the config file when it changes on disk and hands old and
// new config to a callback. It polls rather than using inotify; persona and
// provider edits do not need sub-second pickup and polling keeps the config
// package free of platform watchers.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu   sync.Mutex
	last snapshot

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts watching it. Construction
// fails if the initial load does; after that, invalid edits are logged and
// the previous config stays current.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.last = snap

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Stop ends the watch goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

// reload re-reads the file if its mtime moved, swaps in the new config when
// the content actually differs, and fires the callback outside the lock.
func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: stat failed", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.last.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	snap, err := w.read()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	old := w.last
	sameContent := snap.sum == old.sum
	if sameContent {
		// Touched but not edited; just remember the new mtime.
		w.last.mtime = snap.mtime
	} else {
		w.last = snap
	}
	w.mu.Unlock()

	if sameContent {
		return
	}
	slog.Info("configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old.cfg, snap.cfg)
	}
}

// read loads and validates the file at w.path as a [snapshot].
func (w *Watcher) read() (snapshot, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
