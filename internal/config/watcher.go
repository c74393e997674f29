package config

import (
	"crypto/sha256"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultWatchInterval = 5 * time.Second

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

// Watcher polls a configuration file and reloads it when the content
// changes. An invalid reload is logged and the previous configuration is
// kept.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.RWMutex
	current *Config
	modTime time.Time
	hash    [sha256.Size]byte

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher loads the configuration at path and starts polling it for
// changes. onChange is called with the previous and the new configuration
// after every successful reload.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     path,
		interval: defaultWatchInterval,
		onChange: onChange,
		current:  cfg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if info, err := os.Stat(path); err == nil {
		w.modTime = info.ModTime()
	}
	if data, err := os.ReadFile(path); err == nil {
		w.hash = sha256.Sum256(data)
	}
	go w.loop()
	return w, nil
}

// SetOnChange replaces the change callback. Pass nil to disable it.
func (w *Watcher) SetOnChange(onChange func(old, new *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = onChange
}

// Current returns the most recently loaded valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop terminates the polling loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: stat failed during watch", "path", w.path, "error", err)
		return
	}

	// Fast path: unchanged mtime means unchanged content.
	w.mu.RLock()
	modTime := w.modTime
	w.mu.RUnlock()
	if info.ModTime().Equal(modTime) {
		return
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		slog.Warn("config: read failed during watch", "path", w.path, "error", err)
		return
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	if sum == w.hash {
		// Touched but identical.
		w.modTime = info.ModTime()
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config: reload failed, keeping previous configuration", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.modTime = info.ModTime()
	w.hash = sum
	onChange := w.onChange
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path)
	if onChange != nil {
		onChange(old, cfg)
	}
}
