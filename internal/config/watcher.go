package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher hot-reloads the config file on write, publishing the reloaded
// Config to subscribers. Safe fields only (thresholds, intervals) are
// expected to be applied live by callers; structural changes (data dir,
// metrics address) require a restart by convention.
type Watcher struct {
	path string

	mu          sync.RWMutex
	current     *Config
	subscribers []chan *Config

	fsw *fsnotify.Watcher
}

// NewWatcher creates a Watcher for the given path, performing an initial
// load into Current().
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{path: path, current: cfg}

	if path == "" {
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	w.fsw = fsw
	return w, nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe returns a channel that receives every successfully reloaded
// Config. The channel is never closed by Stop; callers select on a
// context instead.
func (w *Watcher) Subscribe() <-chan *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan *Config, 1)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Start runs the watch loop in a goroutine. A no-op if the watcher was
// constructed with an empty path.
func (w *Watcher) Start() {
	if w.fsw == nil {
		return
	}
	go w.loop()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("component", "config_watcher").Msg("watch error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("component", "config_watcher").Msg("reload failed, keeping previous config")
		return
	}

	w.mu.Lock()
	w.current = cfg
	subs := append([]chan *Config(nil), w.subscribers...)
	w.mu.Unlock()

	log.Info().Str("component", "config_watcher").Str("path", w.path).Msg("configuration reloaded")

	for _, ch := range subs {
		select {
		case ch <- cfg:
		default:
		}
	}
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}
