package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// applyReloadable copies the config keys safe to hot-swap on a running
// Config: everything else (approved_directory, agent_backend, binary
// paths) is fixed for the process lifetime per §6 — agent_backend in
// particular is selected once at start-up with no runtime fallback.
func (c *Config) applyReloadable(fresh *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AgentTimeoutSeconds = fresh.AgentTimeoutSeconds
	c.AllowedTools = fresh.AllowedTools
	c.DisallowedTools = fresh.DisallowedTools
	c.SessionTimeoutHours = fresh.SessionTimeoutHours
	c.MaxTurns = fresh.MaxTurns
	c.RateLimit = fresh.RateLimit
}

// Watcher hot-reloads non-structural fields of a live Config whenever
// its source file changes on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	log     *slog.Logger
	done    chan struct{}
}

// Watch starts watching path for writes and applies reloadable fields
// onto live whenever the file changes. Parse errors are logged and
// skipped; live is never left partially updated by a bad write.
func Watch(path string, live *Config, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fw, log: logger, done: make(chan struct{})}
	go w.loop(path, live)
	return w, nil
}

func (w *Watcher) loop(path string, live *Config) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fresh, err := Load(path)
			if err != nil {
				w.log.Warn("config reload failed, keeping previous values", "path", path, "error", err)
				continue
			}
			live.applyReloadable(fresh)
			w.log.Info("config reloaded", "path", path)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
