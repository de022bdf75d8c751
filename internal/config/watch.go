package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last file event before the
// config is reloaded.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads the config file when it changes and delivers the result
// over a channel. Invalid files are logged and skipped.
type Watcher struct {
	path     string
	load     func() (*Config, error)
	log      *zap.Logger
	watcher  *fsnotify.Watcher
	updates  chan *Config
	done     chan struct{}
	stopOnce sync.Once

	Debounce time.Duration
}

// NewWatcher creates a watcher for path. load is called on every change,
// usually a closure over Load so that flags keep their priority.
func NewWatcher(path string, load func() (*Config, error), log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		load:     load,
		log:      log,
		watcher:  fw,
		updates:  make(chan *Config, 1),
		done:     make(chan struct{}),
		Debounce: DefaultDebounce,
	}, nil
}

// Updates returns the channel of reloaded configs. Only the latest pending
// config is kept.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Start watches the directory of the config file, so editors that replace
// the file by renaming are seen too.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.Debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.log.Warn("config reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.log.Info("config reloaded", zap.String("path", w.path))

	// Replace a pending update that was not consumed yet
	select {
	case <-w.updates:
	default:
	}
	w.updates <- cfg
}
