package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/spatialaccel/logging"
)

// DefaultReloadDebounce is how long the watcher waits for a burst of file events to settle
// before reloading.
const DefaultReloadDebounce = 250 * time.Millisecond

// A Watcher reloads a config file whenever it changes on disk.
type Watcher struct {
	path     string
	logger   logging.Logger
	onChange func(*Config)

	watcher       *fsnotify.Watcher
	debounced     func(f func())
	cancelCtx     context.Context
	cancel        context.CancelFunc
	activeWorkers sync.WaitGroup

	mu      sync.Mutex
	reloads int
}

// Watch starts watching path and calls onChange with every successfully parsed new version.
// Parse errors are logged and the previous config stays in effect. The directory is watched
// rather than the file so that editors which replace the file are handled.
func Watch(ctx context.Context, path string, logger logging.Logger, onChange func(*Config)) (*Watcher, error) {
	return watch(ctx, path, logger, onChange, DefaultReloadDebounce)
}

func watch(
	ctx context.Context,
	path string,
	logger logging.Logger,
	onChange func(*Config),
	settle time.Duration,
) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve config path %q", path)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		goutils.UncheckedError(fsw.Close())
		return nil, errors.Wrapf(err, "failed to watch %q", filepath.Dir(abs))
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		path:      abs,
		logger:    logger,
		onChange:  onChange,
		watcher:   fsw,
		debounced: debounce.New(settle),
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
	w.activeWorkers.Add(1)
	goutils.ManagedGo(w.run, w.activeWorkers.Done)
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.cancelCtx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.debounced(w.reload)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	if w.cancelCtx.Err() != nil {
		return
	}
	cfg, err := Read(w.path, w.logger)
	if err != nil {
		w.logger.Errorw("failed to reload config, keeping previous", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	w.logger.Infow("reloaded config", "path", w.path)
	w.onChange(cfg)
}

// Reloads returns how many times the config was successfully reloaded.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Close stops watching. Pending reloads are dropped.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.activeWorkers.Wait()
	return err
}
