// Package watch calls back when a file changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/flowrig/pkg/log"
)

// DefaultDebounceDelay coalesces editors' burst of writes into one change.
const DefaultDebounceDelay = 200 * time.Millisecond

// Config holds watcher options.
type Config struct {
	// DebounceDelay is the quiet period after the last event before
	// OnChange runs. Default: 200 milliseconds
	DebounceDelay time.Duration
}

// OnChange is called after the watched file changed.
type OnChange func(ctx context.Context)

// Watcher watches one file through its parent directory, so files replaced
// by rename are still seen.
type Watcher struct {
	mu sync.Mutex

	debounceDelay time.Duration
	logger        log.Logger
	onChange      OnChange
	debounce      *time.Timer
	running       sync.Mutex // serializes onChange

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Watcher. logger may be nil.
func New(cfg Config, logger log.Logger) *Watcher {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultDebounceDelay
	}
	return &Watcher{
		debounceDelay: cfg.DebounceDelay,
		logger:        log.OrNoop(logger),
	}
}

// Start watches path until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context, path string, fn OnChange) error {
	if fn == nil {
		return errors.New("watch: nil callback")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch directory of %s: %w", path, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.onChange = fn
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Info("watching file", log.String("path", abs))

	w.wg.Add(1)
	go w.loop(watchCtx, fsw, filepath.Base(abs))
	return nil
}

// Stop ends watching and waits for the loop to exit. A pending debounced
// callback is dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, name string) {
	defer w.wg.Done()
	defer fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	fn := w.onChange
	w.debounce = time.AfterFunc(w.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		w.running.Lock()
		defer w.running.Unlock()
		w.logger.Debug("file changed")
		fn(ctx)
	})
}
