package compiler

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lumora-labs/lumora-core/livebus"
)

// Watcher drives the pipeline from filesystem changes: every write to a
// source unit re-lowers it and publishes the result on the bus. Rapid
// editor save bursts debounce per path.
type Watcher struct {
	pipeline *Pipeline
	logger   Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher over the pipeline. debounce <= 0 falls back
// to 50ms.
func NewWatcher(pipeline *Pipeline, logger Logger, debounce time.Duration) *Watcher {
	if logger == nil {
		logger = noopLogger{}
	}
	if debounce <= 0 {
		debounce = 50 * time.Millisecond
	}
	return &Watcher{
		pipeline: pipeline,
		logger:   logger,
		debounce: debounce,
		pending:  map[string]*time.Timer{},
	}
}

// Watch blocks, recompiling source units under dir as they change, until
// the context ends.
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watch_started", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if _, known := DialectFor(event.Name); !known {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch_error", "error", err.Error())
		}
	}
}

// schedule debounces one path and recompiles when the timer fires.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.recompile(ctx, path)
	})
}

func (w *Watcher) recompile(ctx context.Context, path string) {
	if bus := w.pipeline.Bus(); bus != nil {
		_ = bus.Publish(ctx, &livebus.SourceChanged{Path: path})
	}
	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("watch_read_failed", "path", path, "error", err.Error())
		return
	}
	result := w.pipeline.CompileOne(ctx, SourceUnit{Path: path, Content: content}, false)
	if result.Err != nil {
		w.logger.Warn("watch_recompile_failed", "path", path, "error", result.Err.Error())
	}
}
