package build

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounceInterval = 100 * time.Millisecond

// Watch builds once and then rebuilds whenever a file under SrcDir changes,
// until ctx is cancelled. Any file counts, since includes may name files
// without the source extension. Bursts of events within interval cause
// a single rebuild. onBuild, when set, sees every build result.
func (b *Builder) Watch(ctx context.Context, interval time.Duration, onBuild func(Result, error)) error {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	if onBuild == nil {
		onBuild = func(Result, error) {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := b.addDirs(watcher, b.opts.SrcDir); err != nil {
		return err
	}

	rebuild := func() {
		res, err := b.Build(ctx)
		if err != nil {
			b.log.Error("build failed", "error", err)
		}
		onBuild(res, err)
	}
	rebuild()

	debounce := NewDebouncer(interval)
	defer debounce.Stop()

	b.log.Info("watching for changes", "dir", b.opts.SrcDir, "debounce_ms", interval.Milliseconds())
	for {
		select {
		case <-ctx.Done():
			b.log.Info("watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := b.addDirs(watcher, event.Name); err != nil {
						b.log.Warn("cannot watch new directory", "dir", event.Name, "error", err)
					}
					// Files created with the directory produced no events.
					debounce.Trigger(rebuild)
					continue
				}
			}
			if !relevant(event) {
				continue
			}
			b.log.Debug("source changed", "file", event.Name, "op", event.Op.String())
			debounce.Trigger(rebuild)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			b.log.Error("watcher error", "error", err)
		}
	}
}

// addDirs watches dir and its subdirectories, except hidden ones and the
// output directory.
func (b *Builder) addDirs(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if b.opts.OutDir != "" && sameDir(path, b.opts.OutDir) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		b.log.Debug("watching directory", "dir", path)
		return nil
	})
}

// relevant drops attribute changes and hidden files such as editor swap
// files.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !strings.HasPrefix(filepath.Base(event.Name), ".")
}

// Debouncer runs the most recently triggered callback once no trigger has
// arrived for the interval.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
	running  sync.WaitGroup
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	cb := d.callback
	d.callback = nil
	if cb == nil || d.stopped {
		d.mu.Unlock()
		return
	}
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	cb()
}

// Stop cancels any pending callback and waits for a running one to return.
// Later triggers are ignored. Stop must not be called from a callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
	d.mu.Unlock()

	d.running.Wait()
}
