package users

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ratatoskr/pkg/logx"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher reloads the user list when the backing file changes on
// disk, so external edits (CRUD subcommands, hand edits) reach the
// running gate without a restart.
//
// The parent directory is watched, not the file: editors and the
// yaml store's rename-into-place both replace the inode.
type Watcher struct {
	store  Store
	path   string
	onLoad func([]Entry)
	log    logx.Logger
}

// NewWatcher creates a watcher over the store backed by path. onLoad
// receives every successfully reloaded list.
func NewWatcher(store Store, path string, onLoad func([]Entry), log logx.Logger) *Watcher {
	return &Watcher{store: store, path: path, onLoad: onLoad, log: log}
}

// Run blocks until ctx ends, delivering reloads as they happen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	// Debounce to avoid reloading partial writes.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() { w.reload(ctx) })
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			schedule()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", logx.Err(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	entries, err := w.store.Load(ctx)
	if err != nil {
		w.log.Warn("reload failed", logx.String("path", w.path), logx.Err(err))
		return
	}
	w.log.Info("user list reloaded", logx.Int("users", len(entries)))
	w.onLoad(entries)
}
