package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called once per changed key after the debounce window.
// deleted reports whether the key's file no longer exists.
type ChangeCallback func(key string, deleted bool)

const watchDebounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the FS root and reports edits made by
// other processes until ctx is cancelled. Bursts of events for the same key
// (an atomic rename produces several) are collapsed into one callback.
func Watch(ctx context.Context, fs *FS, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(fs.Root()); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", fs.Root()))

	pending := make(map[string]bool) // key → deleted
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(watchDebounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(watchDebounce)
		}
	}

	flush := func() {
		for key, deleted := range pending {
			logger.Debug("watcher: changed", slog.String("key", key), slog.Bool("deleted", deleted))
			if cb != nil {
				cb(key, deleted)
			}
		}
		clear(pending)
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			flush()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			key, isKey := fs.KeyForPath(ev.Name)
			if !isKey {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[key] = false
				schedule()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				pending[key] = true
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
