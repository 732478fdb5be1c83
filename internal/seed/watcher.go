package seed

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/focusguard/internal/store"
)

// Watch applies the seed file once, then follows filesystem events on it
// until ctx is cancelled, reapplying after each change. Edits are debounced
// because editors typically produce several events per save (write, chmod,
// rename-into-place).
//
// The parent directory is watched rather than the file itself so that
// delete-and-recreate saves keep working.
func Watch(ctx context.Context, dir store.Directory, path string, logger *slog.Logger, cb AppliedFunc) error {
	if logger == nil {
		logger = slog.Default()
	}

	applyOnce := func() {
		assignments, err := Parse(path)
		if err != nil {
			logger.Warn("seed: parse failed", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
		if err := Apply(dir, assignments, time.Now(), cb); err != nil {
			logger.Warn("seed: apply failed", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
		logger.Info("seed: applied", slog.String("path", path), slog.Int("senders", len(assignments)))
	}

	applyOnce()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	logger.Info("seed: watching", slog.String("path", path))

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	scheduleApply := func() {
		if debounce == nil {
			debounce = time.NewTimer(200 * time.Millisecond)
			debounceCh = debounce.C
		} else {
			debounce.Reset(200 * time.Millisecond)
		}
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("seed: watcher stopped")
			return nil

		case <-debounceCh:
			applyOnce()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleApply()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("seed: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
