package classpath

import (
	"context"
	"log/slog"
	"time"

	"hostscript/internal/core/watcher"
	"hostscript/internal/shared/util"
)

// Watch remaps the classpath whenever a mapped location changes on disk. Bursts
// of changes are debounced, and rebuilds are limited to perSecond. Watch
// blocks until ctx is done.
func (r *Resolver) Watch(ctx context.Context, debounce time.Duration, perSecond float64) error {
	limiter := util.Unlimited()
	if perSecond > 0 {
		limiter = util.NewLimiter(perSecond, 1)
	}

	trigger := make(chan struct{}, 1)
	w, err := watcher.NewWatcher(debounce, r.excludeSource, nil, func(paths []string) {
		slog.Debug("classpath change detected", "paths", len(paths))
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()

	exts := append([]string{classSuffix}, r.archiveSuffixes...)
	w.SetExtensions(append(exts, r.moduleSuffixes...))
	if err := w.Watch(r.Locations()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
			if err := limiter.Wait(ctx, 1); err != nil {
				return nil
			}
			if err := r.rescan(ctx, CauseWatch); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Warn("classpath rescan failed", "error", err)
			}
		}
	}
}
