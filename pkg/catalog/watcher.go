package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// Watch reloads the catalog whenever a file in its directory changes. It
// blocks until ctx is cancelled. Bursts of events are coalesced into one
// reload.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.dir == "" {
		return fmt.Errorf("catalog has no source directory")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(c.dir); err != nil {
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(defaultDebounce)
			} else {
				timer.Reset(defaultDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := c.Reload(); err != nil {
				c.logger.Error("catalog reload failed", "error", err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("catalog watcher error", "error", err)
		}
	}
}
