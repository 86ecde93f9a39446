package geoip

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Wikid82/gatewatch/internal/logger"
)

// Watcher reloads a Service when a database file in its directory changes.
type Watcher struct {
	svc      *Service
	debounce time.Duration
}

// NewWatcher creates a watcher for svc. Bursts of file events within
// debounce collapse into one reload.
func NewWatcher(svc *Service, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{svc: svc, debounce: debounce}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.svc.Dir()); err != nil {
		return err
	}
	logger.Log().WithField("dir", w.svc.Dir()).Info("geoip: watching database directory")

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isDatabaseEvent(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Log().WithError(err).Warn("geoip: watcher error")
		case <-fire:
			fire = nil
			if err := w.svc.Reload(); err != nil {
				logger.Log().WithError(err).Warn("geoip: reload after file change failed")
			}
		}
	}
}

func isDatabaseEvent(ev fsnotify.Event) bool {
	if !strings.HasSuffix(filepath.Base(ev.Name), ".mmdb") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove)
}
