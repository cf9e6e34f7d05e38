package ledger

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// MinDebounce is the shortest quiet period the watcher accepts.
const MinDebounce = 200 * time.Millisecond

// Watcher resyncs a Ledger after changes in the managed downloads directory.
// Bursts of filesystem events are coalesced into one resync once Debounce
// has passed without further events.
type Watcher struct {
	Dir      string
	Debounce time.Duration
	Ledger   *Ledger
	Log      *zap.SugaredLogger

	// OnResync, when set, receives the entries of every resync the watcher runs.
	OnResync func([]Entry)
}

// Run watches until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	debounce := w.Debounce
	if debounce < MinDebounce {
		debounce = MinDebounce
	}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create watched directory: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	log.Infow("Watching downloads directory", zap.String("dir", w.Dir), zap.Duration("debounce", debounce))

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			log.Debugw("Downloads directory changed", zap.String("name", ev.Name), zap.String("op", ev.Op.String()))
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warnw("Watcher error", zap.Error(err))
		case <-timer.C:
			entries := w.Ledger.Resync()
			if w.OnResync != nil {
				w.OnResync(entries)
			}
		}
	}
}
