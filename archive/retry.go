package archive

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultListSchedule is the wait before each enumeration attempt. Tool spawns
// fail transiently (antivirus, contention) and usually recover quickly.
var DefaultListSchedule = []time.Duration{0, 150 * time.Millisecond, 300 * time.Millisecond, 600 * time.Millisecond}

// scheduleBackOff replays a fixed list of waits, then stops.
type scheduleBackOff struct {
	waits []time.Duration
	next  int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.waits) {
		return backoff.Stop
	}
	d := b.waits[b.next]
	b.next++
	return d
}

func (b *scheduleBackOff) Reset() { b.next = 0 }

// ListWithRetry enumerates archivePath, making one attempt per schedule slot.
// The first slot is the wait before the first attempt. The last error is
// returned once the schedule is exhausted.
func ListWithRetry(ctx context.Context, r Reader, archivePath string, schedule []time.Duration, notify func(error, time.Duration)) ([]string, error) {
	if len(schedule) == 0 {
		schedule = DefaultListSchedule
	}
	if schedule[0] > 0 {
		timer := time.NewTimer(schedule[0])
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var entries []string
	op := func() error {
		var err error
		entries, err = r.ListEntries(ctx, archivePath)
		return err
	}

	b := backoff.WithContext(&scheduleBackOff{waits: schedule[1:]}, ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return entries, nil
}
