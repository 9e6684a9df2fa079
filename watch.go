package compute

import (
	"context"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
)

// Snapshot is a point-in-time report of the operation in flight.
type Snapshot struct {
	ID       string
	Progress float64
	Elapsed  time.Duration
	States   StateCounts
	Events   []EventRow
	Done     bool
}

// Snapshot reports on the most recent operation. It returns false if the
// device has never started one.
func (d *Device) Snapshot() (Snapshot, bool) {
	e := d.latest.Load()
	if e == nil {
		return Snapshot{}, false
	}
	return d.snapshot(e), true
}

func (d *Device) snapshot(e *execution) Snapshot {
	states := make([]State, len(d.workers))
	d.FillStatuses(states)

	rows := make([]EventRow, MaxLabels)
	n := e.op.FillEventRows(rows)

	s := Snapshot{
		ID:       e.id.String(),
		Progress: e.op.Progress(),
		Elapsed:  time.Since(e.started),
		States:   CountStates(states),
		Events:   rows[:n],
	}
	select {
	case <-e.done:
		s.Done = true
	default:
	}
	return s
}

// Watch calls fn with snapshots of every operation run until the device
// becomes idle or ctx is done. Polls are spaced by a jittered exponential
// backoff between Options.WatchInitial and Options.WatchMax, restarting for
// each new operation. The final snapshot of each operation has Done set.
func (d *Device) Watch(ctx context.Context, fn func(Snapshot)) error {
	e := d.currentExecution()
	for e != nil {
		bo := boff.New(d.opts.WatchInitial, d.opts.WatchMax, time.Now().UnixNano())
		for {
			s := d.snapshot(e)
			fn(s)
			if s.Done {
				break
			}

			timer := time.NewTimer(bo.Next())
			select {
			case <-timer.C:
			case <-e.done:
				timer.Stop()
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		e = d.currentExecution()
	}
	return nil
}

func (d *Device) currentExecution() *execution {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}
