package compute

import (
	"context"
	"sync"
	"sync/atomic"
)

// PayloadSource is the producer side of a payload-parallel workload.
type PayloadSource[T any] interface {
	// NextPayload produces the next payload. It is called while the queue
	// lock is held, so it must be fast and must not block. Exhaustion is
	// reported by returning false, never by panicking.
	NextPayload() (T, bool)

	// Main processes one payload. It runs outside the queue lock and may be
	// arbitrarily expensive. Failures are reported by returning an error.
	Main(ctx context.Context, payload T, w *Worker) error
}

// PayloadOperation is a ParallelOperation that pulls payloads from a source
// through a bounded queue shared by every worker.
//
// Refilling happens in batches of up to QueueSize payloads, so under load a
// worker takes the lock once per batch rather than once per payload, and
// the heavy Main call always runs unlocked.
type PayloadOperation[T any] struct {
	src PayloadSource[T]

	mu        sync.Mutex
	queue     payloadRing[T]
	exhausted bool

	_ cachePad

	claimed atomic.Uint64
	drained atomic.Bool
}

// NewPayloadOperation wraps src in a payload queue.
func NewPayloadOperation[T any](src PayloadSource[T]) *PayloadOperation[T] {
	return &PayloadOperation[T]{src: src}
}

// Source returns the wrapped payload source.
func (o *PayloadOperation[T]) Source() PayloadSource[T] { return o.src }

// Validate checks the source is set and asks it to validate itself.
func (o *PayloadOperation[T]) Validate() error {
	if o.src == nil {
		return ErrNilSource
	}
	if v, ok := o.src.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// TryGetPayload hands out the next payload.
//
// A buffered payload is returned straight away. Otherwise the queue is
// refilled from the source until it is full or the source is exhausted.
// Once the source is exhausted and the queue is empty, TryGetPayload
// returns false for good.
func (o *PayloadOperation[T]) TryGetPayload() (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v, ok := o.queue.Pop(); ok {
		o.claimed.Add(1)
		return v, true
	}

	for !o.exhausted && !o.queue.Full() {
		v, ok := o.src.NextPayload()
		if !ok {
			o.exhausted = true
			break
		}
		o.queue.Push(v)
	}

	v, ok := o.queue.Pop()
	if !ok {
		o.drained.Store(true)
		return v, false
	}
	o.claimed.Add(1)
	return v, true
}

// Execute claims one payload and runs Main on it outside the lock.
func (o *PayloadOperation[T]) Execute(ctx context.Context, w *Worker) (bool, error) {
	payload, ok := o.TryGetPayload()
	if !ok {
		return false, nil
	}
	if err := o.src.Main(ctx, payload, w); err != nil {
		return false, err
	}
	return true, nil
}

// Buffered returns the number of payloads waiting in the queue.
func (o *PayloadOperation[T]) Buffered() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Len()
}

// Claimed returns how many payloads have been handed to workers.
func (o *PayloadOperation[T]) Claimed() uint64 { return o.claimed.Load() }

// Progress delegates to the source when it implements ProgressReporter.
// Otherwise it is 0 until the queue is drained and 1 afterwards.
func (o *PayloadOperation[T]) Progress() float64 {
	if p, ok := o.src.(ProgressReporter); ok {
		return p.Progress()
	}
	if o.drained.Load() {
		return 1
	}
	return 0
}

// FillEventRows delegates to the source when it implements EventReporter.
func (o *PayloadOperation[T]) FillEventRows(dst []EventRow) int {
	if r, ok := o.src.(EventReporter); ok {
		return r.FillEventRows(dst)
	}
	return 0
}
