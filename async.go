package compute

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ComputeTask is an awaitable handle for a computation that either finished
// synchronously or completes later on its own goroutine. A pending task
// never occupies a worker thread.
//
// Completion is published by closing the done channel, so everything the
// computation wrote before finishing is visible to whoever observes Done.
type ComputeTask struct {
	done chan struct{}
	err  error
}

var closedDone = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// CompletedTask represents work that finished synchronously and successfully.
var CompletedTask = &ComputeTask{done: closedDone}

// FaultedTask returns an already completed task that failed with err.
func FaultedTask(err error) *ComputeTask {
	return &ComputeTask{done: closedDone, err: err}
}

// Run starts fn on a new goroutine and returns its task. A panic in fn
// faults the task with a *PanicError.
func Run(ctx context.Context, fn func(ctx context.Context) error) *ComputeTask {
	t := &ComputeTask{done: make(chan struct{})}
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
			t.err = err
			close(t.done)
		}()
		err = fn(ctx)
	}()
	return t
}

// Done returns a channel closed when the task completes.
func (t *ComputeTask) Done() <-chan struct{} { return t.done }

// IsCompleted reports whether the task has finished, successfully or not.
func (t *ComputeTask) IsCompleted() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// IsFaulted reports whether the task finished with an error.
func (t *ComputeTask) IsFaulted() bool {
	return t.IsCompleted() && t.err != nil
}

// Err returns the task's error. It is nil while the task is pending.
func (t *ComputeTask) Err() error {
	if !t.IsCompleted() {
		return nil
	}
	return t.err
}

// Await blocks until the task completes or ctx is done.
func (t *ComputeTask) Await(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WhenAll returns a task that completes once every task has completed. It
// faults with the first error observed.
func WhenAll(ctx context.Context, tasks ...*ComputeTask) *ComputeTask {
	pending := false
	for _, t := range tasks {
		if !t.IsCompleted() {
			pending = true
			continue
		}
		if t.err != nil {
			return FaultedTask(t.err)
		}
	}
	if !pending {
		return CompletedTask
	}

	return Run(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, t := range tasks {
			g.Go(func() error { return t.Await(gctx) })
		}
		return g.Wait()
	})
}

// Parallel runs fn for every index in [0, n) with at most limit calls in
// flight and returns a task for the whole batch. A limit <= 0 means no limit.
func Parallel(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) *ComputeTask {
	if n <= 0 {
		return CompletedTask
	}
	return Run(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		if limit > 0 {
			g.SetLimit(limit)
		}
		for i := 0; i < n; i++ {
			g.Go(func() error { return fn(gctx, i) })
		}
		return g.Wait()
	})
}

// Box is a single-assignment result slot.
//
// Publish stores through an atomic pointer, so a reader that sees the value
// also sees every write made before Publish.
type Box[T any] struct {
	v atomic.Pointer[T]
}

// Publish stores v if the box is still empty and reports whether it did.
func (b *Box[T]) Publish(v T) bool {
	return b.v.CompareAndSwap(nil, &v)
}

// Load returns the published value, if any.
func (b *Box[T]) Load() (T, bool) {
	p := b.v.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// AsyncFunc adapts a function into an AsyncOperation that runs on its own
// goroutine.
type AsyncFunc func(ctx context.Context) error

// Validate rejects a nil function.
func (f AsyncFunc) Validate() error {
	if f == nil {
		return ErrNilFunc
	}
	return nil
}

// Progress is unknown for plain functions.
func (f AsyncFunc) Progress() float64 { return 0 }

// FillEventRows reports nothing.
func (f AsyncFunc) FillEventRows([]EventRow) int { return 0 }

// Execute runs f.
func (f AsyncFunc) Execute(ctx context.Context) *ComputeTask {
	return Run(ctx, f)
}
