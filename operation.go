package compute

import (
	"context"
)

// Operation is a dispatchable unit of work bound to a worker set.
//
// An operation has one of two execution shapes: ParallelOperation, driven
// by every assigned worker until it reports exhaustion, or AsyncOperation,
// a single computation that runs without holding a worker.
//
// Progress and FillEventRows are called by reporting code while the
// operation runs. They must be safe for concurrent use and must not block
// beyond taking a snapshot.
type Operation interface {
	// Validate reports configuration errors. The device calls it before
	// any worker touches the operation.
	Validate() error

	// Progress returns completion in the range [0, 1].
	Progress() float64

	// FillEventRows copies the operation's event counts into dst and
	// returns the number of rows written.
	FillEventRows(dst []EventRow) int
}

// ParallelOperation is executed concurrently by every assigned worker.
type ParallelOperation interface {
	Operation

	// Execute processes one unit of work on behalf of w. It returns false
	// once the operation is exhausted for good. A non-nil error aborts w.
	Execute(ctx context.Context, w *Worker) (bool, error)
}

// AsyncOperation performs a single computation that may suspend without
// occupying a worker thread.
type AsyncOperation interface {
	Operation

	// Execute starts the computation. Returning CompletedTask signals work
	// that finished synchronously.
	Execute(ctx context.Context) *ComputeTask
}

// OperationFactory defers construction of an operation until the live
// worker set is known, so operations can size per-worker state.
//
// CreateOperation must be pure construction with no side effects beyond
// allocating the operation.
type OperationFactory interface {
	CreateOperation(workers []*Worker) Operation
}

// OperationFactoryFunc adapts a function into an OperationFactory.
type OperationFactoryFunc func(workers []*Worker) Operation

// CreateOperation calls f(workers).
func (f OperationFactoryFunc) CreateOperation(workers []*Worker) Operation {
	return f(workers)
}

// Validator is implemented by payload sources that can detect bad
// configuration up front.
type Validator interface {
	Validate() error
}

// ProgressReporter is implemented by payload sources that know how far
// along they are.
type ProgressReporter interface {
	Progress() float64
}

// EventReporter is implemented by payload sources that count events.
type EventReporter interface {
	FillEventRows(dst []EventRow) int
}

// EventsOf sums per-worker counters into dst. It is a convenience for
// EventReporter implementations.
func EventsOf(src []EventCounters, dst []EventRow) int {
	return Sum(src).FillRows(dst)
}
