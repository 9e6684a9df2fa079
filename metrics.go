package compute

import (
	"sync/atomic"
)

// MetricsPolicy defines hooks used by the device to report operation
// activity.
//
// Implementations must be safe for concurrent use.
// All methods are expected to be lightweight and non-blocking. None of them
// is called per payload.
type MetricsPolicy interface {

	// IncDispatched increments the started operations counter.
	IncDispatched()

	// IncCompleted increments the counter of operations that finished
	// without error.
	IncCompleted()

	// IncFaulted increments the counter of operations that finished with
	// at least one error.
	IncFaulted()

	// AddExecuted adds the number of units processed by a finished
	// operation.
	AddExecuted(n uint64)
}

// AtomicMetrics is a lock-free metrics implementation backed by atomics.
//
// Writes are optimized for hot paths.
// Reads are intended for cold-path observation.
type AtomicMetrics struct {
	dispatched atomic.Uint64
	completed  atomic.Uint64
	faulted    atomic.Uint64

	_ cachePad // keep the busiest counter on its own line

	executed atomic.Uint64
}

// Dispatched returns the number of started operations.
func (m *AtomicMetrics) Dispatched() uint64 { return m.dispatched.Load() }

// Completed returns the number of operations that finished cleanly.
func (m *AtomicMetrics) Completed() uint64 { return m.completed.Load() }

// Faulted returns the number of operations that finished with errors.
func (m *AtomicMetrics) Faulted() uint64 { return m.faulted.Load() }

// Executed returns the total number of processed units.
func (m *AtomicMetrics) Executed() uint64 { return m.executed.Load() }

func (m *AtomicMetrics) IncDispatched()       { m.dispatched.Add(1) }
func (m *AtomicMetrics) IncCompleted()        { m.completed.Add(1) }
func (m *AtomicMetrics) IncFaulted()          { m.faulted.Add(1) }
func (m *AtomicMetrics) AddExecuted(n uint64) { m.executed.Add(n) }

//------------- NoopMetrics ----------------------------------

// NoopMetrics is a MetricsPolicy implementation that discards
// all metric updates.
type NoopMetrics struct{}

func (m *NoopMetrics) IncDispatched()     {}
func (m *NoopMetrics) IncCompleted()      {}
func (m *NoopMetrics) IncFaulted()        {}
func (m *NoopMetrics) AddExecuted(uint64) {}
