// Package compute is the scheduling core of a parallel compute engine.
//
// A Device owns a fixed set of worker goroutines, each locked to its own OS
// thread, and runs one operation at a time on them. Operations are built
// late, through an OperationFactory, so they can size per-worker state to
// the live worker set.
//
// Design goals
//
// The package is designed around the following principles:
//
//   - No locks on the heavy part of a payload
//   - No allocations on the payload path
//   - Cooperative control: pause and abort take effect at payload boundaries
//   - Observation without coordination with the workers
//
// Execution shapes
//
// An operation is either parallel or async.
//
//  1. ParallelOperation
//     Handed to every usable worker. Each worker calls Execute in a loop
//     until it reports exhaustion, an error aborts the worker, or the
//     device asks it to stop.
//
//  2. AsyncOperation
//     A single computation returning a ComputeTask. It never occupies a
//     worker thread while it waits; CompletedTask signals work that
//     finished synchronously.
//
// Payload queue
//
// PayloadOperation turns a PayloadSource into a ParallelOperation. Workers
// share a bounded queue of QueueSize payloads. An empty queue is refilled
// in one batch under the lock, so with many small payloads the lock is
// taken once per batch. Main always runs outside the lock. Once the source
// reports exhaustion it is never asked again.
//
// Worker states
//
// Each worker publishes its State through an atomic flag. Observers read it
// with Device.FillStatuses without synchronizing with the workers, so the
// snapshot is consistent per worker but not across workers.
//
// Pause and abort
//
// Pause closes a Gate and sets a flag that workers check between payloads,
// so a payload in progress always finishes. Abort requests every worker to
// drop the operation; aborted workers stay Aborted until Device.Recover.
// Payloads already claimed by an aborted operation are not returned to the
// source.
//
// Event counting
//
// EventCounters is a per-worker array of atomic counters indexed by a small
// Label. Reporting is a single atomic add. Sum folds the per-worker arrays
// into EventTotals; the sum is order independent.
//
// Observability
//
// Device lifecycle and operation outcomes are logged through zlog, taken
// from Options.Ctx. MetricsPolicy receives per-operation counters, and
// Device.Watch polls progress with a jittered backoff. Package promcompute
// exports devices to Prometheus.
package compute
