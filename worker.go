package compute

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	lg "github.com/Andrej220/go-utils/zlog"
)

// assignment binds a worker to the parallel operation of one execution.
type assignment struct {
	exec *execution
	op   ParallelOperation
}

// Worker owns one goroutine locked to its OS thread. It lives as long as
// its Device and executes whatever parallel operation it is assigned.
//
// Only the worker's own goroutine moves it between states, except for the
// device assigning work (→ Pending) and marking pause requests through the
// atomic state flag.
type Worker struct {
	index  int
	device *Device

	state atomic.Uint32
	_     cachePad

	executed atomic.Uint64
	lastErr  atomic.Pointer[WorkerError]

	job  atomic.Pointer[assignment]
	wake chan struct{}
}

func newWorker(index int, d *Device) *Worker {
	return &Worker{
		index:  index,
		device: d,
		wake:   make(chan struct{}, 1),
	}
}

// Index returns the worker's position in the device's worker array. It is
// stable for the life of the device and suits indexing per-worker buffers.
func (w *Worker) Index() int { return w.index }

// Device returns the owning device.
func (w *Worker) Device() *Device { return w.device }

// State returns the current state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Executed returns the total number of units this worker has processed.
func (w *Worker) Executed() uint64 { return w.executed.Load() }

// Err returns the error that last aborted the worker, or nil.
func (w *Worker) Err() error {
	if e := w.lastErr.Load(); e != nil {
		return e
	}
	return nil
}

// assign hands a new operation to the worker. Called by the device with
// its lock held, only while the worker is Idle or Completed.
func (w *Worker) assign(a *assignment) {
	w.state.Store(uint32(StatePending))
	w.job.Store(a)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// reset moves an aborted worker back to Idle.
func (w *Worker) reset() bool {
	if w.state.CompareAndSwap(uint32(StateAborted), uint32(StateIdle)) {
		w.lastErr.Store(nil)
		return true
	}
	return false
}

func (w *Worker) loop(wg *sync.WaitGroup) {
	defer wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	d := w.device
	if d.opts.PinWorkers {
		cpu := w.index % runtime.NumCPU()
		if err := PinToCPU(cpu); err != nil {
			d.reportInternalError(fmt.Errorf("pin worker %d to cpu %d: %w", w.index, cpu, err))
		}
	}

	for {
		select {
		case <-w.wake:
			if a := w.job.Swap(nil); a != nil {
				w.run(a)
			}
		case <-d.quit:
			// an assignment that raced with Close still has to be accounted for
			if a := w.job.Swap(nil); a != nil {
				w.run(a)
			}
			return
		}
	}
}

// run drives one operation until it is exhausted or the worker aborts.
func (w *Worker) run(a *assignment) {
	r := a.exec
	d := w.device

	var n uint64
	defer func() {
		r.executed.Add(n)
		d.workerDone(r)
	}()

	w.state.Store(uint32(StateRunning))
	for {
		if r.aborting.Load() {
			w.abort(r, ErrAborted)
			return
		}
		if d.paused.Load() {
			w.pause(r)
			continue
		}

		more, err := w.execute(r.ctx, a.op)
		if err != nil {
			w.abort(r, err)
			return
		}
		if !more {
			w.state.Store(uint32(StateCompleted))
			return
		}
		n++
		w.executed.Add(1)
	}
}

// pause parks the worker on the device gate until resume or abort.
func (w *Worker) pause(r *execution) {
	d := w.device
	w.state.Store(uint32(StatePaused))
	d.gate.WaitUntil(func() bool {
		return !d.paused.Load() || r.aborting.Load()
	})
	if !r.aborting.Load() {
		w.state.Store(uint32(StateRunning))
	}
}

func (w *Worker) execute(ctx context.Context, op ParallelOperation) (more bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			more, err = false, &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return op.Execute(ctx, w)
}

func (w *Worker) abort(r *execution, err error) {
	werr := &WorkerError{Worker: w.index, Err: err}
	w.lastErr.Store(werr)
	w.state.Store(uint32(StateAborted))
	r.fail(werr)

	if errors.Is(err, ErrAborted) {
		return
	}
	lg.FromContext(r.ctx).Error("worker aborted",
		lg.String("op", r.id.String()),
		lg.Int("worker", w.index),
		lg.Any("error", err),
	)
	w.device.reportPayloadError(werr)
}
