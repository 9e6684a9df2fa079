package compute

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// execution tracks one dispatched operation from start to completion.
type execution struct {
	id      uuid.UUID
	op      Operation
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	// remaining counts assigned workers that have not finished yet.
	remaining atomic.Int32
	aborting  atomic.Bool
	executed  atomic.Uint64

	// task is set for async operations only.
	task *ComputeTask

	mu  sync.Mutex
	err error

	done chan struct{}
}

func newExecution(parent context.Context, op Operation) *execution {
	ctx, cancel := context.WithCancel(parent)
	return &execution{
		id:      uuid.New(),
		op:      op,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

func (e *execution) fail(err error) {
	e.mu.Lock()
	e.err = multierr.Append(e.err, err)
	e.mu.Unlock()
}

func (e *execution) result() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Device owns a fixed pool of workers and runs one operation at a time on
// it.
//
// Workers are created with the device and live until Close. A parallel
// operation is handed to every usable worker, which then drives it on its
// own. An async operation runs without any worker. Operations queued with
// Enqueue start as soon as the current one finishes.
type Device struct {
	opts    Options
	ctx     context.Context
	cancel  context.CancelFunc
	workers []*Worker
	gate    *Gate
	paused  atomic.Bool
	metrics MetricsPolicy

	mu      sync.Mutex
	current *execution
	pending *queue.Queue // of OperationFactory
	errs    error
	idle    chan struct{} // closed while nothing is current
	closed  bool

	busy   atomic.Bool
	latest atomic.Pointer[execution]

	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

// NewDevice starts a device with opts.Workers workers.
func NewDevice(opts Options) (*Device, error) {
	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPopulation, opts.Workers)
	}
	opts.FillDefaults()

	ctx, cancel := context.WithCancel(opts.Ctx)
	d := &Device{
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		gate:    NewGate(false),
		metrics: opts.Metrics,
		pending: queue.New(),
		idle:    make(chan struct{}),
		quit:    make(chan struct{}),
	}
	close(d.idle)

	d.workers = make([]*Worker, opts.Workers)
	for i := range d.workers {
		d.workers[i] = newWorker(i, d)
	}
	for _, w := range d.workers {
		d.wg.Add(1)
		go w.loop(&d.wg)
	}

	lg.FromContext(d.ctx).Info("compute device started",
		lg.Int("population", opts.Workers),
		lg.Any("pinned", opts.PinWorkers),
	)
	return d, nil
}

// Population returns the number of workers.
func (d *Device) Population() int { return len(d.workers) }

// Workers returns the live worker array. The slice must not be modified.
func (d *Device) Workers() []*Worker { return d.workers }

// Metrics returns the metrics policy in use.
func (d *Device) Metrics() MetricsPolicy { return d.metrics }

// IsIdle reports whether no operation is in flight and no worker is taking
// part in one.
func (d *Device) IsIdle() bool {
	if d.busy.Load() {
		return false
	}
	for _, w := range d.workers {
		if w.State().busy() {
			return false
		}
	}
	return true
}

// FillStatuses copies the state of every worker into dst and returns how
// many were written. Workers keep running while the copy is taken, so the
// snapshot is not transactional.
func (d *Device) FillStatuses(dst []State) int {
	n := min(len(dst), len(d.workers))
	for i := 0; i < n; i++ {
		dst[i] = d.workers[i].State()
	}
	return n
}

// LatestOperation returns the most recently started operation. It stays
// available after completion until the next operation starts.
func (d *Device) LatestOperation() Operation {
	if e := d.latest.Load(); e != nil {
		return e.op
	}
	return nil
}

// Dispatch builds an operation with f and starts it. It returns
// ErrDeviceBusy if another operation is current.
//
// The operation is validated before any worker sees it. Dispatch returns as
// soon as the work is handed out; use Wait to observe completion.
func (d *Device) Dispatch(f OperationFactory) error {
	if f == nil {
		return ErrNilFactory
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if d.current != nil {
		return ErrDeviceBusy
	}
	return d.startLocked(f)
}

// Enqueue starts f right away when the device is free, otherwise after all
// previously queued operations have finished.
//
// Errors building a queued operation are collected and returned by Wait.
func (d *Device) Enqueue(f OperationFactory) error {
	if f == nil {
		return ErrNilFactory
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if d.current != nil {
		d.pending.Add(f)
		return nil
	}
	return d.startLocked(f)
}

// Pending returns the number of queued operations.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Length()
}

func (d *Device) startLocked(f OperationFactory) error {
	op := f.CreateOperation(d.workers)
	if op == nil {
		return ErrNilOperation
	}
	if err := op.Validate(); err != nil {
		return fmt.Errorf("compute: validate operation: %w", err)
	}

	switch o := op.(type) {
	case ParallelOperation:
		targets := make([]*Worker, 0, len(d.workers))
		for _, w := range d.workers {
			switch w.State() {
			case StateIdle, StateCompleted:
				targets = append(targets, w)
			}
		}
		if len(targets) == 0 {
			return ErrNoWorkers
		}

		e := newExecution(d.ctx, op)
		e.remaining.Store(int32(len(targets)))
		d.beginLocked(e, "parallel", len(targets))
		for _, w := range targets {
			w.assign(&assignment{exec: e, op: o})
		}

	case AsyncOperation:
		e := newExecution(d.ctx, op)
		d.beginLocked(e, "async", 0)
		e.task = o.Execute(e.ctx)
		if e.task == nil {
			e.task = CompletedTask
		}
		if e.task.IsCompleted() {
			d.finishLocked(e)
			return nil
		}
		d.wg.Add(1)
		go d.awaitTask(e)

	default:
		return ErrUnknownOperation
	}
	return nil
}

func (d *Device) beginLocked(e *execution, kind string, workers int) {
	// a hand-off from a finished operation keeps the open idle channel, so
	// waiters blocked on it are released once the queue is drained
	select {
	case <-d.idle:
		d.idle = make(chan struct{})
	default:
	}
	d.current = e
	d.busy.Store(true)
	d.latest.Store(e)
	d.metrics.IncDispatched()

	lg.FromContext(e.ctx).Info("operation dispatched",
		lg.String("op", e.id.String()),
		lg.String("kind", kind),
		lg.Int("workers", workers),
	)
}

func (d *Device) awaitTask(e *execution) {
	defer d.wg.Done()
	<-e.task.Done()

	d.mu.Lock()
	d.finishLocked(e)
	d.mu.Unlock()
}

// workerDone is called by each assigned worker once it has left the
// operation. The last one finishes the execution.
func (d *Device) workerDone(e *execution) {
	if e.remaining.Add(-1) != 0 {
		return
	}
	d.mu.Lock()
	d.finishLocked(e)
	d.mu.Unlock()
}

func (d *Device) finishLocked(e *execution) {
	if e.task != nil {
		if err := e.task.Err(); err != nil {
			e.fail(err)
		}
	}
	err := e.result()
	executed := e.executed.Load()

	d.metrics.AddExecuted(executed)
	logger := lg.FromContext(e.ctx).With(
		lg.String("op", e.id.String()),
		lg.String("elapsed", time.Since(e.started).String()),
		lg.Int("executed", int(executed)),
	)
	if err != nil {
		d.metrics.IncFaulted()
		d.errs = multierr.Append(d.errs, err)
		logger.Warn("operation finished with errors", lg.Any("error", err))
	} else {
		d.metrics.IncCompleted()
		logger.Info("operation completed")
	}

	e.cancel()
	close(e.done)

	if d.current == e {
		d.current = nil
	}
	for d.current == nil && !d.closed && d.pending.Length() > 0 {
		f := d.pending.Remove().(OperationFactory)
		if err := d.startLocked(f); err != nil {
			d.errs = multierr.Append(d.errs, err)
			lg.FromContext(d.ctx).Error("queued operation failed to start", lg.Any("error", err))
		}
	}
	if d.current == nil {
		d.busy.Store(false)
		select {
		case <-d.idle:
		default:
			close(d.idle)
		}
	}
}

// Wait blocks until no operation is current and none is queued, or ctx is
// done. It returns, and clears, the errors of every operation that finished
// since the previous Wait.
func (d *Device) Wait(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.current == nil {
			err := d.errs
			d.errs = nil
			d.mu.Unlock()
			return err
		}
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pause asks every worker to stop at its next payload boundary. A worker
// never abandons a payload it has started. Async operations are not
// affected.
func (d *Device) Pause() {
	d.gate.SetSignaling(true)
	d.paused.Store(true)
	for _, w := range d.workers {
		w.state.CompareAndSwap(uint32(StateRunning), uint32(StatePausing))
	}
	lg.FromContext(d.ctx).Info("compute device paused")
}

// Resume releases paused workers.
func (d *Device) Resume() {
	d.paused.Store(false)
	for _, w := range d.workers {
		w.state.CompareAndSwap(uint32(StatePausing), uint32(StateRunning))
	}
	d.gate.SetSignaling(false)
	lg.FromContext(d.ctx).Info("compute device resumed")
}

// Paused reports whether a pause is in effect.
func (d *Device) Paused() bool { return d.paused.Load() }

// Abort stops the current operation. Workers drop it at their next payload
// boundary and become Aborted; the operation context is canceled so long
// running payloads can bail out early. Queued operations still run on the
// workers that remain usable.
//
// Abort does not preempt a payload already inside Main. A payload that
// ignores its context runs to completion before its worker aborts.
func (d *Device) Abort() {
	d.mu.Lock()
	e := d.current
	d.mu.Unlock()
	if e == nil {
		return
	}

	e.aborting.Store(true)
	e.cancel()
	d.gate.Signal()
	lg.FromContext(d.ctx).Warn("operation abort requested", lg.String("op", e.id.String()))
}

// Recover returns every aborted worker to Idle so it can take new work. It
// fails with ErrDeviceBusy while an operation is current.
func (d *Device) Recover() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current != nil {
		return 0, ErrDeviceBusy
	}
	n := 0
	for _, w := range d.workers {
		if w.reset() {
			n++
		}
	}
	if n > 0 {
		lg.FromContext(d.ctx).Info("recovered aborted workers", lg.Int("workers", n))
	}
	return n, nil
}

// Close aborts the current operation, drops queued ones and joins every
// worker. It returns ctx.Err() if the workers do not stop in time; Close
// may then be called again.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for d.pending.Length() > 0 {
			d.pending.Remove()
		}
	}
	d.mu.Unlock()

	d.Abort()
	d.quitOnce.Do(func() {
		d.cancel()
		close(d.quit)
		d.gate.SetSignaling(false)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()
	select {
	case <-done:
		lg.FromContext(d.ctx).Info("compute device stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
