package compute_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	cp "github.com/azargarov/compute"
)

var errBoom = errors.New("boom")

var shaData = []byte("some deterministic payloadsome deterministic payloadsome deterministic payloadsome deterministic payload")

const (
	eventPayload cp.Label = iota
	eventEven
)

var testLabels = cp.MustLabelSet("payload", "even")

// intSource yields 1..n and records how often each value reached Main.
type intSource struct {
	n    int
	next int // guarded by the payload queue lock

	seen   []atomic.Int32
	events []cp.EventCounters

	delay   time.Duration
	failAt  int
	panicAt int
	sha     bool

	started chan struct{}
	once    atomic.Bool
}

func newIntSource(n int) *intSource {
	return &intSource{
		n:       n,
		seen:    make([]atomic.Int32, n+1),
		started: make(chan struct{}),
	}
}

func (s *intSource) NextPayload() (int, bool) {
	if s.next >= s.n {
		return 0, false
	}
	s.next++
	return s.next, true
}

func (s *intSource) Main(ctx context.Context, p int, w *cp.Worker) error {
	if s.once.CompareAndSwap(false, true) {
		close(s.started)
	}
	s.seen[p].Add(1)
	if s.events != nil && w != nil {
		ev := &s.events[w.Index()]
		ev.Report(eventPayload)
		if p%2 == 0 {
			ev.Report(eventEven)
		}
	}
	if s.sha {
		_ = sha256.Sum256(shaData)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if p == s.failAt {
		return errBoom
	}
	if p == s.panicAt {
		panic("payload panic")
	}
	return nil
}

func (s *intSource) FillEventRows(dst []cp.EventRow) int {
	return cp.EventsOf(s.events, dst)
}

// processed returns how many distinct payloads reached Main, and fails the
// test if any of them reached it more than once.
func (s *intSource) processed(t *testing.T) int {
	t.Helper()
	n := 0
	for i := 1; i <= s.n; i++ {
		switch c := s.seen[i].Load(); c {
		case 0:
		case 1:
			n++
		default:
			t.Fatalf("payload %d processed %d times", i, c)
		}
	}
	return n
}

// payloadFactory builds a payload operation over src with per-worker event
// counters sized to the live worker set.
func payloadFactory(src *intSource) cp.OperationFactory {
	return cp.OperationFactoryFunc(func(ws []*cp.Worker) cp.Operation {
		src.events = cp.NewEventCounters(testLabels, len(ws))
		return cp.NewPayloadOperation[int](src)
	})
}

func asyncFactory(fn cp.AsyncFunc) cp.OperationFactory {
	return cp.OperationFactoryFunc(func([]*cp.Worker) cp.Operation { return fn })
}

// syncOp is an async operation whose work is already done when Execute
// returns.
type syncOp struct {
	ran atomic.Bool
	out *cp.Box[string]
}

func (o *syncOp) Validate() error                 { return nil }
func (o *syncOp) Progress() float64               { return 1 }
func (o *syncOp) FillEventRows([]cp.EventRow) int { return 0 }

func (o *syncOp) Execute(context.Context) *cp.ComputeTask {
	o.ran.Store(true)
	if o.out != nil {
		o.out.Publish("prepared")
	}
	return cp.CompletedTask
}

func newTestDevice(t *testing.T, workers int) *cp.Device {
	t.Helper()
	return newTestDeviceWith(t, cp.Options{Workers: workers})
}

func newTestDeviceWith(t *testing.T, opts cp.Options) *cp.Device {
	t.Helper()

	d, err := cp.NewDevice(opts)
	if err != nil {
		t.Fatalf("new device: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Close(ctx); err != nil {
			t.Errorf("close device: %v", err)
		}
	})
	return d
}

func waitDevice(t *testing.T, d *cp.Device) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := d.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("device did not become idle")
	}
	return err
}

func statesOf(d *cp.Device) cp.StateCounts {
	states := make([]cp.State, d.Population())
	d.FillStatuses(states)
	return cp.CountStates(states)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
	}
	t.Fatal("condition not satisfied before timeout")
}
