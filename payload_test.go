package compute_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	cp "github.com/azargarov/compute"
)

// drain runs op on n goroutines until every one of them sees exhaustion.
func drain(t *testing.T, op *cp.PayloadOperation[int], n int) {
	t.Helper()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				more, err := op.Execute(context.Background(), nil)
				if err != nil {
					t.Errorf("execute: %v", err)
					return
				}
				if !more {
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestPayloadOperationExactlyOnce(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		workers int
	}{
		{"Empty", 0, 4},
		{"One", 1, 4},
		{"PartialBatch", 130, 4},
		{"ExactBatch", cp.QueueSize, 3},
		{"Many", 5000, 8},
		{"SingleWorker", 257, 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			src := newIntSource(tc.total)
			op := cp.NewPayloadOperation[int](src)
			drain(t, op, tc.workers)

			if got := src.processed(t); got != tc.total {
				t.Fatalf("processed %d payloads; want %d", got, tc.total)
			}
			if got := op.Claimed(); got != uint64(tc.total) {
				t.Fatalf("Claimed() = %d; want %d", got, tc.total)
			}
			if got := op.Progress(); got != 1 {
				t.Fatalf("Progress() = %v after drain; want 1", got)
			}
		})
	}
}

// boundedSource checks the queue never grows beyond QueueSize while
// payloads are being processed.
type boundedSource struct {
	*intSource
	op      *cp.PayloadOperation[int]
	maxSeen atomic.Int64
}

func (s *boundedSource) Main(ctx context.Context, p int, w *cp.Worker) error {
	n := int64(s.op.Buffered())
	for {
		cur := s.maxSeen.Load()
		if n <= cur || s.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	return s.intSource.Main(ctx, p, w)
}

func TestPayloadQueueIsBounded(t *testing.T) {
	src := &boundedSource{intSource: newIntSource(2000)}
	op := cp.NewPayloadOperation[int](src)
	src.op = op

	drain(t, op, 4)

	if got := src.maxSeen.Load(); got > cp.QueueSize {
		t.Fatalf("queue held %d payloads; limit is %d", got, cp.QueueSize)
	}
	if got := src.processed(t); got != 2000 {
		t.Fatalf("processed %d; want 2000", got)
	}
}

// countingSource counts NextPayload calls made after exhaustion.
type countingSource struct {
	remaining int
	afterEnd  int
}

func (s *countingSource) NextPayload() (int, bool) {
	if s.remaining == 0 {
		s.afterEnd++
		return 0, false
	}
	s.remaining--
	return s.remaining, true
}

func (s *countingSource) Main(context.Context, int, *cp.Worker) error { return nil }

func TestExhaustionIsSticky(t *testing.T) {
	src := &countingSource{remaining: 3}
	op := cp.NewPayloadOperation[int](src)

	for i := 0; i < 3; i++ {
		if _, ok := op.TryGetPayload(); !ok {
			t.Fatalf("TryGetPayload #%d returned false", i)
		}
	}
	for i := 0; i < 10; i++ {
		if _, ok := op.TryGetPayload(); ok {
			t.Fatal("TryGetPayload returned a payload after exhaustion")
		}
	}
	if src.afterEnd != 1 {
		t.Fatalf("NextPayload called %d times after exhaustion; want 1", src.afterEnd)
	}
}

type panickingSource struct{ countingSource }

func (s *panickingSource) NextPayload() (int, bool) { panic("producer broke") }

func TestNextPayloadPanicReleasesLock(t *testing.T) {
	op := cp.NewPayloadOperation[int](&panickingSource{})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected producer panic to propagate")
			}
		}()
		op.TryGetPayload()
	}()

	// Buffered takes the same lock
	if got := op.Buffered(); got != 0 {
		t.Fatalf("Buffered() = %d; want 0", got)
	}
}

func TestExecuteReturnsMainError(t *testing.T) {
	src := newIntSource(3)
	src.failAt = 1
	op := cp.NewPayloadOperation[int](src)

	more, err := op.Execute(context.Background(), nil)
	if more || !errors.Is(err, errBoom) {
		t.Fatalf("Execute = %v, %v; want false, errBoom", more, err)
	}
	more, err = op.Execute(context.Background(), nil)
	if !more || err != nil {
		t.Fatalf("second Execute = %v, %v; want true, nil", more, err)
	}
}

func TestPayloadOperationValidate(t *testing.T) {
	if err := cp.NewPayloadOperation[int](nil).Validate(); !errors.Is(err, cp.ErrNilSource) {
		t.Fatalf("nil source: got %v", err)
	}
	if err := cp.NewPayloadOperation[int](&invalidSource{}).Validate(); !errors.Is(err, errBoom) {
		t.Fatalf("invalid source: got %v", err)
	}
}

type invalidSource struct{ countingSource }

func (invalidSource) Validate() error { return errBoom }

// endlessSource never runs dry.
type endlessSource struct{ n int }

func (s *endlessSource) NextPayload() (int, bool)                    { s.n++; return s.n, true }
func (s *endlessSource) Main(context.Context, int, *cp.Worker) error { return nil }

func TestTryGetPayloadDoesNotAllocate(t *testing.T) {
	op := cp.NewPayloadOperation[int](&endlessSource{})
	allocs := testing.AllocsPerRun(10*cp.QueueSize, func() {
		if _, ok := op.TryGetPayload(); !ok {
			t.Fatal("endless source ran dry")
		}
	})
	if allocs != 0 {
		t.Fatalf("TryGetPayload allocated %.1f times per run", allocs)
	}
}
