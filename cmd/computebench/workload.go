package main

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync/atomic"

	cp "github.com/azargarov/compute"
)

const numBlocks = 256

var errNoBlocks = errors.New("no data blocks prepared")

const (
	eventHashed cp.Label = iota
	eventZeroByte
)

var hashLabels = cp.MustLabelSet("hashed", "zero_lead")

// prepareBlocks fills numBlocks deterministic data blocks in parallel and
// publishes them into out.
func prepareBlocks(blockSize, limit int, out *cp.Box[[][]byte]) cp.AsyncFunc {
	return func(ctx context.Context) error {
		blocks := make([][]byte, numBlocks)
		task := cp.Parallel(ctx, numBlocks, limit, func(ctx context.Context, i int) error {
			b := make([]byte, blockSize)
			seed := sha256.Sum256(binary.LittleEndian.AppendUint64(nil, uint64(i)))
			for off := 0; off < len(b); off += len(seed) {
				copy(b[off:], seed[:])
			}
			blocks[i] = b
			return nil
		})
		if err := task.Await(ctx); err != nil {
			return err
		}
		out.Publish(blocks)
		return nil
	}
}

// hashSource hashes one of the prepared blocks per payload.
type hashSource struct {
	blocks [][]byte
	total  int
	rounds int

	next   int
	done   atomic.Int64
	events []cp.EventCounters
}

func newHashSource(blocks [][]byte, total, rounds, workers int) *hashSource {
	return &hashSource{
		blocks: blocks,
		total:  total,
		rounds: rounds,
		events: cp.NewEventCounters(hashLabels, workers),
	}
}

func (s *hashSource) Validate() error {
	if len(s.blocks) == 0 && s.total > 0 {
		return errNoBlocks
	}
	return nil
}

func (s *hashSource) NextPayload() (int, bool) {
	if s.next >= s.total {
		return 0, false
	}
	s.next++
	return s.next - 1, true
}

func (s *hashSource) Main(ctx context.Context, i int, w *cp.Worker) error {
	sum := sha256.Sum256(s.blocks[i%len(s.blocks)])
	for r := 1; r < s.rounds; r++ {
		sum = sha256.Sum256(sum[:])
	}

	ev := &s.events[w.Index()]
	ev.Report(eventHashed)
	if sum[0] == 0 {
		ev.Report(eventZeroByte)
	}
	s.done.Add(1)
	return nil
}

func (s *hashSource) Progress() float64 {
	if s.total == 0 {
		return 1
	}
	return float64(s.done.Load()) / float64(s.total)
}

func (s *hashSource) FillEventRows(dst []cp.EventRow) int {
	return cp.EventsOf(s.events, dst)
}
