package compute

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// MaxLabels is the largest number of distinct labels a LabelSet can hold.
const MaxLabels = 16

// cachePad is used to prevent false sharing between hot fields.
type cachePad = cpu.CacheLinePad

// Label identifies one counted event category inside a LabelSet.
//
// Callers usually declare their labels as constants in the same order as
// the names handed to NewLabelSet:
//
//	const (
//		EventRay compute.Label = iota
//		EventHit
//	)
//
//	var renderEvents = compute.MustLabelSet("ray", "hit")
type Label uint8

// LabelSet is a closed set of event names. It is fixed when created and
// never changes, which keeps Report free of lookups and allocations.
type LabelSet struct {
	names [MaxLabels]string
	n     int
}

// NewLabelSet builds a label set. Label i is names[i].
func NewLabelSet(names ...string) (*LabelSet, error) {
	if len(names) > MaxLabels {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyLabels, len(names), MaxLabels)
	}
	s := &LabelSet{n: len(names)}
	for i, name := range names {
		for j := 0; j < i; j++ {
			if names[j] == name {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, name)
			}
		}
		s.names[i] = name
	}
	return s, nil
}

// MustLabelSet is like NewLabelSet but panics on error. It is meant for
// package level variables.
func MustLabelSet(names ...string) *LabelSet {
	s, err := NewLabelSet(names...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of labels in the set.
func (s *LabelSet) Len() int {
	if s == nil {
		return 0
	}
	return s.n
}

// Name returns the display name of l.
func (s *LabelSet) Name(l Label) string {
	if s == nil || int(l) >= s.n {
		return ""
	}
	return s.names[l]
}

// Lookup finds the label with the given name.
func (s *LabelSet) Lookup(name string) (Label, bool) {
	for i := 0; i < s.Len(); i++ {
		if s.names[i] == name {
			return Label(i), true
		}
	}
	return 0, false
}

// EventRow is a (label, count) snapshot of one event category.
type EventRow struct {
	Label string
	Count uint64
}

// EventCounters is the per-worker counter record.
//
// Only the owning worker writes to it; other goroutines read it through
// Snapshot or Sum. Counters wrap around on overflow.
type EventCounters struct {
	labels *LabelSet
	counts [MaxLabels]atomic.Uint64
	_      cachePad
}

// NewEventCounters allocates one counter record per worker.
func NewEventCounters(labels *LabelSet, population int) []EventCounters {
	c := make([]EventCounters, population)
	for i := range c {
		c[i].labels = labels
	}
	return c
}

// Report counts one occurrence of l.
func (c *EventCounters) Report(l Label) {
	c.counts[l].Add(1)
}

// ReportN counts n occurrences of l.
func (c *EventCounters) ReportN(l Label, n uint64) {
	c.counts[l].Add(n)
}

// Count returns the current value of l.
func (c *EventCounters) Count(l Label) uint64 {
	return c.counts[l].Load()
}

// Labels returns the label set the counters were created with.
func (c *EventCounters) Labels() *LabelSet { return c.labels }

// Reset zeroes every counter. It must only be called by the owner.
func (c *EventCounters) Reset() {
	for i := range c.counts {
		c.counts[i].Store(0)
	}
}

// Snapshot copies the current counts into a value aggregate.
func (c *EventCounters) Snapshot() EventTotals {
	t := EventTotals{labels: c.labels}
	for i := 0; i < c.labels.Len(); i++ {
		t.counts[i] = c.counts[i].Load()
	}
	return t
}

// EventTotals is a plain value aggregate of counts, as produced by Sum.
type EventTotals struct {
	labels *LabelSet
	counts [MaxLabels]uint64
}

// Sum folds per-worker counters into one aggregate by plain addition.
//
// The result does not depend on the order of src.
func Sum(src []EventCounters) EventTotals {
	var t EventTotals
	for i := range src {
		c := &src[i]
		if t.labels == nil {
			t.labels = c.labels
		}
		for j := 0; j < c.labels.Len(); j++ {
			t.counts[j] += c.counts[j].Load()
		}
	}
	return t
}

// SumTotals adds already collected aggregates together.
func SumTotals(totals ...EventTotals) EventTotals {
	var t EventTotals
	for _, o := range totals {
		t = t.Add(o)
	}
	return t
}

// Add returns t + o, label by label.
func (t EventTotals) Add(o EventTotals) EventTotals {
	if t.labels == nil {
		t.labels = o.labels
	}
	for i := range t.counts {
		t.counts[i] += o.counts[i]
	}
	return t
}

// Len returns the number of distinct labels.
func (t EventTotals) Len() int { return t.labels.Len() }

// Count returns the total recorded for l.
func (t EventTotals) Count(l Label) uint64 { return t.counts[l] }

// Row returns the i-th label and its count.
func (t EventTotals) Row(i int) EventRow {
	return EventRow{Label: t.labels.Name(Label(i)), Count: t.counts[i]}
}

// FillRows copies rows into dst and returns how many were written.
func (t EventTotals) FillRows(dst []EventRow) int {
	n := min(len(dst), t.Len())
	for i := 0; i < n; i++ {
		dst[i] = t.Row(i)
	}
	return n
}
