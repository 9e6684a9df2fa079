package compute

// QueueSize is the capacity of the payload queue shared by the workers of
// one payload operation.
const QueueSize = 64

// payloadRing is a fixed-capacity FIFO buffer of payloads.
//
// It is not safe for concurrent use; PayloadOperation guards it with its
// lock. The storage is inline so refilling never allocates.
type payloadRing[T any] struct {
	buf        [QueueSize]T
	head, tail int // read/write indices
	size       int // number of payloads currently buffered
}

// Len returns the number of buffered payloads.
func (q *payloadRing[T]) Len() int { return q.size }

// Full reports whether Push would be refused.
func (q *payloadRing[T]) Full() bool { return q.size == QueueSize }

// Push appends a payload at the tail. It returns false when the ring is
// full and the payload was not stored.
func (q *payloadRing[T]) Push(v T) bool {
	if q.size == QueueSize {
		return false
	}
	q.buf[q.tail] = v
	q.tail++
	if q.tail == QueueSize {
		q.tail = 0
	}
	q.size++
	return true
}

// Pop removes and returns the oldest payload.
//
// If the ring is empty, returns the zero value and false.
func (q *payloadRing[T]) Pop() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero // drop references held by the slot
	q.head++
	if q.head == QueueSize {
		q.head = 0
	}
	q.size--
	return v, true
}
