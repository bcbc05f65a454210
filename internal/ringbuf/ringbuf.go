// Package ringbuf provides the bounded tick buffer that feeds the indicator
// engine. It keeps the most recent ticks in arrival order and overwrites the
// oldest one once full.
package ringbuf

import (
	"sync/atomic"

	"trading-simv1/internal/model"
)

// MinCapacity is the smallest capacity that still lets MACD(12,26,9) produce a line.
const MinCapacity = 26

// Ring is a fixed-capacity FIFO of PriceTick values with overwrite-oldest semantics.
// It is owned by a single goroutine (the ingestion task); only Evicted is safe
// to read concurrently.
type Ring struct {
	buf  []model.PriceTick
	mask uint64
	cap  uint64

	head uint64 // next write sequence
	tail uint64 // sequence of the oldest retained tick

	// Evicted counter (atomic, for metrics)
	evicted atomic.Uint64
}

// New creates a ring holding at most capacity ticks.
// Capacities below MinCapacity are raised to MinCapacity. Storage is rounded up
// to the next power of two for bitwise modulo; the logical capacity is exact.
func New(capacity int) *Ring {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	size := nextPow2(capacity)
	return &Ring{
		buf:  make([]model.PriceTick, size),
		mask: uint64(size - 1),
		cap:  uint64(capacity),
	}
}

// Append stores a tick, dropping the oldest one if the ring is full. O(1).
func (r *Ring) Append(t model.PriceTick) {
	if r.head-r.tail >= r.cap {
		r.tail++
		r.evicted.Add(1)
	}
	r.buf[r.head&r.mask] = t
	r.head++
}

// Snapshot returns the retained ticks, oldest first.
// The returned slice is freshly allocated and owned by the caller.
func (r *Ring) Snapshot() []model.PriceTick {
	out := make([]model.PriceTick, 0, r.Len())
	for seq := r.tail; seq < r.head; seq++ {
		out = append(out, r.buf[seq&r.mask])
	}
	return out
}

// Closes returns the close prices of the retained ticks, oldest first.
func (r *Ring) Closes() []float64 {
	out := make([]float64, 0, r.Len())
	for seq := r.tail; seq < r.head; seq++ {
		out = append(out, r.buf[seq&r.mask].Close)
	}
	return out
}

// Last returns the most recent tick, or false if the ring is empty.
func (r *Ring) Last() (model.PriceTick, bool) {
	if r.head == r.tail {
		return model.PriceTick{}, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// Reset discards every retained tick. Used when the traded symbol changes.
func (r *Ring) Reset() {
	r.head, r.tail = 0, 0
	clear(r.buf)
}

// Len returns the current number of ticks in the buffer.
func (r *Ring) Len() int {
	return int(r.head - r.tail)
}

// Cap returns the logical capacity.
func (r *Ring) Cap() int {
	return int(r.cap)
}

// Evicted returns the total number of ticks dropped to make room.
func (r *Ring) Evicted() uint64 {
	return r.evicted.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
