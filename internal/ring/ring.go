// Package ring implements the bounded, lock-protected circular queue that
// connects the object feeder, filter worker, and transport goroutines of a
// search. It is grounded directly on the original adiskd's
// src/lib/libtools/ring.c: same head/tail wraparound, same "one slot always
// empty" full test, same enqueue/dequeue rate EMA with per-producer
// last-enqueue timestamps.
package ring

import (
	"sync"
	"time"

	"github.com/opendiamond-go/adiskd/internal/constants"
)

// enqState tracks the last successful enqueue timestamp for one producer,
// the Go analogue of the C ring's per-pthread en_state slot. Producers are
// identified by a caller-assigned small integer (see Ring.Enq) rather than
// by scanning a thread id, since goroutines have no stable identity.
type enqState struct {
	used    bool
	lastEnq time.Time
}

// Ring is a fixed-capacity circular buffer of opaque values with an
// enqueue-rate and dequeue-rate EMA. Capacity is caller-specified; one slot
// is always left unused so that head==tail unambiguously means empty.
type Ring struct {
	mu   sync.Mutex
	data []any
	head int
	tail int
	size int

	enqRate float64
	deqRate float64
	lastDeq time.Time

	enqStates [constants.MaxEnqThread]enqState
}

// New creates a ring that can hold up to capacity-1 items (the original's
// one-slot-always-empty encoding of "full").
func New(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}
	return &Ring{
		data: make([]any, capacity),
		size: capacity,
	}
}

func newRate(oldRate, curRate float64) float64 {
	const w = float64(constants.RateAvgWindow)
	return ((w - 1) / w * oldRate) + (curRate / w)
}

// enqIdx returns the producer slot for producerID, allocating the first
// free slot on first use. Returns -1 if the table is full, in which case
// rate accounting for this producer is silently skipped (but enq/deq
// correctness is unaffected).
func (r *Ring) enqIdx(producerID int) int {
	// A caller-assigned id directly indexes a slot when in range; this
	// keeps lookup O(1) instead of the C original's O(MaxEnqThread) scan,
	// while preserving the "first N distinct producers get tracked,
	// excess producers silently skip rate accounting" semantics.
	if producerID < 0 {
		return -1
	}
	if producerID < len(r.enqStates) {
		r.enqStates[producerID].used = true
		return producerID
	}
	return -1
}

func (r *Ring) updateEnqRate(producerID int) {
	idx := r.enqIdx(producerID)
	if idx < 0 {
		return
	}
	now := time.Now()
	st := &r.enqStates[idx]
	if !st.lastEnq.IsZero() {
		inst := 1.0 / now.Sub(st.lastEnq).Seconds()
		r.enqRate = newRate(r.enqRate, inst)
	}
	st.lastEnq = now
}

func (r *Ring) updateDeqRate() {
	now := time.Now()
	if !r.lastDeq.IsZero() {
		inst := 1.0 / now.Sub(r.lastDeq).Seconds()
		r.deqRate = newRate(r.deqRate, inst)
	}
	r.lastDeq = now
}

// Empty reports whether the ring currently holds no items. As a side
// effect, observing empty resets the dequeue-rate timestamp so that the
// stall is not folded into the next successful dequeue's instantaneous
// rate.
func (r *Ring) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emptyLocked()
}

func (r *Ring) emptyLocked() bool {
	if r.head == r.tail {
		r.lastDeq = time.Time{}
		return true
	}
	return false
}

// Full reports whether the ring has no free slot for another enqueue.
// It carries no producer identity, so unlike a rejected Enq it resets no
// producer's last-enqueue timestamp.
func (r *Ring) Full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fullLocked(-1)
}

func (r *Ring) fullLocked(producerID int) bool {
	newHead := r.head + 1
	if newHead >= r.size {
		newHead = 0
	}
	if newHead == r.tail {
		if idx := r.enqIdx(producerID); idx >= 0 {
			r.enqStates[idx].lastEnq = time.Time{}
		}
		return true
	}
	return false
}

// Count returns the number of items currently queued.
func (r *Ring) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked()
}

func (r *Ring) countLocked() int {
	var diff int
	if r.head >= r.tail {
		diff = r.head - r.tail
	} else {
		diff = (r.head + r.size) - r.tail
	}
	return diff
}

// Enq attempts to enqueue an item. producerID identifies the calling
// goroutine/worker for enqueue-rate attribution (pass a stable small
// integer per feeder); pass -1 if no per-producer rate is needed. Returns
// false if the ring is full; Enq never blocks.
func (r *Ring) Enq(item any, producerID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fullLocked(producerID) {
		return false
	}

	r.data[r.head] = item
	r.head++
	if r.head >= r.size {
		r.head = 0
	}
	r.updateEnqRate(producerID)
	return true
}

// Deq attempts to dequeue an item. Returns (nil, false) if the ring is
// empty; Deq never blocks.
func (r *Ring) Deq() (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emptyLocked() {
		return nil, false
	}

	item := r.data[r.tail]
	r.data[r.tail] = nil
	r.tail++
	if r.tail >= r.size {
		r.tail = 0
	}
	r.updateDeqRate()
	return item, true
}

// EnqRate returns the current smoothed enqueue rate, in items/second.
func (r *Ring) EnqRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enqRate
}

// DeqRate returns the current smoothed dequeue rate, in items/second.
func (r *Ring) DeqRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deqRate
}

// Capacity returns the usable capacity (size-1, since one slot is always
// kept empty).
func (r *Ring) Capacity() int {
	return r.size - 1
}

// DrainAll dequeues and returns every item currently queued, in FIFO order.
// Used by the search state machine's flush_objs on DRAINING->IDLE.
func (r *Ring) DrainAll() []any {
	var out []any
	for {
		item, ok := r.Deq()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}
