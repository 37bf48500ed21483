// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stealq

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// BoundedRing is a single-producer, multi-consumer work-stealing ring
// queue of fixed capacity.
//
// Exactly one goroutine (the owner) may call the producer-only methods:
// Pop, PopMany, MaybePush, MaybePushMany, Push, PushMany,
// PushManyUnchecked. Any number of other goroutines may call the
// consumer-safe methods: ConsumerLen, ConsumerPopMany, StealInto.
//
// head and tail are monotonic counters mod 2^64; the slot index is
// always counter&mask. The distance between a preempted consumer's
// cached head and the producer's current head would need to exceed
// 2^64 producer steps to alias, which is the same statistical ABA
// argument the teacher's SCQ-based queues rely on for their 64-bit
// counters.
type BoundedRing[T any] struct {
	_        pad
	head     atomix.Uint64 // consumers CAS here
	_        pad
	tail     atomix.Uint64 // only the producer writes here
	_        pad
	buffer   []T
	capacity uint64
	mask     uint64

	alwaysSteal bool
}

// NewBoundedRing creates a new bounded work-stealing ring.
// Capacity rounds up to the next power of 2. Panics if capacity < 2.
func NewBoundedRing[T any](capacity int) *BoundedRing[T] {
	if capacity < 2 {
		panic("stealq: capacity must be >= 2")
	}

	n := uint64(roundToPow2(capacity))

	return &BoundedRing[T]{
		buffer:   make([]T, n),
		capacity: n,
		mask:     n - 1,
	}
}

// Cap returns the ring's fixed capacity.
func (r *BoundedRing[T]) Cap() int {
	return int(r.capacity)
}

func ringLen(head, tail uint64) int {
	return int(tail - head)
}

// writeAt writes s into the buffer starting at the logical position
// tail (wrap-aware) and returns the new logical tail. It does not
// touch the tail atomic; callers publish it themselves.
func (r *BoundedRing[T]) writeAt(tail uint64, s []T) uint64 {
	n := uint64(len(s))
	if n == 0 {
		return tail
	}

	idx := tail & r.mask
	right := r.capacity - idx

	if n <= right {
		copy(r.buffer[idx:idx+n], s)
	} else {
		copy(r.buffer[idx:], s[:right])
		copy(r.buffer[:n-right], s[right:])
	}

	return tail + n
}

// readInto copies n live elements starting at the logical position
// head (wrap-aware) into dst. It does not touch head; the caller must
// already hold the right to read that range (producer-only, or a
// consumer CAS that has not yet been validated — the copy is
// speculative in that case).
func (r *BoundedRing[T]) readInto(dst []T, head uint64) {
	n := uint64(len(dst))
	if n == 0 {
		return
	}

	idx := head & r.mask
	right := r.capacity - idx

	if n <= right {
		copy(dst, r.buffer[idx:idx+n])
	} else {
		copy(dst, r.buffer[idx:])
		copy(dst[right:], r.buffer[:n-right])
	}
}

// clearRange zeroes n slots starting at the logical position start so
// that popped or stolen elements don't keep referenced objects alive
// longer than necessary.
func (r *BoundedRing[T]) clearRange(start, n uint64) {
	var zero T
	for i := uint64(0); i < n; i++ {
		r.buffer[(start+i)&r.mask] = zero
	}
}

// liveSlices returns the up-to-two contiguous spans covering the n
// live elements starting at the logical position head.
func (r *BoundedRing[T]) liveSlices(head, n uint64) (first, last []T) {
	idx := head & r.mask
	right := r.capacity - idx

	if n <= right {
		return r.buffer[idx : idx+n], nil
	}

	return r.buffer[idx:], r.buffer[:n-right]
}

// ProducerLen returns the number of elements in the queue.
//
// Must only be called by the producer.
func (r *BoundedRing[T]) ProducerLen() int {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadRelaxed() // only the producer changes tail

	return ringLen(head, tail)
}

// Pop removes and returns the oldest element.
//
// Must only be called by the producer.
func (r *BoundedRing[T]) Pop() (T, bool) {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadRelaxed() // only the producer changes tail
	sw := spin.Wait{}

	for {
		if head == tail {
			var zero T
			return zero, false
		}

		if r.head.CompareAndSwapAcqRel(head, head+1) {
			idx := head & r.mask
			v := r.buffer[idx]
			r.clearRange(head, 1)
			return v, true
		}

		sw.Once()
		head = r.head.LoadAcquire()
	}
}

// PopMany removes up to len(dst) elements into dst and returns how
// many were popped.
//
// Must only be called by the producer.
func (r *BoundedRing[T]) PopMany(dst []T) int {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadRelaxed() // only the producer changes tail
	sw := spin.Wait{}

	for {
		available := ringLen(head, tail)
		n := len(dst)
		if n > available {
			n = available
		}
		if n == 0 {
			return 0
		}

		if r.head.CompareAndSwapAcqRel(head, head+uint64(n)) {
			r.readInto(dst[:n], head)
			r.clearRange(head, uint64(n))
			return n
		}

		sw.Once()
		head = r.head.LoadAcquire()
	}
}

// pushUnchecked writes v at the current tail and publishes the new
// tail. Caller must have already verified there is room.
func (r *BoundedRing[T]) pushUnchecked(v T, tail uint64) {
	r.buffer[tail&r.mask] = v
	r.tail.StoreRelease(tail + 1)
}

// MaybePush pushes v, or returns [ErrWouldBlock] if the ring is full.
//
// Must only be called by the producer.
func (r *BoundedRing[T]) MaybePush(v T) error {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadRelaxed() // only the producer changes tail

	if ringLen(head, tail) == int(r.capacity) {
		return ErrWouldBlock
	}

	r.pushUnchecked(v, tail)

	return nil
}

// MaybePushMany pushes all of s, or returns [ErrWouldBlock] without
// pushing anything if there isn't room for the whole slice.
//
// Must only be called by the producer.
func (r *BoundedRing[T]) MaybePushMany(s []T) error {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadRelaxed() // only the producer changes tail

	if ringLen(head, tail)+len(s) > int(r.capacity) {
		return ErrWouldBlock
	}

	tail = r.writeAt(tail, s)
	r.tail.StoreRelease(tail)

	return nil
}

// PushManyUnchecked writes first then last at the tail without any
// capacity check.
//
// Must only be called by the producer, and the caller asserts that
// len(first)+len(last) fits in the remaining capacity. Violating this
// is undefined behavior; with [AssertionsEnabled] it panics instead.
func (r *BoundedRing[T]) PushManyUnchecked(first, last []T) {
	tail := r.tail.LoadRelaxed() // only the producer changes tail

	if AssertionsEnabled {
		head := r.head.LoadAcquire()
		if ringLen(head, tail)+len(first)+len(last) > int(r.capacity) {
			panic("stealq: PushManyUnchecked exceeds capacity")
		}
	}

	tail = r.writeAt(tail, first)
	tail = r.writeAt(tail, last)
	r.tail.StoreRelease(tail)
}

// handleOverflowOne spills half the queue plus value to sink. Called
// only once the ring has been observed full.
func (r *BoundedRing[T]) handleOverflowOne(tail, head uint64, sink OverflowSink[T], value T) {
	k := r.capacity / 2
	sw := spin.Wait{}

	for {
		first, last := r.liveSlices(head, k)

		if r.head.CompareAndSwapAcqRel(head, head+k) {
			sink.PushManyAndOne(first, last, value)
			r.clearRange(head, k)
			return
		}

		sw.Once()
		head = r.head.LoadAcquire()

		if uint64(ringLen(head, tail)) < k {
			// Stealers already made room; the value now fits normally.
			r.pushUnchecked(value, tail)
			return
		}
	}
}

// handleOverflowMany spills half the queue plus slice to sink. Called
// only once the ring has been observed unable to fit slice.
func (r *BoundedRing[T]) handleOverflowMany(tail, head uint64, sink OverflowSink[T], slice []T) {
	k := r.capacity / 2
	sw := spin.Wait{}

	for {
		first, last := r.liveSlices(head, k)

		if r.head.CompareAndSwapAcqRel(head, head+k) {
			sink.PushManyAndSlice(first, last, slice)
			r.clearRange(head, k)
			return
		}

		sw.Once()
		head = r.head.LoadAcquire()
		length := ringLen(head, tail)

		if uint64(length) < k && length+len(slice) <= int(r.capacity) {
			// Stealers already made room; the slice now fits normally.
			tail = r.writeAt(tail, slice)
			r.tail.StoreRelease(tail)
			return
		}
	}
}

// Push pushes v, spilling half the queue plus v to sink if the ring
// is full.
//
// Must only be called by the producer.
func (r *BoundedRing[T]) Push(v T, sink OverflowSink[T]) {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadRelaxed() // only the producer changes tail

	if ringLen(head, tail) == int(r.capacity) {
		r.handleOverflowOne(tail, head, sink, v)
		return
	}

	r.pushUnchecked(v, tail)
}

// PushMany pushes all of s, spilling half the queue plus s to sink if
// there isn't room for the whole slice.
//
// Must only be called by the producer.
func (r *BoundedRing[T]) PushMany(s []T, sink OverflowSink[T]) {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadRelaxed() // only the producer changes tail

	if ringLen(head, tail)+len(s) > int(r.capacity) {
		r.handleOverflowMany(tail, head, sink, s)
		return
	}

	tail = r.writeAt(tail, s)
	r.tail.StoreRelease(tail)
}

// ConsumerLen returns the number of elements currently in the queue.
// Safe for any number of goroutines.
func (r *BoundedRing[T]) ConsumerLen() int {
	for {
		head := r.head.LoadRelaxed()
		tail := r.tail.LoadRelaxed()
		l := ringLen(head, tail)

		if l > int(r.capacity) {
			// Preempted between the two loads; retry.
			continue
		}

		return l
	}
}

// ConsumerPopMany claims up to len(dst) elements into dst and returns
// how many were claimed. Safe for any number of goroutines; the
// returned count may be less than len(dst) when fewer elements are
// available. A claim lost to another consumer is retried against the
// fresh head and tail, so zero is returned only when the queue was
// observed empty.
func (r *BoundedRing[T]) ConsumerPopMany(dst []T) int {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadAcquire()
	sw := spin.Wait{}

top:
	for {
		available := ringLen(head, tail)
		n := len(dst)
		if n > available {
			n = available
		}
		if n == 0 {
			return 0
		}

		if n > int(r.capacity) {
			// Preempted between the head and tail loads; retry.
			sw.Once()
			head = r.head.LoadAcquire()
			tail = r.tail.LoadAcquire()
			continue
		}

		// Optimistic copy: safe because the source stays live until a
		// CAS actually advances head; on CAS failure the copied bytes
		// are simply discarded, no destructor runs.
		r.readInto(dst[:n], head)

		for {
			if r.head.CompareAndSwapAcqRel(head, head+uint64(n)) {
				r.clearRange(head, uint64(n))
				return n
			}

			sw.Once()
			newHead := r.head.LoadAcquire()
			if newHead == head {
				continue // false-positive CAS failure, retry the CAS
			}

			head = newHead
			tail = r.tail.LoadAcquire()
			continue top
		}
	}
}

// StealInto claims half of r's elements and moves them into dst.
// Returns the number of elements stolen. Small batches (fewer than 4
// items) are declined and return 0 unless the ring was built with
// [Builder.AlwaysSteal].
//
// dst must be empty: with [AssertionsEnabled] this is checked and
// panics on violation; otherwise violating it is undefined behavior.
// Safe for any number of goroutines to call concurrently on the same
// r, each with its own dst.
func (r *BoundedRing[T]) StealInto(dst *BoundedRing[T]) int {
	if AssertionsEnabled {
		dstHead := dst.head.LoadRelaxed()
		dstTail := dst.tail.LoadRelaxed()
		if dstHead != dstTail {
			panic("stealq: StealInto requires an empty destination")
		}
	}

	srcHead := r.head.LoadAcquire()
	dstTail := dst.tail.LoadRelaxed() // only dst's producer changes its tail
	sw := spin.Wait{}

	for {
		srcTail := r.tail.LoadAcquire()
		n := ringLen(srcHead, srcTail) / 2

		if n > int(r.capacity)/2 {
			// Preempted between the head and tail loads; retry.
			sw.Once()
			srcHead = r.head.LoadAcquire()
			continue
		}

		if n == 0 || (!r.alwaysSteal && n < 4) {
			// Too small a batch to bother with; preserves cache
			// locality and NUMA affinity for the common case.
			return 0
		}

		first, last := r.liveSlices(srcHead, uint64(n))

		// Optimistic copy into dst before claiming ownership from src.
		newTail := dst.writeAt(dstTail, first)
		newTail = dst.writeAt(newTail, last)

		if r.head.CompareAndSwapAcqRel(srcHead, srcHead+uint64(n)) {
			r.clearRange(srcHead, uint64(n))
			dst.tail.StoreRelease(newTail)
			return n
		}

		// Another stealer won the race; discard the speculative copy
		// (dst.tail was never advanced, so it's still logically empty)
		// and retry.
		sw.Once()
		srcHead = r.head.LoadAcquire()
	}
}
