// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stealq

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

const defaultUnboundedCapacity = 4

// version is one generation of the unbounded ring's backing buffer.
// A version never shrinks or mutates after publication; growth
// allocates a new version and atomically switches consumers onto it.
type version[T any] struct {
	buffer []T
	mask   uint32
	id     uint32
}

func newVersion[T any](capacity uint32, id uint32) *version[T] {
	return &version[T]{
		buffer: make([]T, capacity),
		mask:   capacity - 1,
		id:     id,
	}
}

func (v *version[T]) capacity() int {
	return len(v.buffer)
}

// clearRange zeroes n slots starting at the logical position start so
// that claimed elements don't keep referenced objects alive longer
// than necessary, mirroring [BoundedRing.clearRange].
func (v *version[T]) clearRange(start, n uint32) {
	var zero T
	for i := uint32(0); i < n; i++ {
		v.buffer[(start+i)&v.mask] = zero
	}
}

// packTailAndVersion packs a 32-bit version id and a 32-bit tail
// counter into one 64-bit word so a consumer never observes a tail
// from one version paired with the mask of another.
func packTailAndVersion(id, tail uint32) uint64 {
	return uint64(id)<<32 | uint64(tail)
}

func unpackTailAndVersion(packed uint64) (id, tail uint32) {
	return uint32(packed >> 32), uint32(packed)
}

// UnboundedRing is a single-producer, multi-consumer work-stealing
// ring queue that grows its backing buffer instead of overflowing to
// a sink.
//
// Exactly one goroutine (the owner) may call the producer-only
// methods. Consumers obtain an [UnboundedConsumer] via NewConsumer and
// call its methods from any number of goroutines, one UnboundedConsumer
// per goroutine.
type UnboundedRing[T any] struct {
	_ pad

	// tailAndVersion packs (version id, tail) so consumers read a
	// self-consistent pair with a single atomic load.
	tailAndVersion atomix.Uint64
	_              pad

	head atomix.Uint32
	_    padShort

	// current is only ever written by the producer (under versionLock
	// for writers, meaning: producer takes the write lock to publish a
	// new version; readers take the read lock to refresh their cache).
	current     *version[T]
	versionLock rwTryLock
	nextID      uint32

	alwaysSteal bool
}

// NewUnboundedRing creates an unbounded ring with a small default
// initial capacity.
func NewUnboundedRing[T any]() *UnboundedRing[T] {
	return NewUnboundedRingWithCapacity[T](defaultUnboundedCapacity)
}

// NewUnboundedRingWithCapacity creates an unbounded ring whose initial
// backing buffer holds at least capacity elements, rounded up to the
// next power of 2.
func NewUnboundedRingWithCapacity[T any](capacity int) *UnboundedRing[T] {
	if capacity < 2 {
		capacity = defaultUnboundedCapacity
	}

	n := uint32(roundToPow2(capacity))
	v := newVersion[T](n, 0)

	r := &UnboundedRing[T]{current: v, nextID: 1}
	r.tailAndVersion.Store(packTailAndVersion(0, 0))

	return r
}

// ProducerLen returns the number of elements in the queue.
//
// Must only be called by the producer.
func (r *UnboundedRing[T]) ProducerLen() int {
	head := r.head.LoadAcquire()
	_, tail := unpackTailAndVersion(r.tailAndVersion.LoadRelaxed())

	return int(tail - head)
}

// ProducerCapacity returns the current backing buffer's capacity.
//
// Must only be called by the producer.
func (r *UnboundedRing[T]) ProducerCapacity() int {
	return r.current.capacity()
}

// growAndReserve allocates a new version large enough to hold the
// live elements plus incoming additional slots, copies the live
// elements over starting at the same head offset they occupy today
// (so head and the packed tail keep meaning "position since queue
// creation", never position within the backing buffer), and publishes
// the new version. It does not publish the new tail; the caller does
// that once the payload itself has been written into the new buffer.
func (r *UnboundedRing[T]) growAndReserve(head, tail uint32, incoming int) *version[T] {
	old := r.current
	live := int(tail - head)

	newCap := old.capacity()
	for newCap <= live+incoming {
		newCap *= 2
	}

	nv := newVersion[T](uint32(newCap), r.nextID)
	r.nextID++

	// Copy live elements to the same head-relative offset so existing
	// in-flight consumer math (which only ever computes idx = pos &
	// mask) keeps working against the new mask without adjustment.
	oldIdx := head & old.mask
	newIdx := head & nv.mask
	right := uint32(old.capacity()) - oldIdx

	if uint32(live) <= right {
		copy(nv.buffer[newIdx:], old.buffer[oldIdx:oldIdx+uint32(live)])
	} else {
		firstLen := right
		copy(nv.buffer[newIdx:], old.buffer[oldIdx:])
		copy(nv.buffer[(newIdx+firstLen)&nv.mask:], old.buffer[:uint32(live)-firstLen])
	}

	r.versionLock.Lock()
	r.current = nv
	r.versionLock.Unlock()

	return nv
}

// pushUnchecked writes v at tail in the current version and publishes
// the new (version, tail) pair.
func (r *UnboundedRing[T]) pushUnchecked(v T, tail uint32) {
	cur := r.current
	cur.buffer[tail&cur.mask] = v
	r.tailAndVersion.StoreRelease(packTailAndVersion(cur.id, tail+1))
}

// MaybePush pushes v, growing the backing buffer first if it's full.
// An unbounded ring never blocks, so this always returns nil; it
// exists to give both engines the same Producer API shape.
//
// Must only be called by the producer.
func (r *UnboundedRing[T]) MaybePush(v T) error {
	r.Push(v, nil)
	return nil
}

// MaybePushMany pushes all of s, growing the backing buffer first if
// there isn't room. An unbounded ring never blocks, so this always
// returns nil.
//
// Must only be called by the producer.
func (r *UnboundedRing[T]) MaybePushMany(s []T) error {
	r.PushMany(s, nil)
	return nil
}

// PushManyUnchecked writes first then last at the tail without
// growing the backing buffer first.
//
// Must only be called by the producer, and the caller asserts that
// len(first)+len(last) fits in the current backing buffer's remaining
// capacity. Violating this is undefined behavior; with
// [AssertionsEnabled] it panics instead.
func (r *UnboundedRing[T]) PushManyUnchecked(first, last []T) {
	head := r.head.LoadAcquire()
	_, tail := unpackTailAndVersion(r.tailAndVersion.LoadRelaxed())

	if AssertionsEnabled {
		if int(tail-head)+len(first)+len(last) > r.current.capacity() {
			panic("stealq: PushManyUnchecked exceeds capacity")
		}
	}

	cur := r.current
	newTail := writeUnboundedSlice(cur, tail, first)
	newTail = writeUnboundedSlice(cur, newTail, last)
	r.tailAndVersion.StoreRelease(packTailAndVersion(cur.id, newTail))
}

// Push pushes v, growing the backing buffer first if it's full. sink
// is ignored: an unbounded ring never overflows, but it accepts the
// same signature as [BoundedRing.Push] so callers can be generic over
// the engine.
//
// Must only be called by the producer.
func (r *UnboundedRing[T]) Push(v T, _ OverflowSink[T]) {
	head := r.head.LoadAcquire()
	_, tail := unpackTailAndVersion(r.tailAndVersion.LoadRelaxed())

	if int(tail-head) == r.current.capacity() {
		nv := r.growAndReserve(head, tail, 1)
		nv.buffer[tail&nv.mask] = v
		r.tailAndVersion.StoreRelease(packTailAndVersion(nv.id, tail+1))
		return
	}

	r.pushUnchecked(v, tail)
}

// PushMany pushes all of s, growing the backing buffer first if there
// isn't room. sink is ignored; see [UnboundedRing.Push].
//
// Must only be called by the producer.
func (r *UnboundedRing[T]) PushMany(s []T, _ OverflowSink[T]) {
	head := r.head.LoadAcquire()
	_, tail := unpackTailAndVersion(r.tailAndVersion.LoadRelaxed())

	cur := r.current
	if int(tail-head)+len(s) > cur.capacity() {
		cur = r.growAndReserve(head, tail, len(s))
	}

	newTail := writeUnboundedSlice(cur, tail, s)
	r.tailAndVersion.StoreRelease(packTailAndVersion(cur.id, newTail))
}

func writeUnboundedSlice[T any](v *version[T], tail uint32, s []T) uint32 {
	n := uint32(len(s))
	if n == 0 {
		return tail
	}

	idx := tail & v.mask
	right := uint32(v.capacity()) - idx

	if n <= right {
		copy(v.buffer[idx:idx+n], s)
	} else {
		copy(v.buffer[idx:], s[:right])
		copy(v.buffer[:n-right], s[right:])
	}

	return tail + n
}

// Reserve grows the backing buffer, if needed, so that at least n more
// elements can be pushed without a subsequent grow. Useful before a
// known-size batch of pushes to pay the copy cost once.
//
// Must only be called by the producer.
func (r *UnboundedRing[T]) Reserve(n int) {
	head := r.head.LoadAcquire()
	_, tail := unpackTailAndVersion(r.tailAndVersion.LoadRelaxed())

	if int(tail-head)+n <= r.current.capacity() {
		return
	}

	r.growAndReserve(head, tail, n)
}

// Pop removes and returns the oldest element.
//
// Must only be called by the producer.
func (r *UnboundedRing[T]) Pop() (T, bool) {
	head := r.head.LoadAcquire()
	_, tail := unpackTailAndVersion(r.tailAndVersion.LoadRelaxed())
	sw := spin.Wait{}

	for {
		if head == tail {
			var zero T
			return zero, false
		}

		if r.head.CompareAndSwapAcqRel(head, head+1) {
			cur := r.current
			idx := head & cur.mask
			v := cur.buffer[idx]
			var zero T
			cur.buffer[idx] = zero
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
func (r *UnboundedRing[T]) PopMany(dst []T) int {
	head := r.head.LoadAcquire()
	_, tail := unpackTailAndVersion(r.tailAndVersion.LoadRelaxed())
	sw := spin.Wait{}

	for {
		available := int(tail - head)
		n := len(dst)
		if n > available {
			n = available
		}
		if n == 0 {
			return 0
		}

		if r.head.CompareAndSwapAcqRel(head, head+uint32(n)) {
			cur := r.current
			readUnboundedInto(cur, dst[:n], head)
			var zero T
			for i := uint32(0); i < uint32(n); i++ {
				cur.buffer[(head+i)&cur.mask] = zero
			}
			return n
		}

		sw.Once()
		head = r.head.LoadAcquire()
	}
}

// UnboundedConsumer is a per-goroutine handle for consuming from an
// [UnboundedRing]. Each consuming goroutine must use its own
// UnboundedConsumer; it caches the backing buffer version locally and
// refreshes the cache (under contention-avoiding try-lock) whenever it
// observes a version id it doesn't recognize.
type UnboundedConsumer[T any] struct {
	ring   *UnboundedRing[T]
	cached *version[T]
}

// NewConsumer creates a consumer handle bound to r.
func (r *UnboundedRing[T]) NewConsumer() *UnboundedConsumer[T] {
	return &UnboundedConsumer[T]{ring: r, cached: r.current}
}

// Clone returns an independent consumer handle sharing the same ring,
// for handing to a second consuming goroutine.
func (c *UnboundedConsumer[T]) Clone() *UnboundedConsumer[T] {
	return &UnboundedConsumer[T]{ring: c.ring, cached: c.cached}
}

// refreshVersion tries to adopt the producer's current version into
// the local cache. Returns false (without blocking) if the producer
// is mid-publish and holds the write lock; the caller should retry its
// read of tailAndVersion instead of spinning here.
func (c *UnboundedConsumer[T]) refreshVersion(wantID uint32) bool {
	if c.cached.id == wantID {
		return true
	}

	if !c.ring.versionLock.TryRLock() {
		return false
	}
	cur := c.ring.current
	c.ring.versionLock.RUnlock()

	c.cached = cur

	return c.cached.id == wantID
}

// ConsumerCapacity returns the capacity of this consumer's locally
// cached backing buffer version, which may lag the producer's current
// capacity until the consumer next observes a version mismatch.
func (c *UnboundedConsumer[T]) ConsumerCapacity() int {
	return c.cached.capacity()
}

// ConsumerLen returns the number of elements currently in the queue.
// Safe for any number of [UnboundedConsumer] goroutines.
func (c *UnboundedConsumer[T]) ConsumerLen() int {
	r := c.ring

	for {
		head := r.head.LoadRelaxed()
		packed := r.tailAndVersion.LoadRelaxed()
		_, tail := unpackTailAndVersion(packed)
		l := int(int32(tail - head))

		if l < 0 {
			// Tail observed from a stale pre-growth read paired with a
			// post-growth head; retry.
			continue
		}

		return l
	}
}

// ConsumerPopMany claims up to len(dst) elements into dst and returns
// how many were claimed. Safe for any number of [UnboundedConsumer]
// goroutines, each with its own handle.
func (c *UnboundedConsumer[T]) ConsumerPopMany(dst []T) int {
	r := c.ring
	head := r.head.LoadAcquire()
	packed := r.tailAndVersion.LoadAcquire()
	id, tail := unpackTailAndVersion(packed)
	sw := spin.Wait{}

top:
	for {
		if !c.refreshVersion(id) {
			sw.Once()
			packed = r.tailAndVersion.LoadAcquire()
			id, tail = unpackTailAndVersion(packed)
			continue
		}

		available := int(tail - head)
		n := len(dst)
		if n > available {
			n = available
		}
		if n <= 0 {
			return 0
		}
		if n > c.cached.capacity() {
			sw.Once()
			head = r.head.LoadAcquire()
			continue
		}

		readUnboundedInto(c.cached, dst[:n], head)

		for {
			if r.head.CompareAndSwapAcqRel(head, head+uint32(n)) {
				c.cached.clearRange(head, uint32(n))
				return n
			}

			sw.Once()
			newHead := r.head.LoadAcquire()
			if newHead == head {
				continue
			}

			head = newHead
			packed = r.tailAndVersion.LoadAcquire()
			id, tail = unpackTailAndVersion(packed)
			continue top
		}
	}
}

func readUnboundedInto[T any](v *version[T], dst []T, head uint32) {
	n := uint32(len(dst))
	if n == 0 {
		return
	}

	idx := head & v.mask
	right := uint32(v.capacity()) - idx

	if n <= right {
		copy(dst, v.buffer[idx:idx+n])
	} else {
		copy(dst, v.buffer[idx:])
		copy(dst[right:], v.buffer[:n-right])
	}
}

func liveUnboundedSlices[T any](v *version[T], head, n uint32) (first, last []T) {
	idx := head & v.mask
	right := uint32(v.capacity()) - idx

	if n <= right {
		return v.buffer[idx : idx+n], nil
	}

	return v.buffer[idx:], v.buffer[:n-right]
}

// StealInto claims half of the ring's elements and moves them into
// dst, which must itself be an unbounded ring's producer-owned
// buffer. dst's capacity is grown first if needed. Returns the number
// of elements stolen; declines batches smaller than 4 elements unless
// the source ring was built with [Builder.AlwaysSteal].
//
// Safe for any number of [UnboundedConsumer] goroutines to call
// concurrently on the same source, each with its own dst.
func (c *UnboundedConsumer[T]) StealInto(dst *UnboundedRing[T]) int {
	r := c.ring
	srcHead := r.head.LoadAcquire()
	sw := spin.Wait{}

	for {
		id, srcTail := unpackTailAndVersion(r.tailAndVersion.LoadAcquire())
		if !c.refreshVersion(id) {
			sw.Once()
			continue
		}

		n := int(srcTail-srcHead) / 2

		if n > c.cached.capacity()/2 {
			sw.Once()
			srcHead = r.head.LoadAcquire()
			continue
		}

		if n == 0 || (!r.alwaysSteal && n < 4) {
			return 0
		}

		dstHead := dst.head.LoadAcquire()
		_, dstTail := unpackTailAndVersion(dst.tailAndVersion.LoadRelaxed())

		dstVersion := dst.current
		if int(dstTail-dstHead)+n > dstVersion.capacity() {
			dstVersion = dst.growAndReserve(dstHead, dstTail, n)
		}

		first, last := liveUnboundedSlices(c.cached, srcHead, uint32(n))

		newTail := writeUnboundedSlice(dstVersion, dstTail, first)
		newTail = writeUnboundedSlice(dstVersion, newTail, last)

		if r.head.CompareAndSwapAcqRel(srcHead, srcHead+uint32(n)) {
			c.cached.clearRange(srcHead, uint32(n))
			dst.tailAndVersion.StoreRelease(packTailAndVersion(dstVersion.id, newTail))
			return n
		}

		sw.Once()
		srcHead = r.head.LoadAcquire()
	}
}
