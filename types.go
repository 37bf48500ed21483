// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stealq

// OverflowSink absorbs elements spilled from a [BoundedRing] on push
// overflow. It is typically backed by the scheduler's global run queue.
//
// Both methods receive the spilled elements as up to two contiguous
// slices (the live region of a ring buffer is never more than two
// spans) followed by the value(s) that triggered the overflow, so the
// ring never has to materialize an intermediate linear buffer on the
// hot path.
//
// Implementations must treat (first, last, trailing) as a single FIFO
// sequence: enqueue first, then last, then the trailing value or
// slice, and take ownership of the elements passed in. first and last
// alias the ring's own storage and are valid only during the call: the
// ring clears those slots right after the call returns and reuses them,
// so implementations must copy the elements out rather than keep the
// slices.
type OverflowSink[T any] interface {
	// PushManyAndOne enqueues first, then last, then value.
	PushManyAndOne(first, last []T, value T)

	// PushManyAndSlice enqueues first, then last, then slice.
	PushManyAndSlice(first, last, slice []T)
}
