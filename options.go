// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stealq

// Options configures ring creation.
type Options struct {
	capacity    int
	alwaysSteal bool
}

// Builder creates rings with fluent configuration.
//
// Example:
//
//	ring := stealq.BuildBounded[Task](stealq.New(1024).AlwaysSteal())
type Builder struct {
	opts Options
}

// New creates a ring builder with the given capacity.
//
// Capacity rounds up to the next power of 2. For example, capacity=4
// results in actual capacity=4, capacity=1000 results in actual
// capacity=1024. Panics if capacity < 2.
func New(capacity int) *Builder {
	if capacity < 2 {
		panic("stealq: capacity must be >= 2")
	}
	return &Builder{opts: Options{capacity: capacity}}
}

// AlwaysSteal makes StealInto proceed even for batches smaller than 4
// items. By default small batches are declined to preserve cache
// locality and NUMA affinity; set this when steal attempts are rare
// enough that recovering a few items is worth the extra traffic.
func (b *Builder) AlwaysSteal() *Builder {
	b.opts.alwaysSteal = true
	return b
}

// BuildBounded creates a [BoundedRing] from the builder's configuration.
func BuildBounded[T any](b *Builder) *BoundedRing[T] {
	r := NewBoundedRing[T](b.opts.capacity)
	r.alwaysSteal = b.opts.alwaysSteal
	return r
}

// BuildUnbounded creates an [UnboundedRing] from the builder's
// configuration. The builder's capacity becomes the ring's initial
// backing-buffer size instead of a hard limit.
func BuildUnbounded[T any](b *Builder) *UnboundedRing[T] {
	r := NewUnboundedRingWithCapacity[T](b.opts.capacity)
	r.alwaysSteal = b.opts.alwaysSteal
	return r
}
