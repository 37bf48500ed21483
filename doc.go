// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stealq provides single-producer, multi-consumer work-stealing
// ring queues.
//
// It is the per-worker local run queue of a task scheduler: one goroutine
// (the owner) pushes and pops its own tasks; any number of other goroutines
// (stealers) concurrently drain batches from the opposite end when they run
// out of local work.
//
// # Queue Variants
//
// Two engines share the same producer/consumer contract:
//
//   - [BoundedRing]: fixed capacity. When a push would overflow it, half
//     of the queue plus the incoming payload spill into an [OverflowSink]
//     (typically the scheduler's global run queue).
//   - [UnboundedRing]: grows by allocating a new backing buffer (a
//     "version") when full, and never spills to a sink.
//
// # Quick Start
//
//	ring := stealq.NewBoundedRing[Task](256)
//
//	// Owner goroutine: push and pop.
//	ring.Push(task, globalSink)
//	t, ok := ring.Pop()
//
//	// Any other goroutine: steal a batch into its own empty ring.
//	mine := stealq.NewBoundedRing[Task](256)
//	n := ring.StealInto(mine)
//
// # Thread Safety
//
// Exactly one goroutine may call the producer-only methods of a ring
// (Pop, PopMany, MaybePush, MaybePushMany, Push, PushMany,
// PushManyUnchecked, Reserve). Any number of goroutines may call the
// consumer-safe methods (ConsumerLen, ConsumerPopMany, StealInto) on a
// [BoundedRing], or on an [UnboundedConsumer] obtained from
// [UnboundedRing.NewConsumer] and [UnboundedConsumer.Clone]d once per
// goroutine. Violating the single-producer constraint is undefined
// behavior: it corrupts the queue, it does not merely race.
//
// # Error Handling
//
// [BoundedRing.MaybePush] and [BoundedRing.MaybePushMany] return
// [ErrWouldBlock] when the queue is full. Consumer-side methods never
// error; they return a count, which may legitimately be zero even when
// the queue is not observably empty (a stealer declining a too-small
// batch). An unbounded consumer that catches the producer mid-grow
// re-reads the published tail and retries instead of returning zero.
// Callers should treat zero as "try a different victim" or "retry
// later", not as a hard failure.
//
//	backoff := iox.Backoff{}
//	for {
//	    if err := ring.MaybePush(task); err == nil {
//	        backoff.Reset()
//	        break
//	    }
//	    backoff.Wait()
//	}
//
// # Race Detection
//
// Like the dependencies this package is built on, several orderings
// here are expressed as acquire/release on independent atomics rather
// than through a single mutex or channel. Go's race detector tracks
// explicit synchronization primitives but cannot reconstruct
// happens-before edges established purely by atomic memory ordering
// across separate variables, so it may flag false positives on the
// concurrent stress tests. Those tests are skipped under race via
// [RaceEnabled].
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors and
// backoff, [code.hybscloud.com/atomix] for atomics with explicit memory
// ordering, and [code.hybscloud.com/spin] for CPU pause instructions.
package stealq
