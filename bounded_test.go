// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stealq_test

import (
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/stealq"
)

// recordingSink accumulates everything spilled to it, preserving FIFO
// order, for assertions about what an overflow actually contained.
type recordingSink[T any] struct {
	mu sync.Mutex
	vs []T
}

func (s *recordingSink[T]) PushManyAndOne(first, last []T, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vs = append(s.vs, first...)
	s.vs = append(s.vs, last...)
	s.vs = append(s.vs, value)
}

func (s *recordingSink[T]) PushManyAndSlice(first, last, slice []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vs = append(s.vs, first...)
	s.vs = append(s.vs, last...)
	s.vs = append(s.vs, slice...)
}

func TestBoundedCapacityRounding(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{9, 16},
		{1000, 1024},
	}

	for _, tt := range tests {
		q := stealq.NewBoundedRing[int](tt.input)
		if q.Cap() != tt.expected {
			t.Fatalf("NewBoundedRing(%d).Cap() = %d, want %d", tt.input, q.Cap(), tt.expected)
		}
	}
}

func TestBoundedPanicOnSmallCapacity(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for capacity < 2")
		}
	}()
	stealq.NewBoundedRing[int](1)
}

func TestBoundedBasicPushPop(t *testing.T) {
	q := stealq.NewBoundedRing[int](4)
	sink := &recordingSink[int]{}

	for i := range 4 {
		q.Push(i+100, sink)
	}

	if len(sink.vs) != 0 {
		t.Fatalf("unexpected overflow: %v", sink.vs)
	}

	for i := range 4 {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop(%d): queue unexpectedly empty", i)
		}
		if v != i+100 {
			t.Fatalf("Pop(%d): got %d, want %d", i, v, i+100)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Fatal("Pop on empty queue returned a value")
	}
}

func TestBoundedMaybePushWouldBlock(t *testing.T) {
	q := stealq.NewBoundedRing[int](4)

	for i := range 4 {
		if err := q.MaybePush(i); err != nil {
			t.Fatalf("MaybePush(%d): %v", i, err)
		}
	}

	if err := q.MaybePush(999); !stealq.IsWouldBlock(err) {
		t.Fatalf("MaybePush on full: got %v, want ErrWouldBlock", err)
	}

	if err := q.MaybePushMany([]int{1, 2}); !stealq.IsWouldBlock(err) {
		t.Fatalf("MaybePushMany on full: got %v, want ErrWouldBlock", err)
	}
}

func TestBoundedWrapAround(t *testing.T) {
	q := stealq.NewBoundedRing[int](4)

	for round := range 20 {
		for i := range 4 {
			if err := q.MaybePush(round*100 + i); err != nil {
				t.Fatalf("round %d push %d: %v", round, i, err)
			}
		}
		for i := range 4 {
			v, ok := q.Pop()
			if !ok {
				t.Fatalf("round %d pop %d: queue empty", round, i)
			}
			want := round*100 + i
			if v != want {
				t.Fatalf("round %d pop %d: got %d, want %d", round, i, v, want)
			}
		}
	}
}

func TestBoundedOverflowSpillsHalfPlusPayload(t *testing.T) {
	q := stealq.NewBoundedRing[int](8)
	sink := &recordingSink[int]{}

	for i := range 8 {
		q.Push(i, sink)
	}
	if len(sink.vs) != 0 {
		t.Fatalf("unexpected early overflow: %v", sink.vs)
	}

	// Queue is full; this push must spill.
	q.Push(999, sink)

	if len(sink.vs) != 5 {
		t.Fatalf("overflow spilled %d values, want 5 (half the ring plus the payload)", len(sink.vs))
	}
	for i, v := range sink.vs[:4] {
		if v != i {
			t.Fatalf("spilled[%d] = %d, want %d", i, v, i)
		}
	}
	if sink.vs[4] != 999 {
		t.Fatalf("spilled payload = %d, want 999", sink.vs[4])
	}

	if q.ProducerLen() != 4 {
		t.Fatalf("ProducerLen after overflow = %d, want 4", q.ProducerLen())
	}
	for i := range 4 {
		v, ok := q.Pop()
		if !ok || v != i+4 {
			t.Fatalf("Pop(%d) after overflow: got (%d,%v), want %d", i, v, ok, i+4)
		}
	}
}

func TestBoundedOverflowManySpillsHalfPlusSlice(t *testing.T) {
	q := stealq.NewBoundedRing[int](8)
	sink := &recordingSink[int]{}

	for i := range 8 {
		q.Push(i, sink)
	}

	q.PushMany([]int{900, 901, 902}, sink)

	if len(sink.vs) != 7 {
		t.Fatalf("overflow spilled %d values, want 7", len(sink.vs))
	}
	if sink.vs[4] != 900 || sink.vs[5] != 901 || sink.vs[6] != 902 {
		t.Fatalf("spilled tail mismatch: %v", sink.vs)
	}
}

func TestBoundedStealIntoDeclinesSmallBatch(t *testing.T) {
	src := stealq.NewBoundedRing[int](16)
	dst := stealq.NewBoundedRing[int](16)

	for i := range 3 {
		_ = src.MaybePush(i)
	}

	if n := src.StealInto(dst); n != 0 {
		t.Fatalf("StealInto of a 1-item half-batch stole %d, want 0", n)
	}
}

func TestBoundedStealIntoMovesHalf(t *testing.T) {
	src := stealq.NewBoundedRing[int](16)
	dst := stealq.NewBoundedRing[int](16)

	for i := range 8 {
		_ = src.MaybePush(i)
	}

	n := src.StealInto(dst)
	if n != 4 {
		t.Fatalf("StealInto stole %d, want 4", n)
	}
	if src.ProducerLen() != 4 {
		t.Fatalf("src.ProducerLen = %d, want 4", src.ProducerLen())
	}
	if dst.ProducerLen() != 4 {
		t.Fatalf("dst.ProducerLen = %d, want 4", dst.ProducerLen())
	}

	for i := range 4 {
		v, ok := dst.Pop()
		if !ok || v != i {
			t.Fatalf("dst.Pop(%d) = (%d,%v), want %d", i, v, ok, i)
		}
	}
	for i := range 4 {
		v, ok := src.Pop()
		if !ok || v != i+4 {
			t.Fatalf("src.Pop(%d) = (%d,%v), want %d", i, v, ok, i+4)
		}
	}
}

func TestBoundedStealIntoPanicsOnNonEmptyDest(t *testing.T) {
	if !stealq.AssertionsEnabled {
		t.Skip("assertions disabled in this build")
	}

	src := stealq.NewBoundedRing[int](16)
	dst := stealq.NewBoundedRing[int](16)
	for i := range 8 {
		_ = src.MaybePush(i)
	}
	_ = dst.MaybePush(1)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic stealing into a non-empty destination")
		}
	}()
	src.StealInto(dst)
}

// TestBoundedLinearizability hammers one producer against many stealing
// consumers and checks every produced value is observed exactly once.
func TestBoundedLinearizability(t *testing.T) {
	if stealq.RaceEnabled {
		t.Skip("skip: linearizability test requires concurrent access")
	}

	const (
		numConsumers = 8
		total        = 20000
	)

	q := stealq.NewBoundedRing[int](256)
	globalSink := &recordingSink[int]{}

	seen := make([]atomix.Int32, total)
	var consumed atomix.Int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		backoff := iox.Backoff{}
		for i := range total {
			q.Push(i, globalSink)
			backoff.Reset()
		}
	}()

	drain := func(v int) {
		if v < 0 || v >= total {
			t.Errorf("value out of range: %d", v)
			return
		}
		seen[v].Add(1)
		consumed.Add(1)
	}

	for range numConsumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mine := stealq.NewBoundedRing[int](32)
			buf := make([]int, 32)
			backoff := iox.Backoff{}
			deadline := time.Now().Add(10 * time.Second)

			for consumed.Load() < int64(total) {
				if time.Now().After(deadline) {
					return
				}
				if n := q.StealInto(mine); n > 0 {
					backoff.Reset()
					for {
						m := mine.PopMany(buf)
						if m == 0 {
							break
						}
						for _, v := range buf[:m] {
							drain(v)
						}
					}
					continue
				}
				backoff.Wait()
			}
		}()
	}

	wg.Wait()

	globalSink.mu.Lock()
	spilled := globalSink.vs
	globalSink.mu.Unlock()
	for _, v := range spilled {
		drain(v)
	}

	remaining := make([]int, q.Cap())
	for {
		n := q.PopMany(remaining)
		if n == 0 {
			break
		}
		for _, v := range remaining[:n] {
			drain(v)
		}
	}

	var missing, duplicates int
	for i := range total {
		switch seen[i].Load() {
		case 0:
			missing++
		case 1:
		default:
			duplicates++
		}
	}
	if duplicates != 0 {
		t.Fatalf("%d values observed more than once", duplicates)
	}
	if missing != 0 {
		t.Fatalf("%d of %d values never observed", missing, total)
	}
}
