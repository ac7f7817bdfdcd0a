package transport

import (
	"testing"
	"time"

	"hudp-go/pkg/seqnum"
)

func TestReassemblyCleanInOrder(t *testing.T) {
	a := newReassembly(200*time.Millisecond, nil)

	items := a.Arrive(0, 100, []byte("a"), 100)
	items = append(items, a.Arrive(1, 101, []byte("b"), 101)...)
	items = append(items, a.Arrive(2, 102, []byte("c"), 102)...)

	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	for i, item := range items {
		if item.Seq != uint16(i) {
			t.Errorf("items[%d].Seq = %d, want %d", i, item.Seq, i)
		}
	}
	if a.ExpectedSeq() != 3 {
		t.Errorf("ExpectedSeq() = %d, want 3", a.ExpectedSeq())
	}
}

func TestReassemblyOutOfOrderBuffersThenDrains(t *testing.T) {
	a := newReassembly(200*time.Millisecond, nil)

	// seq 1 arrives before seq 0: nothing should deliver yet.
	items := a.Arrive(1, 101, []byte("b"), 100)
	if len(items) != 0 {
		t.Fatalf("arriving out of order delivered %d items early, want 0", len(items))
	}

	// seq 0 arrives: both 0 and 1 should drain in order.
	items = a.Arrive(0, 100, []byte("a"), 100)
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2 once the head fills in", len(items))
	}
	if items[0].Seq != 0 || items[1].Seq != 1 {
		t.Errorf("delivered out of order: %d, %d", items[0].Seq, items[1].Seq)
	}
}

func TestReassemblyDuplicateDropped(t *testing.T) {
	a := newReassembly(200*time.Millisecond, nil)
	a.Arrive(0, 100, []byte("a"), 100)

	// seq 0 again, after the head has already advanced past it.
	items := a.Arrive(0, 100, []byte("a"), 101)
	if len(items) != 0 {
		t.Fatalf("duplicate delivery produced %d items, want 0", len(items))
	}
}

func TestReassemblyHeadOfLineGapSkip(t *testing.T) {
	var skipped []uint16
	a := newReassembly(200*time.Millisecond, func(seq uint16) { skipped = append(skipped, seq) })

	// seq 0 delivers; seq 1 is missing; seq 2 arrives and buffers.
	items := a.Arrive(0, 0, []byte("a"), 0)
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	items = a.Arrive(2, 0, []byte("c"), 10)
	if len(items) != 0 {
		t.Fatalf("seq 2 with a hole at seq 1 delivered %d items, want 0", len(items))
	}

	// Before the gap timeout elapses, nothing should skip.
	items = a.Arrive(3, 0, []byte("d"), 50)
	if len(items) != 0 {
		t.Fatalf("before the gap timeout, got %d items, want 0", len(items))
	}
	if len(skipped) != 0 {
		t.Fatalf("skipped early: %v", skipped)
	}

	// After the gap timeout, a new arrival should trigger the skip and
	// drain seq 2 and 3 without ever delivering seq 1.
	items = a.Arrive(4, 0, []byte("e"), 260)
	if len(skipped) != 1 || skipped[0] != 1 {
		t.Fatalf("skipped = %v, want [1]", skipped)
	}
	var seqs []uint16
	for _, it := range items {
		seqs = append(seqs, it.Seq)
	}
	if len(seqs) != 3 {
		t.Fatalf("seqs = %v, want 3 items (2, 3, 4)", seqs)
	}
	if seqs[0] != 2 || seqs[1] != 3 || seqs[2] != 4 {
		t.Errorf("seqs = %v, want [2 3 4]", seqs)
	}
	if a.ExpectedSeq() != 5 {
		t.Errorf("ExpectedSeq() = %d, want 5", a.ExpectedSeq())
	}
}

func TestReassemblyLateArrivalAfterSkipIsRejected(t *testing.T) {
	a := newReassembly(200*time.Millisecond, nil)
	a.Arrive(0, 0, []byte("a"), 0)
	a.Arrive(2, 0, []byte("c"), 10)
	a.Arrive(4, 0, []byte("e"), 260) // triggers skip past seq 1, drains 2; 4 waits behind the new gap at 3

	// seq 1 finally shows up after the skip: invariant I2 rejects it.
	items := a.Arrive(1, 0, []byte("late"), 300)
	if len(items) != 0 {
		t.Fatalf("late arrival after skip delivered %d items, want 0", len(items))
	}
}

func TestReassemblyRetriesObservedAndLatency(t *testing.T) {
	a := newReassembly(200*time.Millisecond, nil)

	// seq 1 arrives first and buffers; it is re-sent twice before seq 0
	// finally closes the gap, so its observed retry count should be 2.
	a.Arrive(1, 100, []byte("b"), 100)
	a.Arrive(1, 100, []byte("b"), 120)
	a.Arrive(1, 100, []byte("b"), 140)

	items := a.Arrive(0, 100, []byte("a"), 150)
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].RetriesObserved != 0 {
		t.Errorf("items[0].RetriesObserved = %d, want 0", items[0].RetriesObserved)
	}
	if items[1].RetriesObserved != 2 {
		t.Errorf("items[1].RetriesObserved = %d, want 2", items[1].RetriesObserved)
	}
	if items[1].ReceiveMs != 150 {
		t.Errorf("items[1].ReceiveMs = %d, want 150", items[1].ReceiveMs)
	}
	if items[1].Latency != 50*time.Millisecond {
		t.Errorf("items[1].Latency = %s, want 50ms", items[1].Latency)
	}
}

func TestReassemblyReset(t *testing.T) {
	a := newReassembly(200*time.Millisecond, nil)
	a.Arrive(0, 0, []byte("a"), 0)
	a.Arrive(2, 0, []byte("c"), 0)

	a.Reset()
	if a.ExpectedSeq() != 0 {
		t.Fatalf("ExpectedSeq() = %d, want 0 after Reset", a.ExpectedSeq())
	}
	items := a.Arrive(0, 0, []byte("fresh"), 0)
	if len(items) != 1 {
		t.Fatalf("post-reset delivery failed: got %d items", len(items))
	}
}

func TestReassemblySequenceWraparound(t *testing.T) {
	a := newReassembly(200*time.Millisecond, nil)

	// Walk the head all the way up to 65535 so the next arrival wraps.
	startNear := seqnum.Add(0, seqnum.Mod-6) // six short of the wraparound
	a.mu.Lock()
	a.expectedSeq = startNear
	a.mu.Unlock()

	var delivered int
	for s := uint16(startNear); ; s++ {
		items := a.Arrive(s, 0, []byte{byte(s)}, int64(s))
		delivered += len(items)
		if s == 65535 {
			break
		}
	}
	items := a.Arrive(0, 0, []byte("wrapped"), 100000)
	delivered += len(items)

	if a.ExpectedSeq() != 1 {
		t.Fatalf("ExpectedSeq() = %d, want 1 after wrapping past 65535", a.ExpectedSeq())
	}
	if delivered != 7 {
		t.Fatalf("delivered = %d, want 7 (65530..65535 plus wrapped 0)", delivered)
	}
}
