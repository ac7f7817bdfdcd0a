package transport

import (
	"sync"
	"time"

	"hudp-go/pkg/logger"
	"hudp-go/pkg/seqnum"
)

// reassemblySlot is one out-of-order reliable datagram held pending delivery.
type reassemblySlot struct {
	originMs int64
	payload  []byte
}

// reassembly implements selective-repeat reception with a bounded
// head-of-line blocking budget (spec §4.5): it buffers out-of-order
// reliable datagrams keyed by sequence, drains them in order, and skips
// a stalled gap forward once it has stayed open for gapSkipTimeout.
type reassembly struct {
	mu sync.Mutex

	expectedSeq   uint16
	buffer        map[uint16]reassemblySlot
	gapOpenedAtMs int64 // meaningful only while gapOpen is true
	gapOpen       bool

	// retries counts duplicate/retransmitted arrivals of a sequence seen
	// before it was finally delivered (spec §12.1's "retries observed").
	retries map[uint16]int

	gapSkipTimeout time.Duration
	onSkip         func(skipped uint16)
}

func newReassembly(gapSkipTimeout time.Duration, onSkip func(skipped uint16)) *reassembly {
	return &reassembly{
		buffer:         make(map[uint16]reassemblySlot),
		retries:        make(map[uint16]int),
		gapSkipTimeout: gapSkipTimeout,
		onSkip:         onSkip,
	}
}

// Arrive processes one reliable datagram arrival, returning the in-order
// items ready for delivery (possibly empty, possibly more than one if the
// arrival filled a run of buffered sequences).
func (a *reassembly) Arrive(seq uint16, originMs int64, payload []byte, nowMs int64) []DeliveryItem {
	a.mu.Lock()
	defer a.mu.Unlock()

	// I2: never accept anything older than the current head. A stale
	// duplicate still counts toward the sequence's observed retry count.
	if seq != a.expectedSeq && seqnum.Before(seq, a.expectedSeq) {
		a.retries[seq]++
		logger.Debug("reassembly: dropping stale seq=%d, %d behind expected=%d", seq, seqnum.Diff(seq, a.expectedSeq), a.expectedSeq)
		return nil
	}
	if _, dup := a.buffer[seq]; dup {
		a.retries[seq]++
		return nil
	}
	// Folding even the in-order head into the buffer gives the drain loop
	// below a single code path for both the common and out-of-order cases.
	a.buffer[seq] = reassemblySlot{originMs: originMs, payload: payload}

	return a.drain(nowMs)
}

// deliver builds the DeliveryItem for seq and clears its retry counter.
func (a *reassembly) deliver(seq uint16, slot reassemblySlot, nowMs int64) DeliveryItem {
	latency := nowMs - slot.originMs
	if latency < 0 {
		latency = 0
	}
	item := DeliveryItem{
		Channel:         channelReliable,
		Seq:             seq,
		OriginMs:        slot.originMs,
		Payload:         slot.payload,
		ReceiveMs:       nowMs,
		Latency:         time.Duration(latency) * time.Millisecond,
		RetriesObserved: a.retries[seq],
	}
	delete(a.retries, seq)
	return item
}

// drain must be called with mu held. It pops the contiguous in-order run
// starting at expectedSeq, then applies the gap-skip timer if the run
// stopped short of a hole.
func (a *reassembly) drain(nowMs int64) []DeliveryItem {
	var items []DeliveryItem

	for {
		slot, ok := a.buffer[a.expectedSeq]
		if !ok {
			break
		}
		delete(a.buffer, a.expectedSeq)
		items = append(items, a.deliver(a.expectedSeq, slot, nowMs))
		a.gapOpen = false
		a.expectedSeq = seqnum.Next(a.expectedSeq)
	}

	if len(a.buffer) == 0 {
		a.gapOpen = false
		return items
	}

	if !a.gapOpen {
		a.gapOpen = true
		a.gapOpenedAtMs = nowMs
		return items
	}

	for nowMs-a.gapOpenedAtMs >= a.gapSkipTimeout.Milliseconds() {
		skipped := a.expectedSeq
		delete(a.retries, skipped)
		a.expectedSeq = seqnum.Next(a.expectedSeq)
		a.gapOpenedAtMs = nowMs
		if a.onSkip != nil {
			a.onSkip(skipped)
		}

		for {
			slot, ok := a.buffer[a.expectedSeq]
			if !ok {
				break
			}
			delete(a.buffer, a.expectedSeq)
			items = append(items, a.deliver(a.expectedSeq, slot, nowMs))
			a.gapOpen = false
			a.expectedSeq = seqnum.Next(a.expectedSeq)
		}
		if len(a.buffer) == 0 {
			a.gapOpen = false
			break
		}
		if !a.gapOpen {
			a.gapOpen = true
			a.gapOpenedAtMs = nowMs
			break
		}
	}

	return items
}

// Reset clears all reassembly state back to a fresh epoch (receiver-side
// only, per the EPOCH handling in spec §4.9).
func (a *reassembly) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expectedSeq = 0
	a.buffer = make(map[uint16]reassemblySlot)
	a.retries = make(map[uint16]int)
	a.gapOpen = false
	a.gapOpenedAtMs = 0
}

// ExpectedSeq reports the current head-of-line sequence, mostly useful for
// tests and diagnostics.
func (a *reassembly) ExpectedSeq() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expectedSeq
}
