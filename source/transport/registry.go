package transport

import (
	"sync"
	"time"
)

// pendingEntry is one outstanding reliable send awaiting acknowledgement.
type pendingEntry struct {
	payload     []byte
	firstSendMs int64
	lastTxMs    int64
	retries     int
	isEpochMark bool
}

// registry is the send-side pending-ack map (spec §3, §4.2). It is guarded
// by its own mutex, separate from the receive-side state, mirroring the
// teacher's split between a session's general fields and its own
// pendingMu-protected PendingACK map.
type registry struct {
	mu      sync.Mutex
	pending map[uint16]*pendingEntry
}

func newRegistry() *registry {
	return &registry{pending: make(map[uint16]*pendingEntry)}
}

// Register records a freshly sent reliable packet awaiting an ACK.
func (r *registry) Register(seq uint16, payload []byte, isEpoch bool, nowMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[seq] = &pendingEntry{
		payload:     payload,
		firstSendMs: nowMs,
		lastTxMs:    nowMs,
		isEpochMark: isEpoch,
	}
}

// Ack removes seq from the pending set and returns the entry that was
// removed, so the caller can compute RTT from its firstSendMs (spec §4.4).
// A miss is expected on a duplicate or stale ACK and is not itself an error.
func (r *registry) Ack(seq uint16) (*pendingEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[seq]
	if !ok {
		return nil, false
	}
	delete(r.pending, seq)
	return e, true
}

// dueEntry is a snapshot of one pending send that is due for retransmission,
// returned by DrainDue so the caller can write to the socket without holding
// the registry lock across blocking I/O.
type dueEntry struct {
	seq         uint16
	payload     []byte
	isEpochMark bool
}

// DrainDue snapshots every pending entry whose last transmit is older than
// timeout, bumps its retry counter and last-tx timestamp, and returns the
// snapshot. The retx worker sends each returned entry after the lock is
// released (spec §9, "Owning the pending-ack map").
func (r *registry) DrainDue(timeout time.Duration, nowMs int64) []dueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []dueEntry
	thresholdMs := timeout.Milliseconds()
	for seq, e := range r.pending {
		if nowMs-e.lastTxMs < thresholdMs {
			continue
		}
		e.lastTxMs = nowMs
		e.retries++
		due = append(due, dueEntry{seq: seq, payload: e.payload, isEpochMark: e.isEpochMark})
	}
	return due
}

// Len reports the number of packets currently awaiting acknowledgement.
func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Retries reports the retry count observed so far for seq, mirroring the
// live "retries observed" lookup the original implementation exposed to
// callers inspecting in-flight sends.
func (r *registry) Retries(seq uint16) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[seq]
	if !ok {
		return 0, false
	}
	return e.retries, true
}

// HasEpochPending reports whether an EPOCH marker packet is still awaiting
// acknowledgement, so Close can know when it is safe to stop.
func (r *registry) HasEpochPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.pending {
		if e.isEpochMark {
			return true
		}
	}
	return false
}
