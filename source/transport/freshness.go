package transport

import (
	"sync"

	"hudp-go/pkg/logger"
	"hudp-go/pkg/seqnum"
)

// freshness implements the unreliable channel's "newest seen" filter
// (spec §4.6): only strictly-newer (half-range) sequences are delivered,
// stragglers are silently dropped, and no acknowledgement is ever emitted.
type freshness struct {
	mu     sync.Mutex
	newest uint16
	isSet  bool
}

func newFreshness() *freshness {
	return &freshness{}
}

// Admit reports whether seq should be delivered, updating the watermark on
// acceptance. Invariant I6: never call this with an unverified datagram.
func (f *freshness) Admit(seq uint16) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isSet {
		f.newest = seq
		f.isSet = true
		return true
	}
	if !seqnum.After(seq, f.newest) {
		logger.Debug("freshness: dropping straggler seq=%d, %d behind newest=%d", seq, seqnum.Diff(seq, f.newest), f.newest)
		return false
	}
	f.newest = seq
	return true
}

// Reset clears the watermark, used on the receiver's epoch barrier.
func (f *freshness) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isSet = false
	f.newest = 0
}
