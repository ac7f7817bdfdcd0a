// Package metrics computes and exposes per-epoch delivery statistics for
// an H-UDP engine: throughput, mean latency, jitter, and packet delivery
// ratio for each channel, published through a Prometheus collector.
package metrics

import (
	"math"
	"sync"
	"time"
)

// channelAccum accumulates the receive-side counters for one channel over
// the lifetime of an epoch.
type channelAccum struct {
	delivered  uint64
	totalBytes uint64
	totalLat   float64 // sum of latency in ms
	latSq      float64 // sum of latency^2 in ms^2
}

func (a *channelAccum) record(latencyMs float64, payloadLen int) {
	a.delivered++
	a.totalBytes += uint64(payloadLen)
	a.totalLat += latencyMs
	a.latSq += latencyMs * latencyMs
}

func (a *channelAccum) meanLatency() float64 {
	if a.delivered == 0 {
		return 0
	}
	return a.totalLat / float64(a.delivered)
}

// jitter is the population standard deviation of latency, matching
// sqrt(E[x^2] - E[x]^2).
func (a *channelAccum) jitter() float64 {
	if a.delivered == 0 {
		return 0
	}
	mean := a.meanLatency()
	variance := (a.latSq / float64(a.delivered)) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (a *channelAccum) pdr(sent uint32) float64 {
	if sent == 0 {
		return 0
	}
	return float64(a.delivered) / float64(sent)
}

func (a *channelAccum) throughput(durationMs int64) float64 {
	if durationMs <= 0 {
		return 0
	}
	return float64(a.totalBytes) / (float64(durationMs) / 1000)
}

// ChannelSnapshot is the frozen set of statistics for one channel over the
// epoch that just closed.
type ChannelSnapshot struct {
	Delivered   uint64
	Throughput  float64 // bytes/sec
	MeanLatency time.Duration
	Jitter      time.Duration
	PDR         float64 // 0..1
}

// EpochSnapshot bundles both channels' statistics for one closed epoch,
// matching the two-row report the original implementation printed per
// epoch (reliable, then unreliable).
type EpochSnapshot struct {
	Reliable      ChannelSnapshot
	Unreliable    ChannelSnapshot
	MeanLatency   time.Duration // reliable channel's mean latency, surfaced for convenience
	Jitter        time.Duration
	ReliablePDR   float64
	UnreliablePDR float64
	MeanRTT       time.Duration // round-trip time measured off the ACK path, reliable channel only
	RTTJitter     time.Duration
}

// EpochStats tracks the receive side's accumulators for the epoch currently
// in progress and resets them on each epoch barrier (spec §4.9).
type EpochStats struct {
	mu         sync.Mutex
	startedAt  int64 // ms, set on the epoch's first RecordReliable/RecordUnreliable call
	reliable   channelAccum
	unreliable channelAccum
	rtt        channelAccum // RTT samples fed by ACK arrivals; totalBytes unused

	collector *Collector
}

// NewEpochStats constructs a fresh, empty accumulator.
func NewEpochStats() *EpochStats {
	return &EpochStats{collector: newCollector()}
}

// RecordReliable accounts for one reliable delivery, given its origin
// timestamp (from the wire header), the current time, both in ms, and the
// delivered payload's length for throughput accounting.
func (s *EpochStats) RecordReliable(originMs, nowMs int64, payloadLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markStart(nowMs)
	s.reliable.record(latencyMs(originMs, nowMs), payloadLen)
}

// RecordUnreliable accounts for one unreliable delivery.
func (s *EpochStats) RecordUnreliable(originMs, nowMs int64, payloadLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markStart(nowMs)
	s.unreliable.record(latencyMs(originMs, nowMs), payloadLen)
}

// RecordAckRTT accounts for one round-trip sample, measured as the gap
// between a reliable send's first transmission and the ACK that retired it
// (spec §4.4: "record RTT = now − first_send_ts").
func (s *EpochStats) RecordAckRTT(rttMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rttMs < 0 {
		rttMs = 0
	}
	s.rtt.record(float64(rttMs), 0)
}

func (s *EpochStats) markStart(nowMs int64) {
	if s.startedAt == 0 {
		s.startedAt = nowMs
	}
}

func latencyMs(originMs, nowMs int64) float64 {
	d := nowMs - originMs
	if d < 0 {
		d = 0
	}
	return float64(d)
}

// Snapshot freezes the current epoch's statistics given the peer-reported
// send counts (carried in the EPOCH control payload), computing PDR against
// what the peer actually attempted to send.
func (s *EpochStats) Snapshot(reliableSent, unreliableSent uint32) EpochSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	duration := int64(0)
	if s.startedAt != 0 {
		duration = nowMs() - s.startedAt
	}

	rel := ChannelSnapshot{
		Delivered:   s.reliable.delivered,
		Throughput:  s.reliable.throughput(duration),
		MeanLatency: time.Duration(s.reliable.meanLatency()) * time.Millisecond,
		Jitter:      time.Duration(s.reliable.jitter()) * time.Millisecond,
		PDR:         s.reliable.pdr(reliableSent),
	}
	unrel := ChannelSnapshot{
		Delivered:   s.unreliable.delivered,
		Throughput:  s.unreliable.throughput(duration),
		MeanLatency: time.Duration(s.unreliable.meanLatency()) * time.Millisecond,
		Jitter:      time.Duration(s.unreliable.jitter()) * time.Millisecond,
		PDR:         s.unreliable.pdr(unreliableSent),
	}

	return EpochSnapshot{
		Reliable:      rel,
		Unreliable:    unrel,
		MeanLatency:   rel.MeanLatency,
		Jitter:        rel.Jitter,
		ReliablePDR:   rel.PDR,
		UnreliablePDR: unrel.PDR,
		MeanRTT:       time.Duration(s.rtt.meanLatency()) * time.Millisecond,
		RTTJitter:     time.Duration(s.rtt.jitter()) * time.Millisecond,
	}
}

// Publish pushes a snapshot into the Prometheus collector, labeled with the
// owning engine's instance id.
func (s *EpochStats) Publish(snap EpochSnapshot, instanceID string) {
	s.collector.observe(instanceID, snap)
}

// Collector returns the Prometheus collector backing this EpochStats,
// ready to be registered with a prometheus.Registry.
func (s *EpochStats) Collector() *Collector { return s.collector }

// Reset clears the accumulators, called on the receiver's epoch barrier.
func (s *EpochStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = 0
	s.reliable = channelAccum{}
	s.unreliable = channelAccum{}
	s.rtt = channelAccum{}
}

func nowMs() int64 { return time.Now().UnixMilli() }
