package metrics

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestEpochStatsMeanAndJitter(t *testing.T) {
	s := NewEpochStats()
	s.RecordReliable(0, 10, 10)
	s.RecordReliable(0, 20, 10)
	s.RecordReliable(0, 30, 10)

	snap := s.Snapshot(3, 0)
	if snap.Reliable.Delivered != 3 {
		t.Fatalf("Delivered = %d, want 3", snap.Reliable.Delivered)
	}

	wantMean := 20.0 // (10+20+30)/3
	gotMean := float64(snap.Reliable.MeanLatency.Milliseconds())
	if gotMean != wantMean {
		t.Errorf("MeanLatency = %v, want %v", gotMean, wantMean)
	}

	// population stddev of {10,20,30} is sqrt(66.67) ~= 8.16
	wantJitter := math.Sqrt((100.0 + 0 + 100.0) / 3)
	gotJitter := float64(snap.Reliable.Jitter.Milliseconds())
	if math.Abs(gotJitter-wantJitter) > 1 {
		t.Errorf("Jitter = %v, want ~%v", gotJitter, wantJitter)
	}

	if snap.Reliable.PDR != 1.0 {
		t.Errorf("PDR = %v, want 1.0 (3 delivered of 3 sent)", snap.Reliable.PDR)
	}
}

func TestEpochStatsPDRWithLoss(t *testing.T) {
	s := NewEpochStats()
	s.RecordReliable(0, 5, 10)
	s.RecordReliable(0, 5, 10)

	snap := s.Snapshot(4, 0)
	if snap.Reliable.PDR != 0.5 {
		t.Errorf("PDR = %v, want 0.5 (2 delivered of 4 sent)", snap.Reliable.PDR)
	}
}

func TestEpochStatsEmptySnapshotIsZero(t *testing.T) {
	s := NewEpochStats()
	snap := s.Snapshot(0, 0)
	if snap.Reliable.PDR != 0 || snap.Reliable.MeanLatency != 0 || snap.Reliable.Jitter != 0 {
		t.Errorf("empty snapshot not all-zero: %+v", snap.Reliable)
	}
}

func TestEpochStatsReset(t *testing.T) {
	s := NewEpochStats()
	s.RecordReliable(0, 10, 10)
	s.RecordAckRTT(30)
	s.Reset()

	snap := s.Snapshot(0, 0)
	if snap.Reliable.Delivered != 0 {
		t.Fatalf("Delivered after Reset = %d, want 0", snap.Reliable.Delivered)
	}
	if snap.MeanRTT != 0 {
		t.Fatalf("MeanRTT after Reset = %v, want 0", snap.MeanRTT)
	}
}

func TestEpochStatsAckRTT(t *testing.T) {
	s := NewEpochStats()
	s.RecordAckRTT(10)
	s.RecordAckRTT(20)
	s.RecordAckRTT(30)

	snap := s.Snapshot(0, 0)
	if got := snap.MeanRTT.Milliseconds(); got != 20 {
		t.Errorf("MeanRTT = %dms, want 20ms", got)
	}
	wantJitter := math.Sqrt((100.0 + 0 + 100.0) / 3)
	if gotJitter := float64(snap.RTTJitter.Milliseconds()); math.Abs(gotJitter-wantJitter) > 1 {
		t.Errorf("RTTJitter = %v, want ~%v", gotJitter, wantJitter)
	}
}

func TestCollectorPublishAndCollect(t *testing.T) {
	s := NewEpochStats()
	s.RecordReliable(0, 10, 10)
	snap := s.Snapshot(1, 0)
	s.Publish(snap, "engine-1")

	descCh := make(chan *prometheus.Desc, 16)
	s.Collector().Describe(descCh)
	close(descCh)
	var descCount int
	for range descCh {
		descCount++
	}
	if descCount != 6 {
		t.Fatalf("Describe emitted %d descriptors, want 6", descCount)
	}

	metricCh := make(chan prometheus.Metric, 16)
	s.Collector().Collect(metricCh)
	close(metricCh)
	var metricCount int
	for range metricCh {
		metricCount++
	}
	// 4 per-channel metric families x 2 channels (reliable, unreliable),
	// plus 2 instance-level RTT metrics, for the one instance that has
	// published a snapshot.
	if metricCount != 10 {
		t.Fatalf("Collect emitted %d metrics, want 10", metricCount)
	}
}
