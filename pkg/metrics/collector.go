package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the most recent epoch snapshot of every engine instance
// that publishes through it as Prometheus gauges, following the
// Describe/Collect collector shape rather than registering metrics ahead of
// time — the set of instance labels is only known once an epoch closes.
type Collector struct {
	mu        sync.Mutex
	snapshots map[string]EpochSnapshot

	throughput  *prometheus.Desc
	meanLatency *prometheus.Desc
	jitter      *prometheus.Desc
	pdr         *prometheus.Desc
	meanRTT     *prometheus.Desc
	rttJitter   *prometheus.Desc
}

func newCollector() *Collector {
	labels := []string{"instance", "channel"}
	return &Collector{
		snapshots: make(map[string]EpochSnapshot),
		throughput: prometheus.NewDesc(
			"hudp_epoch_throughput_bytes_per_second", "Bytes delivered per second over the last closed epoch.", labels, nil),
		meanLatency: prometheus.NewDesc(
			"hudp_epoch_mean_latency_ms", "Mean delivery latency in milliseconds over the last closed epoch.", labels, nil),
		jitter: prometheus.NewDesc(
			"hudp_epoch_jitter_ms", "Latency standard deviation in milliseconds over the last closed epoch.", labels, nil),
		pdr: prometheus.NewDesc(
			"hudp_epoch_packet_delivery_ratio", "Fraction of sender-reported sends that were delivered over the last closed epoch.", labels, nil),
		meanRTT: prometheus.NewDesc(
			"hudp_epoch_mean_rtt_ms", "Mean round-trip time in milliseconds, measured off the ACK path, over the last closed epoch.", []string{"instance"}, nil),
		rttJitter: prometheus.NewDesc(
			"hudp_epoch_rtt_jitter_ms", "Round-trip time standard deviation in milliseconds over the last closed epoch.", []string{"instance"}, nil),
	}
}

func (c *Collector) observe(instanceID string, snap EpochSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[instanceID] = snap
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.throughput
	ch <- c.meanLatency
	ch <- c.jitter
	ch <- c.pdr
	ch <- c.meanRTT
	ch <- c.rttJitter
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for instance, snap := range c.snapshots {
		c.emit(ch, instance, "reliable", snap.Reliable)
		c.emit(ch, instance, "unreliable", snap.Unreliable)
		ch <- prometheus.MustNewConstMetric(c.meanRTT, prometheus.GaugeValue, float64(snap.MeanRTT.Milliseconds()), instance)
		ch <- prometheus.MustNewConstMetric(c.rttJitter, prometheus.GaugeValue, float64(snap.RTTJitter.Milliseconds()), instance)
	}
}

func (c *Collector) emit(ch chan<- prometheus.Metric, instance, channel string, snap ChannelSnapshot) {
	ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, snap.Throughput, instance, channel)
	ch <- prometheus.MustNewConstMetric(c.meanLatency, prometheus.GaugeValue, float64(snap.MeanLatency.Milliseconds()), instance, channel)
	ch <- prometheus.MustNewConstMetric(c.jitter, prometheus.GaugeValue, float64(snap.Jitter.Milliseconds()), instance, channel)
	ch <- prometheus.MustNewConstMetric(c.pdr, prometheus.GaugeValue, snap.PDR, instance, channel)
}
