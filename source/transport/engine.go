// Package transport implements the H-UDP engine: one bound UDP socket
// talking to exactly one remote peer over a reliable in-order channel and
// an unreliable freshest-wins channel, plus the internal ACK and EPOCH
// control channels that keep them honest.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"hudp-go/pkg/config"
	"hudp-go/pkg/logger"
	"hudp-go/pkg/metrics"
	"hudp-go/pkg/seqnum"
	"hudp-go/pkg/wire"
)

const (
	socketReadDeadline = 200 * time.Millisecond
	retxTick           = 10 * time.Millisecond
	recvPollTick       = 5 * time.Millisecond
	recvBufferSize     = 64 * 1024
)

// sendState holds everything the send lock guards: outgoing sequence
// counters and sent-packet totals. The pending-ack registry has its own
// lock; Send and sendEpoch register into it while holding this one.
type sendState struct {
	mu                sync.Mutex
	nextReliableSeq   uint16
	nextUnreliableSeq uint16
	reliableSent      uint32
	unreliableSent    uint32
}

// Engine is one H-UDP session bound to a single remote peer.
type Engine struct {
	id   uuid.UUID
	cfg  config.Config
	peer *net.UDPAddr
	conn *net.UDPConn

	send     sendState
	registry *registry

	reassembly *reassembly
	fresh      *freshness
	queue      *deliveryQueue

	stats *metrics.EpochStats

	runningMu sync.Mutex
	running   bool

	startOnce sync.Once
	wg        sync.WaitGroup
}

// New validates cfg and constructs an Engine, but does not yet bind any
// socket — binding happens in Start, matching the spec's requirement that
// InvalidConfig be reported before any socket is ever opened.
func New(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	peer, err := net.ResolveUDPAddr("udp", cfg.PeerAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: peer_addr %q: %v", ErrInvalidConfig, cfg.PeerAddr, err)
	}

	e := &Engine{
		id:       uuid.New(),
		cfg:      cfg,
		peer:     peer,
		registry: newRegistry(),
		fresh:    newFreshness(),
		queue:    newDeliveryQueue(),
		stats:    metrics.NewEpochStats(),
	}
	e.reassembly = newReassembly(cfg.GapSkipTimeout, e.onSkip)
	return e, nil
}

// ID returns the engine's instance identifier, used to label logs and
// metrics when multiple engines run in the same process.
func (e *Engine) ID() string { return e.id.String() }

// MetricsCollector returns the Prometheus collector backing this engine's
// epoch statistics, ready to be registered with a prometheus.Registry.
func (e *Engine) MetricsCollector() *metrics.Collector { return e.stats.Collector() }

func (e *Engine) onSkip(skipped uint16) {
	logger.Skip("engine %s: skipped seq=%d on reassembly gap", e.id.String()[:8], skipped)
}

// Start binds the local socket and launches the receive and retransmit
// workers. It is safe to call only once per Engine.
func (e *Engine) Start() error {
	conn, err := wire.Bind(e.cfg.LocalAddr)
	if err != nil {
		return err
	}
	e.conn = conn

	e.runningMu.Lock()
	e.running = true
	e.runningMu.Unlock()

	e.startOnce.Do(func() {
		e.wg.Add(2)
		go e.rxWorker()
		go e.retxWorker()
	})

	logger.Info("engine %s: started, local=%s peer=%s", e.id.String()[:8], e.cfg.LocalAddr, e.peer.String())
	return nil
}

func (e *Engine) isRunning() bool {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()
	return e.running
}

// Send frames and emits payload, registering it for retransmission when
// reliable is true. It returns the assigned sequence number and never
// blocks beyond the time it takes to write one datagram.
func (e *Engine) Send(payload []byte, reliable bool) (uint16, error) {
	if !e.isRunning() {
		return 0, ErrSocketClosed
	}

	e.send.mu.Lock()
	var (
		seq uint16
		ch  Channel
	)
	if reliable {
		seq = e.send.nextReliableSeq
		e.send.nextReliableSeq = seqnum.Next(seq)
		ch = channelReliable
	} else {
		seq = e.send.nextUnreliableSeq
		e.send.nextUnreliableSeq = seqnum.Next(seq)
		ch = channelUnreliable
	}
	frame := wire.Encode(ch, seq, payload)
	if reliable {
		e.registry.Register(seq, payload, false, nowMs())
		e.send.reliableSent++
	} else {
		e.send.unreliableSent++
	}
	e.send.mu.Unlock()

	if _, err := e.conn.WriteToUDP(frame, e.peer); err != nil {
		return seq, fmt.Errorf("transport: send seq=%d: %w", seq, err)
	}
	return seq, nil
}

// sendEpoch emits the EPOCH control packet as a registered reliable send,
// using the current send counters as its payload (spec §4.9).
func (e *Engine) sendEpoch() (uint16, error) {
	e.send.mu.Lock()
	seq := e.send.nextReliableSeq
	e.send.nextReliableSeq = seqnum.Next(seq)
	payload := wire.EncodeEpochPayload(e.send.reliableSent, e.send.unreliableSent)
	frame := wire.Encode(channelEpoch, seq, payload)
	e.registry.Register(seq, payload, true, nowMs())
	e.send.mu.Unlock()

	if _, err := e.conn.WriteToUDP(frame, e.peer); err != nil {
		return seq, fmt.Errorf("transport: send epoch seq=%d: %w", seq, err)
	}
	return seq, nil
}

// sendRaw frames payload under the given channel and sequence and emits it
// without touching the send counters — used by the retx worker, which
// re-frames with a fresh timestamp but keeps the original sequence.
func (e *Engine) sendRaw(ch Channel, seq uint16, payload []byte) error {
	frame := wire.Encode(ch, seq, payload)
	_, err := e.conn.WriteToUDP(frame, e.peer)
	return err
}

func (e *Engine) sendAck(seq uint16) {
	frame := wire.Encode(channelACK, seq, nil)
	_, _ = e.conn.WriteToUDP(frame, e.peer)
}

// Recv drains the delivery queue, waiting up to timeout for at least one
// item to appear. It never blocks past the deadline and never returns an
// error — malformed or stale datagrams are dropped upstream, not surfaced
// here.
func (e *Engine) Recv(timeout time.Duration) []DeliveryItem {
	deadline := time.Now().Add(timeout)
	for {
		if items := e.queue.Drain(); len(items) > 0 {
			return items
		}
		if !time.Now().Before(deadline) {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining > recvPollTick {
			remaining = recvPollTick
		}
		time.Sleep(remaining)
	}
}

// Close drains the send registry, emits the EPOCH barrier, drains again,
// then stops the workers and closes the socket (spec §4.9).
func (e *Engine) Close() error {
	if !e.isRunning() {
		return nil
	}

	e.waitForEmptyRegistry()
	if _, err := e.sendEpoch(); err != nil {
		logger.Warn("engine %s: epoch send failed during close: %v", e.id.String()[:8], err)
	}
	e.waitForEpochAck()

	e.runningMu.Lock()
	e.running = false
	e.runningMu.Unlock()

	e.wg.Wait()

	err := e.conn.Close()
	logger.Info("engine %s: closed", e.id.String()[:8])
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("transport: close: %w", err)
	}
	return nil
}

func (e *Engine) waitForEmptyRegistry() {
	for e.registry.Len() > 0 {
		time.Sleep(retxTick)
	}
}

// waitForEpochAck blocks until the EPOCH marker sent by sendEpoch has been
// acknowledged, so Close knows specifically that the barrier closed rather
// than merely that the registry happened to drain.
func (e *Engine) waitForEpochAck() {
	for e.registry.HasEpochPending() {
		time.Sleep(retxTick)
	}
}

// rxWorker reads the socket on a short deadline so it can observe shutdown
// promptly, decodes each datagram, and dispatches by channel (spec §4.4).
func (e *Engine) rxWorker() {
	defer e.wg.Done()
	buf := make([]byte, recvBufferSize)

	for e.isRunning() {
		_ = e.conn.SetReadDeadline(time.Now().Add(socketReadDeadline))
		n, _, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !e.isRunning() {
				return
			}
			continue
		}

		pkt, err := wire.Decode(buf[:n])
		if err != nil {
			logger.Debug("engine %s: dropping malformed datagram: %v", e.id.String()[:8], err)
			continue
		}
		e.dispatch(pkt)
	}
}

func (e *Engine) dispatch(pkt wire.Packet) {
	now := nowMs()
	switch pkt.Channel {
	case channelACK:
		entry, ok := e.registry.Ack(pkt.Seq)
		if !ok {
			// Expected for a duplicate or already-retired ACK; not surfaced
			// to the caller, just noted for diagnostics (spec's RegistryMiss).
			logger.Debug("engine %s: %v: seq=%d", e.id.String()[:8], ErrRegistryMiss, pkt.Seq)
			break
		}
		rtt := now - entry.firstSendMs
		e.stats.RecordAckRTT(rtt)
		logger.Debug("engine %s: ack seq=%d rtt=%dms", e.id.String()[:8], pkt.Seq, rtt)

	case channelReliable:
		e.sendAck(pkt.Seq)
		items := e.reassembly.Arrive(pkt.Seq, int64(pkt.OriginMs), pkt.Payload, now)
		if len(items) > 0 {
			for _, item := range items {
				e.stats.RecordReliable(item.OriginMs, now, len(item.Payload))
			}
			e.queue.Push(items...)
		}

	case channelUnreliable:
		if e.fresh.Admit(pkt.Seq) {
			originMs := int64(pkt.OriginMs)
			e.stats.RecordUnreliable(originMs, now, len(pkt.Payload))
			latency := now - originMs
			if latency < 0 {
				latency = 0
			}
			e.queue.Push(DeliveryItem{
				Channel:   channelUnreliable,
				Seq:       pkt.Seq,
				OriginMs:  originMs,
				Payload:   pkt.Payload,
				ReceiveMs: now,
				Latency:   time.Duration(latency) * time.Millisecond,
			})
		}

	case channelEpoch:
		e.sendAck(pkt.Seq)
		e.handleEpochArrival(pkt)

	default:
		logger.Debug("engine %s: dropping unknown channel tag", e.id.String()[:8])
	}
}

// handleEpochArrival snapshots receive-side statistics for the just-closed
// epoch, then resets receiver-side-only state so a new epoch can begin.
// Transmit-side counters are intentionally left untouched (DESIGN.md's
// decision for the corresponding open question).
func (e *Engine) handleEpochArrival(pkt wire.Packet) {
	reliableSent, unreliableSent, err := wire.DecodeEpochPayload(pkt.Payload)
	if err != nil {
		logger.Warn("engine %s: malformed epoch payload: %v", e.id.String()[:8], err)
		return
	}

	snapshot := e.stats.Snapshot(reliableSent, unreliableSent)
	if e.cfg.Metric {
		e.stats.Publish(snapshot, e.id.String())
	}
	logger.Info("engine %s: epoch closed — reliable pdr=%.2f%% unreliable pdr=%.2f%% mean_latency=%s jitter=%s mean_rtt=%s",
		e.id.String()[:8], snapshot.ReliablePDR*100, snapshot.UnreliablePDR*100, snapshot.MeanLatency, snapshot.Jitter, snapshot.MeanRTT)

	e.reassembly.Reset()
	e.fresh.Reset()
	e.stats.Reset()
}

// retxWorker walks the send registry on a cadence, re-emitting any packet
// whose retry timer has elapsed (spec §4.8). It snapshots the due set under
// the registry's lock, then writes to the socket with the lock released.
func (e *Engine) retxWorker() {
	defer e.wg.Done()

	for e.isRunning() {
		time.Sleep(retxTick)
		due := e.registry.DrainDue(e.cfg.RetransmissionTimeout, nowMs())
		for _, entry := range due {
			ch := channelReliable
			if entry.isEpochMark {
				ch = channelEpoch
			}
			if err := e.sendRaw(ch, entry.seq, entry.payload); err != nil {
				logger.Warn("engine %s: retransmit seq=%d failed: %v", e.id.String()[:8], entry.seq, err)
				continue
			}
			logger.Retx("engine %s: retransmitted seq=%d", e.id.String()[:8], entry.seq)
		}
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
