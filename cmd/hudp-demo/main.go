// Command hudp-demo drives one H-UDP engine from the command line, either
// generating mixed reliable/unreliable traffic toward a peer (-mix) or
// polling and printing whatever the peer delivers (the default, receiver
// mode), optionally exporting epoch metrics over HTTP.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hudp-go/pkg/config"
	"hudp-go/pkg/logger"
	"hudp-go/source/transport"
)

const version = "0.1.0"

func main() {
	var (
		configPath  = flag.String("config", "", "path to a YAML config file (replaces -local and -peer)")
		localAddr   = flag.String("local", "127.0.0.1:9000", "local bind address")
		peerAddr    = flag.String("peer", "127.0.0.1:9001", "remote peer address")
		mix         = flag.Bool("mix", false, "send randomly-tagged mixed reliable/unreliable traffic instead of receiving")
		mixCount    = flag.Int("mix-count", 20, "number of packets to send in -mix mode")
		mixRatio    = flag.Float64("mix-reliable-ratio", 0.6, "fraction of -mix packets tagged reliable")
		payloadSize = flag.Int("payload-size", 64, "payload size in bytes for -mix mode")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	)
	flag.Parse()

	logger.Banner("H-UDP Hybrid Datagram Transport", version)

	cfg := config.Default(*localAddr, *peerAddr)
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal("loading config: %v", err)
		}
		cfg = loaded
	}
	cfg.Metric = *metricsAddr != ""

	engine, err := transport.New(cfg)
	if err != nil {
		logger.Fatal("constructing engine: %v", err)
	}

	if cfg.Metric {
		serveMetrics(*metricsAddr, engine)
	}

	if err := engine.Start(); err != nil {
		logger.Fatal("starting engine: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	if *mix {
		go runMixedSender(engine, *mixCount, *mixRatio, *payloadSize, done)
	} else {
		go runReceiver(engine, done)
	}

	select {
	case <-done:
		logger.Info("workload finished, closing")
	case sig := <-sigChan:
		logger.Warn("received signal: %v", sig)
	}

	if err := engine.Close(); err != nil {
		logger.Error("close: %v", err)
	}
	logger.Success("engine %s stopped", engine.ID())
}

func serveMetrics(addr string, engine *transport.Engine) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(engine.MetricsCollector())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		logger.Info("serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server: %v", err)
		}
	}()
}

func runMixedSender(engine *transport.Engine, count int, reliableRatio float64, payloadSize int, done chan<- struct{}) {
	defer close(done)

	var reliableCount, unreliableCount int
	for i := 0; i < count; i++ {
		payload := randomPayload(payloadSize)
		reliable := rand.Float64() < reliableRatio

		seq, err := engine.Send(payload, reliable)
		if err != nil {
			logger.Error("send #%d failed: %v", i, err)
			continue
		}

		kind := "UNRELIABLE"
		if reliable {
			reliableCount++
			kind = "RELIABLE"
		} else {
			unreliableCount++
		}
		logger.Info("tx #%d seq=%d channel=%-10s bytes=%d", i, seq, kind, len(payload))

		time.Sleep(100 * time.Millisecond)
	}

	logger.Section("Transmission summary")
	logger.Info("total=%d reliable=%d unreliable=%d", count, reliableCount, unreliableCount)
}

func runReceiver(engine *transport.Engine, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		for _, item := range engine.Recv(500 * time.Millisecond) {
			logger.Info("rx channel=%-10s seq=%d origin_ms=%d bytes=%d payload=%q",
				item.Channel, item.Seq, item.OriginMs, len(item.Payload), truncate(item.Payload, 20))
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s...", b[:n])
}

func randomPayload(size int) []byte {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	out := make([]byte, size)
	for i := range out {
		out[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return out
}
