// Package config holds the engine's construction-time configuration,
// including the validation rule that binds retransmission and gap-skip
// timing together, and a YAML loader used by the demo binary.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures one transport.Engine instance.
type Config struct {
	// LocalAddr is the host:port this instance binds its UDP socket to.
	LocalAddr string `yaml:"local_addr"`
	// PeerAddr is the single remote peer this instance exchanges datagrams with.
	PeerAddr string `yaml:"peer_addr"`
	// Metric enables the Prometheus collector for per-epoch statistics.
	Metric bool `yaml:"metric"`
	// RetransmissionTimeout is how long a pending reliable send waits before
	// the retransmit worker re-emits it.
	RetransmissionTimeout time.Duration `yaml:"retransmission_timeout"`
	// GapSkipTimeout is how long the reassembly buffer's head-of-line gap
	// stays open before it skips the missing sequence forward.
	GapSkipTimeout time.Duration `yaml:"gap_skip_timeout"`
}

// Defaults matching the reference timing in the specification.
const (
	DefaultRetransmissionTimeout = 50 * time.Millisecond
	DefaultGapSkipTimeout        = 200 * time.Millisecond
)

// Default returns a Config with the package defaults for everything except
// the two addresses, which the caller must always supply.
func Default(localAddr, peerAddr string) Config {
	return Config{
		LocalAddr:             localAddr,
		PeerAddr:              peerAddr,
		RetransmissionTimeout: DefaultRetransmissionTimeout,
		GapSkipTimeout:        DefaultGapSkipTimeout,
	}
}

// Validate enforces the construction-time constraint from spec §4.8: the
// gap-skip timeout must exceed the retransmission timeout so the sender
// gets at least one retry before the receiver gives up on a gap.
func (c Config) Validate() error {
	if c.LocalAddr == "" {
		return fmt.Errorf("%w: local_addr is required", ErrInvalidConfig)
	}
	if c.PeerAddr == "" {
		return fmt.Errorf("%w: peer_addr is required", ErrInvalidConfig)
	}
	if c.RetransmissionTimeout <= 0 {
		return fmt.Errorf("%w: retransmission_timeout must be positive, got %s", ErrInvalidConfig, c.RetransmissionTimeout)
	}
	if c.GapSkipTimeout <= c.RetransmissionTimeout {
		return fmt.Errorf("%w: gap_skip_timeout (%s) must exceed retransmission_timeout (%s)",
			ErrInvalidConfig, c.GapSkipTimeout, c.RetransmissionTimeout)
	}
	return nil
}

// Load reads and validates a YAML config file, applying package defaults
// for any timing field left at zero. It is used only by the demo binary —
// library callers are expected to build a Config directly.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}

	if c.RetransmissionTimeout == 0 {
		c.RetransmissionTimeout = DefaultRetransmissionTimeout
	}
	if c.GapSkipTimeout == 0 {
		c.GapSkipTimeout = DefaultGapSkipTimeout
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
