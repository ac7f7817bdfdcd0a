package config

import (
	"errors"
	"testing"
	"time"
)

func TestValidateRejectsMissingAddrs(t *testing.T) {
	c := Default("", "127.0.0.1:9001")
	if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() with empty local_addr = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateRejectsNonPositiveRetransmission(t *testing.T) {
	c := Default("127.0.0.1:9000", "127.0.0.1:9001")
	c.RetransmissionTimeout = 0
	if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() with zero retransmission timeout = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateRejectsGapSkipNotExceedingRetransmission(t *testing.T) {
	c := Default("127.0.0.1:9000", "127.0.0.1:9001")
	c.RetransmissionTimeout = 100 * time.Millisecond
	c.GapSkipTimeout = 100 * time.Millisecond
	if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() with equal timeouts = %v, want ErrInvalidConfig", err)
	}

	c.GapSkipTimeout = 50 * time.Millisecond
	if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() with gap_skip < retransmission = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	c := Default("127.0.0.1:9000", "127.0.0.1:9001")
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() on package defaults = %v, want nil", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.yaml"); err == nil {
		t.Fatal("Load on a missing file returned no error")
	}
}
