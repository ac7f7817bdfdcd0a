package transport

import (
	"errors"

	"hudp-go/pkg/config"
	"hudp-go/pkg/wire"
)

// Error kinds surfaced by the engine. Decode-time errors (malformed header,
// checksum mismatch, unknown channel) never escape the receive worker; they
// are logged and the offending datagram is dropped, but the sentinels are
// exported so tests can assert on what was dropped. ErrInvalidConfig is
// config's own sentinel, re-exported here since New's only validation
// failure mode is a bad Config. SocketClosed and RegistryMiss are exposed
// for callers that want to distinguish them with errors.Is.
var (
	ErrInvalidConfig    = config.ErrInvalidConfig
	ErrMalformedHeader  = wire.ErrMalformedHeader
	ErrChecksumMismatch = wire.ErrChecksumMismatch
	ErrUnknownChannel   = wire.ErrUnknownChannel
	ErrSocketClosed     = errors.New("transport: socket closed")
	ErrRegistryMiss     = errors.New("transport: registry miss")
)
