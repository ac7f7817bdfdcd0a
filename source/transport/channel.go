package transport

import "hudp-go/pkg/wire"

// Channel re-exports the wire channel tags for callers that only need to
// import the transport package.
type Channel = wire.Channel

const (
	channelReliable   = wire.Reliable
	channelUnreliable = wire.Unreliable
	channelACK        = wire.ACK
	channelEpoch      = wire.Epoch
)
