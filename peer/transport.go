package peer

import (
	"context"
	"time"
)

// MessageHandler receives one raw gossip message from a connected peer.
type MessageHandler func(from string, data []byte)

// ConnectHandler fires when a bidirectional channel to a peer is established,
// whether we dialed or they did.
type ConnectHandler func(peerID string, inbound bool)

// DisconnectHandler fires on transport error or unexpected disconnect.
type DisconnectHandler func(peerID string)

// Transport is the wire beneath the overlay. The production binding lives in
// the p2p package; tests use the in-memory hub transport.
type Transport interface {
	// SelfID returns the stable identity of this node on the transport.
	SelfID() string

	// Dial opens a bidirectional channel to peerID. The transport resolves
	// addresses itself and applies its own timeout.
	Dial(ctx context.Context, peerID string) error

	// Send delivers one message over the channel to peerID.
	Send(peerID string, data []byte) error

	// SetHandlers registers the event callbacks. Must be called before any
	// dial or inbound traffic.
	SetHandlers(onMessage MessageHandler, onConnect ConnectHandler, onDisconnect DisconnectHandler)

	// Close tears the transport down.
	Close() error
}

// Record is a known peer, connected or not. A disconnected peer retains its
// record; reconnecting reuses it.
type Record struct {
	PeerID    string
	LastSeen  time.Time
	Connected bool
}
