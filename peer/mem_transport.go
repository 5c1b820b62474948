package peer

import (
	"context"
	"fmt"
	"sync"

	meshErrors "github.com/globepay/meshpay/errors"
)

// MemHub links in-memory transports together for tests and local simulation.
// Delivery is synchronous and in-order, matching the single logical thread of
// control the overlay assumes.
type MemHub struct {
	mu    sync.Mutex
	nodes map[string]*MemTransport
}

// NewMemHub creates an empty hub.
func NewMemHub() *MemHub {
	return &MemHub{nodes: make(map[string]*MemTransport)}
}

// NewTransport registers a node on the hub under id.
func (h *MemHub) NewTransport(id string) *MemTransport {
	t := &MemTransport{
		hub:   h,
		id:    id,
		links: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.nodes[id] = t
	h.mu.Unlock()
	return t
}

func (h *MemHub) lookup(id string) *MemTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nodes[id]
}

// MemTransport is the in-memory Transport used by tests.
type MemTransport struct {
	hub *MemHub
	id  string

	mu    sync.Mutex
	links map[string]struct{}

	onMessage    MessageHandler
	onConnect    ConnectHandler
	onDisconnect DisconnectHandler

	// FailDial makes every outbound dial fail, simulating an unreachable
	// network segment.
	FailDial bool
}

func (t *MemTransport) SelfID() string { return t.id }

func (t *MemTransport) SetHandlers(onMessage MessageHandler, onConnect ConnectHandler, onDisconnect DisconnectHandler) {
	t.onMessage = onMessage
	t.onConnect = onConnect
	t.onDisconnect = onDisconnect
}

func (t *MemTransport) Dial(ctx context.Context, peerID string) error {
	if t.FailDial {
		return meshErrors.NewError(meshErrors.ErrCodePeerUnreachable, fmt.Sprintf("dial refused for %s", peerID))
	}
	remote := t.hub.lookup(peerID)
	if remote == nil {
		return meshErrors.NewError(meshErrors.ErrCodePeerUnreachable, fmt.Sprintf("unknown peer %s", peerID))
	}

	t.mu.Lock()
	t.links[peerID] = struct{}{}
	t.mu.Unlock()
	remote.mu.Lock()
	remote.links[t.id] = struct{}{}
	remote.mu.Unlock()

	if t.onConnect != nil {
		t.onConnect(peerID, false)
	}
	if remote.onConnect != nil {
		remote.onConnect(t.id, true)
	}
	return nil
}

func (t *MemTransport) Send(peerID string, data []byte) error {
	t.mu.Lock()
	_, linked := t.links[peerID]
	t.mu.Unlock()
	if !linked {
		return meshErrors.NewError(meshErrors.ErrCodePeerUnreachable, fmt.Sprintf("not connected to %s", peerID))
	}
	remote := t.hub.lookup(peerID)
	if remote == nil {
		return meshErrors.NewError(meshErrors.ErrCodePeerUnreachable, fmt.Sprintf("unknown peer %s", peerID))
	}
	if remote.onMessage != nil {
		remote.onMessage(t.id, append([]byte(nil), data...))
	}
	return nil
}

// Drop severs the link to peerID from both sides, firing disconnect events.
func (t *MemTransport) Drop(peerID string) {
	remote := t.hub.lookup(peerID)

	t.mu.Lock()
	delete(t.links, peerID)
	t.mu.Unlock()
	if remote != nil {
		remote.mu.Lock()
		delete(remote.links, t.id)
		remote.mu.Unlock()
	}

	if t.onDisconnect != nil {
		t.onDisconnect(peerID)
	}
	if remote != nil && remote.onDisconnect != nil {
		remote.onDisconnect(t.id)
	}
}

func (t *MemTransport) Close() error {
	t.mu.Lock()
	peers := make([]string, 0, len(t.links))
	for peerID := range t.links {
		peers = append(peers, peerID)
	}
	t.mu.Unlock()
	for _, peerID := range peers {
		t.Drop(peerID)
	}
	t.hub.mu.Lock()
	delete(t.hub.nodes, t.id)
	t.hub.mu.Unlock()
	return nil
}
