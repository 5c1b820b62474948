package peer

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/globepay/meshpay/config"
	"github.com/globepay/meshpay/exception"
	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/monitoring"
)

// Overlay maintains the known-peer table and the active-connection set the
// gossip router floods through. All map mutation happens behind one mutex;
// handlers never mutate shared state concurrently.
type Overlay struct {
	transport Transport

	announceInterval time.Duration
	reconnectDelay   time.Duration

	mu         sync.Mutex
	known      map[string]*Record
	active     map[string]struct{}
	reconnects map[string]*time.Timer

	online atomic.Bool

	onMessage       MessageHandler
	onPeerConnected func(peerID string)
	announce        func()
}

// NewOverlay wires an overlay onto a transport. Handlers for gossip delivery
// and the announce payload are attached afterwards, before Start.
func NewOverlay(transport Transport, cfg *config.OverlayConfig) *Overlay {
	if cfg == nil {
		cfg = config.DefaultOverlayConfig()
	}
	o := &Overlay{
		transport:        transport,
		announceInterval: time.Duration(cfg.AnnounceIntervalMs) * time.Millisecond,
		reconnectDelay:   time.Duration(cfg.ReconnectDelayMs) * time.Millisecond,
		known:            make(map[string]*Record),
		active:           make(map[string]struct{}),
		reconnects:       make(map[string]*time.Timer),
	}
	transport.SetHandlers(o.handleMessage, o.handleConnect, o.handleDisconnect)
	return o
}

// SetMessageHandler routes inbound gossip to the router.
func (o *Overlay) SetMessageHandler(h MessageHandler) {
	o.onMessage = h
}

// SetConnectHook fires after a peer is registered, used for the peer-list
// exchange with fresh connections.
func (o *Overlay) SetConnectHook(h func(peerID string)) {
	o.onPeerConnected = h
}

// SetAnnounceFunc provides the periodic discovery broadcast.
func (o *Overlay) SetAnnounceFunc(f func()) {
	o.announce = f
}

// SelfID returns this node's peer id.
func (o *Overlay) SelfID() string {
	return o.transport.SelfID()
}

// Start brings the overlay online and runs the discovery ticker until ctx is
// done. Stopping the ticker never aborts an in-flight operation; the next
// tick is simply not issued.
func (o *Overlay) Start(ctx context.Context) {
	o.online.Store(true)
	exception.SafeGo("OverlayDiscovery", func() {
		ticker := time.NewTicker(o.announceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !o.online.Load() {
					continue
				}
				monitoring.SetPeerCount(o.Count())
				if o.announce != nil {
					o.announce()
				}
			case <-ctx.Done():
				o.online.Store(false)
				return
			}
		}
	})
}

// SetOnline flips the overlay's connectivity flag. While offline no announce
// is broadcast and no reconnects are scheduled.
func (o *Overlay) SetOnline(online bool) {
	o.online.Store(online)
}

// Connect opens a channel to peerID. No-op when the peer is self or already
// connected. On success the peer is registered and the connect hook runs.
func (o *Overlay) Connect(ctx context.Context, peerID string) error {
	if peerID == o.SelfID() {
		return nil
	}
	o.mu.Lock()
	if _, active := o.active[peerID]; active {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	if err := o.transport.Dial(ctx, peerID); err != nil {
		logx.Warn("OVERLAY", "Failed to connect to ", peerID, ": ", err)
		return err
	}
	// Registration happens in handleConnect, fired by the transport.
	return nil
}

// EnsureConnected connects in the background, used by gossip discovery where
// a dial failure is not the caller's problem.
func (o *Overlay) EnsureConnected(peerID string) {
	exception.SafeGo("OverlayConnect", func() {
		_ = o.Connect(context.Background(), peerID)
	})
}

// Touch refreshes a peer's lastSeen, creating its record when unknown.
func (o *Overlay) Touch(peerID string) {
	if peerID == "" || peerID == o.SelfID() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.touchLocked(peerID)
}

func (o *Overlay) touchLocked(peerID string) *Record {
	rec, ok := o.known[peerID]
	if !ok {
		rec = &Record{PeerID: peerID}
		o.known[peerID] = rec
	}
	rec.LastSeen = time.Now()
	return rec
}

// Broadcast sends data to every active connection except one peer, returning
// how many peers it reached.
func (o *Overlay) Broadcast(data []byte, except string) int {
	o.mu.Lock()
	targets := make([]string, 0, len(o.active))
	for peerID := range o.active {
		if peerID != except {
			targets = append(targets, peerID)
		}
	}
	o.mu.Unlock()

	delivered := 0
	for _, peerID := range targets {
		if err := o.transport.Send(peerID, data); err != nil {
			logx.Warn("OVERLAY", "Failed to send to ", peerID, ": ", err)
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo delivers data to one connected peer.
func (o *Overlay) SendTo(peerID string, data []byte) error {
	return o.transport.Send(peerID, data)
}

// IsConnected reports whether peerID is in the active set.
func (o *Overlay) IsConnected(peerID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[peerID]
	return ok
}

// ConnectedPeerIDs returns the active set, sorted for stable output.
func (o *Overlay) ConnectedPeerIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.active))
	for peerID := range o.active {
		ids = append(ids, peerID)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of active connections.
func (o *Overlay) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// KnownPeers snapshots the peer table, connected or not.
func (o *Overlay) KnownPeers() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	peers := make([]Record, 0, len(o.known))
	for _, rec := range o.known {
		peers = append(peers, *rec)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].PeerID < peers[j].PeerID })
	return peers
}

func (o *Overlay) handleMessage(from string, data []byte) {
	if o.onMessage != nil {
		o.onMessage(from, data)
	}
}

func (o *Overlay) handleConnect(peerID string, inbound bool) {
	if peerID == o.SelfID() {
		return
	}
	o.mu.Lock()
	rec := o.touchLocked(peerID)
	rec.Connected = true
	_, already := o.active[peerID]
	o.active[peerID] = struct{}{}
	if timer, ok := o.reconnects[peerID]; ok {
		timer.Stop()
		delete(o.reconnects, peerID)
	}
	o.mu.Unlock()

	if already {
		return
	}
	logx.Info("OVERLAY", "Peer connected: ", peerID, " inbound=", inbound)
	monitoring.SetPeerCount(o.Count())
	if o.onPeerConnected != nil {
		o.onPeerConnected(peerID)
	}
}

func (o *Overlay) handleDisconnect(peerID string) {
	o.mu.Lock()
	if rec, ok := o.known[peerID]; ok {
		rec.Connected = false
	}
	_, wasActive := o.active[peerID]
	delete(o.active, peerID)
	o.mu.Unlock()

	if !wasActive {
		return
	}
	logx.Warn("OVERLAY", "Peer disconnected: ", peerID)
	monitoring.SetPeerCount(o.Count())
	o.scheduleReconnect(peerID)
}

// scheduleReconnect retries at a fixed delay, indefinitely. Deliberately no
// backoff: latency wins over politeness on a small device mesh.
func (o *Overlay) scheduleReconnect(peerID string) {
	if !o.online.Load() {
		return
	}
	o.mu.Lock()
	if _, pending := o.reconnects[peerID]; pending {
		o.mu.Unlock()
		return
	}
	o.reconnects[peerID] = time.AfterFunc(o.reconnectDelay, func() {
		o.mu.Lock()
		delete(o.reconnects, peerID)
		o.mu.Unlock()

		if !o.online.Load() || o.IsConnected(peerID) {
			return
		}
		if err := o.Connect(context.Background(), peerID); err != nil {
			o.scheduleReconnect(peerID)
		}
	})
	o.mu.Unlock()
}

// Close shuts the overlay and its transport down.
func (o *Overlay) Close() error {
	o.online.Store(false)
	o.mu.Lock()
	for peerID, timer := range o.reconnects {
		timer.Stop()
		delete(o.reconnects, peerID)
	}
	o.mu.Unlock()
	return o.transport.Close()
}
