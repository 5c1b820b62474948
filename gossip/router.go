package gossip

import (
	"math/rand"
	"time"

	"github.com/globepay/meshpay/config"
	meshErrors "github.com/globepay/meshpay/errors"
	"github.com/globepay/meshpay/jsonx"
	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/monitoring"
	"github.com/globepay/meshpay/store"
	"github.com/globepay/meshpay/transaction"
)

// ErrNotPropagated signals that a broadcast reached no peer. Callers fall
// back to other exchange channels (e.g. the QR payload) instead of failing.
var ErrNotPropagated = meshErrors.NewError(meshErrors.ErrCodeNotPropagated, meshErrors.ErrMsgNotPropagated)

// Network is the overlay surface the router floods through. The peer overlay
// implements it; tests substitute a fake.
type Network interface {
	SelfID() string
	Broadcast(data []byte, except string) int
	SendTo(peerID string, data []byte) error
	ConnectedPeerIDs() []string
	IsConnected(peerID string) bool
	Touch(peerID string)
	EnsureConnected(peerID string)
}

// RouterConfig carries the gossip tuning knobs. Sampler feeds the
// probabilistic PEER_LIST connects and is injectable so propagation tests
// stay deterministic.
type RouterConfig struct {
	InitialTTL         int
	DedupWindow        time.Duration
	ConnectProbability float64
	Sampler            func() float64
}

// RouterConfigFrom maps the INI gossip section onto a RouterConfig.
func RouterConfigFrom(cfg *config.GossipConfig) RouterConfig {
	return RouterConfig{
		InitialTTL:         cfg.InitialTTL,
		DedupWindow:        time.Duration(cfg.DedupWindowMinutes) * time.Minute,
		ConnectProbability: float64(cfg.PeerListConnectPercent) / 100,
		Sampler:            rand.Float64,
	}
}

// Router floods gossip messages across active connections with bounded TTL
// and message-id deduplication. It never raises on malformed or malicious
// input; it only reports diagnostics.
type Router struct {
	cfg     RouterConfig
	network Network
	ledger  *store.LedgerStore

	seen      *WindowedSet
	processed *WindowedSet // transaction hashes already handled
}

// NewRouter creates a router over the given overlay and store.
func NewRouter(cfg RouterConfig, network Network, ledger *store.LedgerStore) *Router {
	if cfg.InitialTTL <= 0 {
		cfg.InitialTTL = config.DefaultGossipConfig().InitialTTL
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = time.Duration(config.DefaultGossipConfig().DedupWindowMinutes) * time.Minute
	}
	if cfg.Sampler == nil {
		cfg.Sampler = rand.Float64
	}
	return &Router{
		cfg:       cfg,
		network:   network,
		ledger:    ledger,
		seen:      NewWindowedSet(cfg.DedupWindow),
		processed: NewWindowedSet(cfg.DedupWindow),
	}
}

// BroadcastTransaction floods a locally created transaction. Returns
// ErrNotPropagated when no active connection accepted it.
func (r *Router) BroadcastTransaction(tx *transaction.OfflineTransaction) error {
	msg, err := NewMessage(MessageTransaction, r.network.SelfID(), r.cfg.InitialTTL, tx)
	if err != nil {
		return err
	}
	r.seen.Add(msg.MessageID)
	r.processed.Add(tx.Hash)
	return r.flood(msg, "")
}

// BroadcastAnnounce floods our presence so unknown peers can connect back.
func (r *Router) BroadcastAnnounce() {
	self := r.network.SelfID()
	msg, err := NewMessage(MessagePeerAnnounce, self, r.cfg.InitialTTL, AnnounceData{PeerID: self})
	if err != nil {
		logx.Error("GOSSIP:ANNOUNCE", "Failed to build announce: ", err)
		return
	}
	r.seen.Add(msg.MessageID)
	if err := r.flood(msg, ""); err != nil {
		logx.Debug("GOSSIP:ANNOUNCE", "Announce not propagated, no active peers")
	}
}

// SendPeerList shares our active connection set with one peer, typically a
// freshly connected one.
func (r *Router) SendPeerList(peerID string) {
	msg, err := NewMessage(MessagePeerList, r.network.SelfID(), 1, PeerListData{Peers: r.network.ConnectedPeerIDs()})
	if err != nil {
		logx.Error("GOSSIP:PEER_LIST", "Failed to build peer list: ", err)
		return
	}
	r.seen.Add(msg.MessageID)
	data, err := msg.Encode()
	if err != nil {
		logx.Error("GOSSIP:PEER_LIST", "Failed to encode peer list: ", err)
		return
	}
	if err := r.network.SendTo(peerID, data); err != nil {
		logx.Warn("GOSSIP:PEER_LIST", "Failed to send peer list to ", peerID, ": ", err)
	}
}

// HandleMessage processes one inbound mesh message: shape validation, dedup,
// per-type application, then TTL-bounded re-flood excluding the arrival
// sender.
func (r *Router) HandleMessage(from string, raw []byte) {
	monitoring.IncreaseMessagesReceived()

	var msg Message
	if err := jsonx.Unmarshal(raw, &msg); err != nil {
		logx.Debug("GOSSIP:ROUTER", "Dropping undecodable message from ", from)
		return
	}
	if !msg.ValidShape() {
		logx.Debug("GOSSIP:ROUTER", "Dropping malformed message from ", from)
		return
	}

	if r.seen.Seen(msg.MessageID) {
		monitoring.IncreaseMessagesDeduplicated()
		return
	}
	r.seen.Add(msg.MessageID)

	r.network.Touch(from)

	applied := true
	switch msg.Type {
	case MessageTransaction:
		applied = r.handleTransaction(&msg)
	case MessagePeerAnnounce:
		r.handleAnnounce(&msg)
	case MessagePeerList:
		r.handlePeerList(&msg)
	case MessagePing:
		// liveness only
	}

	if !applied {
		return
	}

	// Re-flood with decremented TTL, skipping the peer it arrived from. Cycles
	// can still cause bounded redundant delivery; dedup absorbs it.
	msg.TTL--
	if msg.TTL <= 0 {
		return
	}
	if err := r.flood(&msg, from); err != nil {
		logx.Debug("GOSSIP:ROUTER", "Message ", msg.MessageID, " not re-flooded, no active peers")
	}
}

func (r *Router) handleTransaction(msg *Message) bool {
	var tx transaction.OfflineTransaction
	if err := jsonx.Unmarshal(msg.Data, &tx); err != nil {
		logx.Debug("GOSSIP:TX", "Dropping undecodable transaction from ", msg.Sender)
		return false
	}
	if tx.Hash == "" {
		logx.Debug("GOSSIP:TX", "Dropping transaction without hash from ", msg.Sender)
		return false
	}

	if r.processed.Seen(tx.Hash) {
		return false
	}
	// Marked processed regardless of validity so a bad transaction is never
	// re-examined within the window.
	r.processed.Add(tx.Hash)

	tx.Status = transaction.StatusPending
	tx.SyncedOnLedger = false
	tx.MeshPropagated = true

	if !tx.VerifyHash() {
		logx.Warn("GOSSIP:TX", "Rejected transaction with hash mismatch from ", msg.Sender)
		monitoring.IncreaseRejectedTxCount(monitoring.TxHashMismatch)
		return false
	}
	if !tx.VerifySignature() {
		logx.Warn("GOSSIP:TX", "Rejected transaction with invalid signature from ", msg.Sender)
		monitoring.IncreaseRejectedTxCount(monitoring.TxInvalidSignature)
		return false
	}

	added, err := r.ledger.Put(&tx)
	if err != nil {
		logx.Error("GOSSIP:TX", "Failed to persist transaction ", tx.Hash, ": ", err)
		return false
	}
	if added {
		monitoring.IncreaseIngressTxCount()
		logx.Info("GOSSIP:TX", "Ingested mesh transaction ", tx.Hash, " from ", tx.From)
	}
	return true
}

func (r *Router) handleAnnounce(msg *Message) {
	peerID := msg.Sender
	var data AnnounceData
	if len(msg.Data) > 0 {
		if err := jsonx.Unmarshal(msg.Data, &data); err == nil && data.PeerID != "" {
			peerID = data.PeerID
		}
	}
	if peerID == r.network.SelfID() {
		return
	}
	r.network.Touch(peerID)
	if !r.network.IsConnected(peerID) {
		r.network.EnsureConnected(peerID)
	}
}

func (r *Router) handlePeerList(msg *Message) {
	var data PeerListData
	if err := jsonx.Unmarshal(msg.Data, &data); err != nil {
		logx.Debug("GOSSIP:PEER_LIST", "Dropping undecodable peer list from ", msg.Sender)
		return
	}
	for _, peerID := range data.Peers {
		if peerID == "" || peerID == r.network.SelfID() {
			continue
		}
		r.network.Touch(peerID)
		if r.network.IsConnected(peerID) {
			continue
		}
		// Probabilistic connect bounds fan-out growth in dense meshes.
		if r.cfg.Sampler() < r.cfg.ConnectProbability {
			r.network.EnsureConnected(peerID)
		}
	}
}

func (r *Router) flood(msg *Message, except string) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	delivered := r.network.Broadcast(data, except)
	if delivered == 0 {
		return ErrNotPropagated
	}
	monitoring.AddMessagesFlooded(delivered)
	return nil
}
