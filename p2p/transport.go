package p2p

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	corepeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/peer"
)

const (
	// GossipProtocol carries one gossip message per stream.
	GossipProtocol = protocol.ID("/meshpay/gossip/1.0.0")

	dialTimeout    = 10 * time.Second
	maxMessageSize = 1 << 20
)

// Libp2pTransport binds the peer.Transport interface onto a libp2p host.
// Overlay peer ids are libp2p peer id strings.
type Libp2pTransport struct {
	host host.Host

	onMessage    peer.MessageHandler
	onConnect    peer.ConnectHandler
	onDisconnect peer.DisconnectHandler
}

// NewTransport starts a libp2p host from the device's ed25519 identity and
// connects to the configured bootstrap peers.
func NewTransport(selfPrivKey ed25519.PrivateKey, listenAddr string, bootstrapPeers []string) (*Libp2pTransport, error) {
	privKey, err := crypto.UnmarshalEd25519PrivateKey(selfPrivKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ed25519 private key: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrStrings(listenAddr),
		libp2p.NATPortMap(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	t := &Libp2pTransport{host: h}
	h.SetStreamHandler(GossipProtocol, t.handleGossipStream)
	h.Network().Notify(&connNotifee{transport: t})

	for _, bootstrapPeer := range bootstrapPeers {
		if bootstrapPeer == "" {
			continue
		}
		info, err := resolveBootstrapAddr(bootstrapPeer)
		if err != nil {
			logx.Error("P2P:SETUP", "Invalid bootstrap address: ", bootstrapPeer, ", error: ", err)
			continue
		}
		// Keep bootstrap addresses around so later dials by id can reuse them.
		h.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		if err := h.Connect(ctx, *info); err != nil {
			logx.Error("P2P:SETUP", "Failed to connect to bootstrap: ", bootstrapPeer, " ", err.Error())
			cancel()
			continue
		}
		cancel()
		logx.Info("P2P:SETUP", "Connected to bootstrap peer: ", bootstrapPeer)
	}

	logx.Info("P2P", fmt.Sprintf("Libp2p transport started with ID: %s", h.ID().String()))
	for _, addr := range h.Addrs() {
		logx.Info("P2P", "Listening on: ", addr.String())
	}
	return t, nil
}

func resolveBootstrapAddr(addr string) (*corepeer.AddrInfo, error) {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, err
	}
	return corepeer.AddrInfoFromP2pAddr(maddr)
}

// SelfID returns the host's peer id string.
func (t *Libp2pTransport) SelfID() string {
	return t.host.ID().String()
}

// SetHandlers registers overlay callbacks.
func (t *Libp2pTransport) SetHandlers(onMessage peer.MessageHandler, onConnect peer.ConnectHandler, onDisconnect peer.DisconnectHandler) {
	t.onMessage = onMessage
	t.onConnect = onConnect
	t.onDisconnect = onDisconnect
}

// Dial connects to a peer by id using addresses already in the peerstore,
// learned from bootstrap config or identify exchanges.
func (t *Libp2pTransport) Dial(ctx context.Context, peerID string) error {
	pid, err := corepeer.Decode(peerID)
	if err != nil {
		return fmt.Errorf("invalid peer id %s: %w", peerID, err)
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	return t.host.Connect(dialCtx, corepeer.AddrInfo{ID: pid, Addrs: t.host.Peerstore().Addrs(pid)})
}

// Send delivers one gossip message on a fresh stream.
func (t *Libp2pTransport) Send(peerID string, data []byte) error {
	pid, err := corepeer.Decode(peerID)
	if err != nil {
		return fmt.Errorf("invalid peer id %s: %w", peerID, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	stream, err := t.host.NewStream(ctx, pid, GossipProtocol)
	if err != nil {
		return fmt.Errorf("failed to create stream to peer %s: %w", peerID, err)
	}
	defer stream.Close()

	if _, err := stream.Write(data); err != nil {
		return fmt.Errorf("failed to write message to stream: %w", err)
	}
	return stream.CloseWrite()
}

// Close shuts the host down.
func (t *Libp2pTransport) Close() error {
	return t.host.Close()
}

func (t *Libp2pTransport) handleGossipStream(s network.Stream) {
	defer s.Close()

	data, err := io.ReadAll(io.LimitReader(s, maxMessageSize))
	if err != nil {
		logx.Warn("P2P:GOSSIP", "Failed to read stream from ", s.Conn().RemotePeer().String(), ": ", err)
		return
	}
	if t.onMessage != nil {
		t.onMessage(s.Conn().RemotePeer().String(), data)
	}
}

// connNotifee translates libp2p connection events into overlay callbacks.
type connNotifee struct {
	transport *Libp2pTransport
}

func (n *connNotifee) Connected(net network.Network, conn network.Conn) {
	if n.transport.onConnect != nil {
		n.transport.onConnect(conn.RemotePeer().String(), conn.Stat().Direction == network.DirInbound)
	}
}

func (n *connNotifee) Disconnected(net network.Network, conn network.Conn) {
	// Only report when no connection to the peer remains.
	if net.Connectedness(conn.RemotePeer()) == network.Connected {
		return
	}
	if n.transport.onDisconnect != nil {
		n.transport.onDisconnect(conn.RemotePeer().String())
	}
}

func (n *connNotifee) Listen(network.Network, ma.Multiaddr)      {}
func (n *connNotifee) ListenClose(network.Network, ma.Multiaddr) {}
