package gossip

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/globepay/meshpay/jsonx"
)

// MessageType discriminates gossip payloads on the wire.
type MessageType string

const (
	MessageTransaction  MessageType = "TRANSACTION"
	MessagePeerAnnounce MessageType = "PEER_ANNOUNCE"
	MessagePeerList     MessageType = "PEER_LIST"
	MessagePing         MessageType = "PING"
)

// Message is one flood instance on the mesh. MessageID identifies the flood,
// not the transaction inside it, and is the deduplication key.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	TTL       int             `json:"ttl,omitempty"`
	Sender    string          `json:"sender"`
	Timestamp int64           `json:"timestamp"`
	MessageID string          `json:"messageId"`
}

// AnnounceData is the PEER_ANNOUNCE payload.
type AnnounceData struct {
	PeerID string `json:"peerId"`
}

// PeerListData is the PEER_LIST payload.
type PeerListData struct {
	Peers []string `json:"peers"`
}

// NewMessage builds a flood message with a fresh id and current timestamp.
func NewMessage(msgType MessageType, sender string, ttl int, data interface{}) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := jsonx.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return &Message{
		Type:      msgType,
		Data:      raw,
		TTL:       ttl,
		Sender:    sender,
		Timestamp: time.Now().UnixMilli(),
		MessageID: uuid.NewString(),
	}, nil
}

// ValidShape reports whether the required fields are present. Messages that
// fail this check are dropped silently; a noisy mesh is expected.
func (m *Message) ValidShape() bool {
	switch m.Type {
	case MessageTransaction, MessagePeerAnnounce, MessagePeerList, MessagePing:
	default:
		return false
	}
	return m.Sender != "" && m.MessageID != "" && m.Timestamp > 0
}

// Encode marshals the message for the wire.
func (m *Message) Encode() ([]byte, error) {
	return jsonx.Marshal(m)
}
