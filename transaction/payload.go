package transaction

import (
	"github.com/globepay/meshpay/errors"
	"github.com/globepay/meshpay/jsonx"
)

const (
	PayloadType    = "GLOBE_PAY_TX"
	PayloadVersion = "1.0"
)

// ExchangePayload is the QR/manual transfer envelope. It must round-trip
// through Serialize/Deserialize with no field loss.
type ExchangePayload struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	Hash      string `json:"hash"`
	Metadata  string `json:"metadata,omitempty"`
}

// SerializePayload wraps a transaction into the exchange envelope.
func SerializePayload(tx *OfflineTransaction) ([]byte, error) {
	payload := ExchangePayload{
		Type:      PayloadType,
		Version:   PayloadVersion,
		ID:        tx.ID,
		From:      tx.From,
		To:        tx.To,
		Amount:    tx.Amount,
		Nonce:     tx.Nonce,
		Timestamp: tx.Timestamp,
		Signature: tx.Signature,
		Hash:      tx.Hash,
		Metadata:  tx.Metadata,
	}
	return jsonx.Marshal(payload)
}

// DeserializePayload unwraps an exchange envelope back into a transaction.
// The transaction comes back PENDING; the receiving device re-validates it
// before persisting.
func DeserializePayload(data []byte) (*OfflineTransaction, error) {
	var payload ExchangePayload
	if err := jsonx.Unmarshal(data, &payload); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidPayload, errors.ErrMsgInvalidPayload)
	}
	if payload.Type != PayloadType || payload.Version != PayloadVersion {
		return nil, errors.NewError(errors.ErrCodeInvalidPayload, errors.ErrMsgInvalidPayload)
	}
	return &OfflineTransaction{
		ID:        payload.ID,
		From:      payload.From,
		To:        payload.To,
		Amount:    payload.Amount,
		Nonce:     payload.Nonce,
		Timestamp: payload.Timestamp,
		Signature: payload.Signature,
		Hash:      payload.Hash,
		Status:    StatusPending,
		Metadata:  payload.Metadata,
	}, nil
}
