package transaction

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/globepay/meshpay/errors"
	"github.com/globepay/meshpay/wallet"
)

// Status is the lifecycle state of an offline transaction.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusRejected   Status = "REJECTED"
)

// CanTransitionTo enforces the monotonic status lattice. PROCESSING may fall
// back to PENDING when a whole batch submission fails; COMPLETED, FAILED and
// REJECTED are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusPending || next == StatusCompleted ||
			next == StatusFailed || next == StatusRejected
	default:
		return false
	}
}

// OfflineTransaction is a signed value transfer created without ledger
// connectivity. Timestamp is unix milliseconds; Amount is a decimal string.
type OfflineTransaction struct {
	ID             string `json:"id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Amount         string `json:"amount"`
	Nonce          uint64 `json:"nonce"`
	Timestamp      int64  `json:"timestamp"`
	Signature      string `json:"signature,omitempty"`
	Hash           string `json:"hash,omitempty"`
	Status         Status `json:"status"`
	Metadata       string `json:"metadata,omitempty"`
	SyncedOnLedger bool   `json:"synced_on_ledger"`
	MeshPropagated bool   `json:"mesh_propagated"`
}

// CanonicalMessage is the exact byte sequence that is hashed and signed.
// Field order is fixed; changing it breaks previously issued signatures.
func (tx *OfflineTransaction) CanonicalMessage() []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%d:%d", tx.Amount, tx.From, tx.To, tx.Nonce, tx.Timestamp))
}

// ComputeHash recomputes the content hash from the canonical message.
func (tx *OfflineTransaction) ComputeHash() string {
	return wallet.HashMessage(tx.CanonicalMessage())
}

// VerifyHash checks the declared hash against a recomputation.
func (tx *OfflineTransaction) VerifyHash() bool {
	return tx.Hash != "" && tx.Hash == tx.ComputeHash()
}

// VerifySignature checks the signature against the sender address.
func (tx *OfflineTransaction) VerifySignature() bool {
	if tx.Signature == "" {
		return false
	}
	return wallet.Verify(tx.CanonicalMessage(), tx.Signature, tx.From)
}

// Validate checks the structural invariants of a transaction before it is
// accepted from any source: addresses present, positive decimal amount,
// nonce >= 1, hash and signature consistent.
func (tx *OfflineTransaction) Validate() error {
	if tx.From == "" || tx.To == "" {
		return errors.NewError(errors.ErrCodeInvalidAddress, errors.ErrMsgInvalidAddress)
	}
	amount, err := uint256.FromDecimal(tx.Amount)
	if err != nil || amount.IsZero() {
		return errors.NewError(errors.ErrCodeInvalidAmount, errors.ErrMsgInvalidAmount)
	}
	if tx.Nonce < 1 {
		return errors.NewError(errors.ErrCodeNonceOutOfOrder, errors.ErrMsgNonceOutOfOrder)
	}
	if !tx.VerifyHash() {
		return errors.NewError(errors.ErrCodeHashMismatch, errors.ErrMsgHashMismatch)
	}
	if !tx.VerifySignature() {
		return errors.NewError(errors.ErrCodeInvalidSignature, errors.ErrMsgInvalidSignature)
	}
	return nil
}
