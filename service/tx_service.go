package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	meshErrors "github.com/globepay/meshpay/errors"
	"github.com/globepay/meshpay/interfaces"
	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/store"
	"github.com/globepay/meshpay/transaction"
	"github.com/globepay/meshpay/wallet"
)

// TxService orchestrates the local transaction lifecycle: create, sign,
// persist, flood. It is the seam the API and CLI call into.
type TxService struct {
	keypair     *wallet.Keypair
	ledgerStore *store.LedgerStore
	broadcaster interfaces.Broadcaster
}

// NewTxService wires the service over the device identity, store and router.
func NewTxService(keypair *wallet.Keypair, ledgerStore *store.LedgerStore, broadcaster interfaces.Broadcaster) *TxService {
	return &TxService{
		keypair:     keypair,
		ledgerStore: ledgerStore,
		broadcaster: broadcaster,
	}
}

// SelfAddress returns the device's sending address.
func (s *TxService) SelfAddress() string {
	return s.keypair.Address
}

// CreateTransaction signs a new transfer at the next local nonce, persists
// it PENDING and floods it. A mesh with no reachable peers is not an error;
// the transaction stays local and syncs directly once online.
func (s *TxService) CreateTransaction(to, amount, metadata string) (*transaction.OfflineTransaction, error) {
	if to == "" {
		return nil, meshErrors.NewError(meshErrors.ErrCodeInvalidAddress, meshErrors.ErrMsgInvalidAddress)
	}
	parsed, err := uint256.FromDecimal(amount)
	if err != nil || parsed.IsZero() {
		return nil, meshErrors.NewError(meshErrors.ErrCodeInvalidAmount, meshErrors.ErrMsgInvalidAmount)
	}

	tx := &transaction.OfflineTransaction{
		ID:        uuid.NewString(),
		From:      s.keypair.Address,
		To:        to,
		Amount:    parsed.Dec(),
		Nonce:     s.ledgerStore.NextNonce(s.keypair.Address),
		Timestamp: time.Now().UnixMilli(),
		Status:    transaction.StatusPending,
		Metadata:  metadata,
	}
	message := tx.CanonicalMessage()
	tx.Signature = wallet.Sign(message, s.keypair.PrivateKey)
	tx.Hash = wallet.HashMessage(message)

	if _, err := s.ledgerStore.PutLocal(tx); err != nil {
		return nil, err
	}

	if err := s.broadcaster.BroadcastTransaction(tx); err != nil {
		// Not propagated: caller may fall back to the exchange payload.
		logx.Warn("TX_SERVICE", "Transaction ", tx.Hash, " not propagated: ", err)
	} else {
		tx.MeshPropagated = true
		if err := s.ledgerStore.MarkMeshPropagated(tx.Hash); err != nil {
			logx.Warn("TX_SERVICE", "Failed to record propagation for ", tx.Hash, ": ", err)
		}
	}

	logx.Info("TX_SERVICE", "Created transaction ", tx.Hash, " nonce ", tx.Nonce, " to ", tx.To)
	return tx, nil
}

// GetTransaction returns a stored transaction by hash.
func (s *TxService) GetTransaction(hash string) (*transaction.OfflineTransaction, error) {
	tx, err := s.ledgerStore.GetByHash(hash)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, meshErrors.NewError(meshErrors.ErrCodeTransactionNotFound, meshErrors.ErrMsgTransactionNotFound)
	}
	return tx, nil
}

// ListByStatus returns stored transactions in the given status.
func (s *TxService) ListByStatus(status transaction.Status) ([]*transaction.OfflineTransaction, error) {
	return s.ledgerStore.ListByStatus(status)
}

// ExportPayload serializes a stored transaction into the exchange envelope
// for QR or manual transfer.
func (s *TxService) ExportPayload(hash string) ([]byte, error) {
	tx, err := s.GetTransaction(hash)
	if err != nil {
		return nil, err
	}
	return transaction.SerializePayload(tx)
}

// ImportPayload validates and stores a transaction received outside the mesh
// (QR scan, manual entry). Duplicates are a no-op.
func (s *TxService) ImportPayload(data []byte) (*transaction.OfflineTransaction, error) {
	tx, err := transaction.DeserializePayload(data)
	if err != nil {
		return nil, err
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.ledgerStore.Put(tx); err != nil {
		return nil, err
	}
	return tx, nil
}
