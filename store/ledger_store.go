package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/globepay/meshpay/db"
	"github.com/globepay/meshpay/jsonx"
	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/transaction"
)

// LedgerStore is the durable, queryable store of offline transactions and the
// device identity. It is the single writer of transaction status and the
// source of truth for nonce sequencing.
type LedgerStore struct {
	mu         sync.RWMutex
	dbProvider db.DatabaseProvider

	// nonce index per sender, rebuilt from disk on open: nonce -> tx hash
	bySender map[string]map[uint64]string
	// hashes of locally originated transactions
	localHashes map[string]struct{}
}

// NewLedgerStore opens a store over the given provider and rebuilds the
// in-memory nonce index from disk.
func NewLedgerStore(dbProvider db.DatabaseProvider) (*LedgerStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	ls := &LedgerStore{
		dbProvider:  dbProvider,
		bySender:    make(map[string]map[uint64]string),
		localHashes: make(map[string]struct{}),
	}
	if err := ls.loadIndex(); err != nil {
		return nil, err
	}
	return ls, nil
}

func (ls *LedgerStore) loadIndex() error {
	err := ls.dbProvider.IteratePrefix([]byte(PrefixTx), func(key, value []byte) bool {
		var tx transaction.OfflineTransaction
		if err := jsonx.Unmarshal(value, &tx); err != nil {
			logx.Warn("LEDGER_STORE", "Skipping unreadable record ", string(key), ": ", err)
			return true
		}
		ls.indexLocked(&tx)
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild nonce index: %w", err)
	}
	err = ls.dbProvider.IteratePrefix([]byte(PrefixLocal), func(key, value []byte) bool {
		ls.localHashes[string(key[len(PrefixLocal):])] = struct{}{}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild local-origin set: %w", err)
	}
	return nil
}

func (ls *LedgerStore) indexLocked(tx *transaction.OfflineTransaction) {
	nonces, ok := ls.bySender[tx.From]
	if !ok {
		nonces = make(map[uint64]string)
		ls.bySender[tx.From] = nonces
	}
	nonces[tx.Nonce] = tx.Hash
}

// Put upserts a mesh-received transaction keyed by hash. Duplicate delivery
// is a no-op, not an error; added reports whether the record was new.
func (ls *LedgerStore) Put(tx *transaction.OfflineTransaction) (added bool, err error) {
	return ls.put(tx, false)
}

// PutLocal stores a locally originated transaction and marks it eligible for
// ledger submission from this device.
func (ls *LedgerStore) PutLocal(tx *transaction.OfflineTransaction) (added bool, err error) {
	return ls.put(tx, true)
}

func (ls *LedgerStore) put(tx *transaction.OfflineTransaction, local bool) (bool, error) {
	if tx.Hash == "" {
		return false, fmt.Errorf("transaction has no hash")
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	exists, err := ls.dbProvider.Has(ls.txKey(tx.Hash))
	if err != nil {
		return false, fmt.Errorf("failed to check transaction %s: %w", tx.Hash, err)
	}
	if exists {
		logx.Debug("LEDGER_STORE", "Duplicate transaction ", tx.Hash, ", keeping stored record")
		return false, nil
	}

	txData, err := jsonx.Marshal(tx)
	if err != nil {
		return false, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	batch := ls.dbProvider.Batch()
	defer batch.Close()
	batch.Put(ls.txKey(tx.Hash), txData)
	if local {
		batch.Put([]byte(PrefixLocal+tx.Hash), []byte{1})
	}
	if err := batch.Write(); err != nil {
		return false, fmt.Errorf("failed to write transaction %s: %w", tx.Hash, err)
	}

	ls.indexLocked(tx)
	if local {
		ls.localHashes[tx.Hash] = struct{}{}
	}
	return true, nil
}

// GetByHash retrieves a transaction by its content hash, nil when absent.
func (ls *LedgerStore) GetByHash(txHash string) (*transaction.OfflineTransaction, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.getLocked(txHash)
}

func (ls *LedgerStore) getLocked(txHash string) (*transaction.OfflineTransaction, error) {
	data, err := ls.dbProvider.Get(ls.txKey(txHash))
	if err != nil {
		return nil, fmt.Errorf("could not get transaction %s from db: %w", txHash, err)
	}
	if data == nil {
		return nil, nil
	}
	var tx transaction.OfflineTransaction
	if err := jsonx.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction %s: %w", txHash, err)
	}
	return &tx, nil
}

// NextNonce returns one plus the highest nonce stored for transactions
// originated by address, so 1 for a fresh sender.
func (ls *LedgerStore) NextNonce(address string) uint64 {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var highest uint64
	for nonce := range ls.bySender[address] {
		if nonce > highest {
			highest = nonce
		}
	}
	return highest + 1
}

// PendingForSync returns locally originated PENDING transactions ordered by
// (from, nonce) ascending. A sender's transactions past a nonce gap are held
// back so the ledger never receives a transaction out of sequence.
func (ls *LedgerStore) PendingForSync() ([]*transaction.OfflineTransaction, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	senders := make([]string, 0, len(ls.bySender))
	for sender := range ls.bySender {
		senders = append(senders, sender)
	}
	sort.Strings(senders)

	var pending []*transaction.OfflineTransaction
	for _, sender := range senders {
		nonces := ls.bySender[sender]
		for nonce := uint64(1); ; nonce++ {
			hash, ok := nonces[nonce]
			if !ok {
				// gap: everything above stays ineligible until it fills
				break
			}
			if _, local := ls.localHashes[hash]; !local {
				continue
			}
			tx, err := ls.getLocked(hash)
			if err != nil {
				return nil, err
			}
			if tx != nil && tx.Status == transaction.StatusPending {
				pending = append(pending, tx)
			}
		}
	}
	return pending, nil
}

// UpdateStatus applies a status transition. Backward moves are rejected with
// a warning and leave the stored record untouched.
func (ls *LedgerStore) UpdateStatus(txHash string, newStatus transaction.Status) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	tx, err := ls.getLocked(txHash)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("transaction %s not found", txHash)
	}
	if !tx.Status.CanTransitionTo(newStatus) {
		logx.Warn("LEDGER_STORE", fmt.Sprintf("Refusing status change %s -> %s for %s", tx.Status, newStatus, txHash))
		return nil
	}
	if tx.Status == newStatus {
		return nil
	}

	tx.Status = newStatus
	return ls.writeLocked(tx)
}

// MarkSynced atomically sets synced_on_ledger and COMPLETED on a transaction
// accepted by the ledger.
func (ls *LedgerStore) MarkSynced(txHash string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	tx, err := ls.getLocked(txHash)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("transaction %s not found", txHash)
	}
	if !tx.Status.CanTransitionTo(transaction.StatusCompleted) {
		logx.Warn("LEDGER_STORE", fmt.Sprintf("Refusing to mark %s synced from status %s", txHash, tx.Status))
		return nil
	}

	tx.Status = transaction.StatusCompleted
	tx.SyncedOnLedger = true
	return ls.writeLocked(tx)
}

// MarkMeshPropagated records that the transaction reached at least one peer.
func (ls *LedgerStore) MarkMeshPropagated(txHash string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	tx, err := ls.getLocked(txHash)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("transaction %s not found", txHash)
	}
	if tx.MeshPropagated {
		return nil
	}
	tx.MeshPropagated = true
	return ls.writeLocked(tx)
}

func (ls *LedgerStore) writeLocked(tx *transaction.OfflineTransaction) error {
	txData, err := jsonx.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}
	if err := ls.dbProvider.Put(ls.txKey(tx.Hash), txData); err != nil {
		return fmt.Errorf("failed to write transaction %s: %w", tx.Hash, err)
	}
	return nil
}

// ListByStatus returns all stored transactions in the given status, ordered
// by (from, nonce).
func (ls *LedgerStore) ListByStatus(status transaction.Status) ([]*transaction.OfflineTransaction, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var txs []*transaction.OfflineTransaction
	err := ls.dbProvider.IteratePrefix([]byte(PrefixTx), func(key, value []byte) bool {
		var tx transaction.OfflineTransaction
		if err := jsonx.Unmarshal(value, &tx); err != nil {
			logx.Warn("LEDGER_STORE", "Skipping unreadable record ", string(key), ": ", err)
			return true
		}
		if tx.Status == status {
			txs = append(txs, &tx)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].From != txs[j].From {
			return txs[i].From < txs[j].From
		}
		return txs[i].Nonce < txs[j].Nonce
	})
	return txs, nil
}

// ListByCounterparty returns all transactions sent to or from address,
// oldest first. Backs the history view.
func (ls *LedgerStore) ListByCounterparty(address string) ([]*transaction.OfflineTransaction, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var txs []*transaction.OfflineTransaction
	err := ls.dbProvider.IteratePrefix([]byte(PrefixTx), func(key, value []byte) bool {
		var tx transaction.OfflineTransaction
		if err := jsonx.Unmarshal(value, &tx); err != nil {
			logx.Warn("LEDGER_STORE", "Skipping unreadable record ", string(key), ": ", err)
			return true
		}
		if tx.From == address || tx.To == address {
			txs = append(txs, &tx)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].Timestamp < txs[j].Timestamp })
	return txs, nil
}

// Count returns the number of stored transactions.
func (ls *LedgerStore) Count() int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	count := 0
	for _, nonces := range ls.bySender {
		count += len(nonces)
	}
	return count
}

// MustClose closes the store and the underlying provider.
func (ls *LedgerStore) MustClose() {
	if err := ls.dbProvider.Close(); err != nil {
		logx.Error("LEDGER_STORE", "Failed to close provider: ", err)
	}
}

func (ls *LedgerStore) txKey(txHash string) []byte {
	return []byte(PrefixTx + txHash)
}
