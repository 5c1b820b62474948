package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/globepay/meshpay/db"
	"github.com/globepay/meshpay/transaction"
	"github.com/globepay/meshpay/wallet"
)

func newTestStore(t *testing.T) (*LedgerStore, db.DatabaseProvider) {
	t.Helper()
	provider := db.NewMemoryProvider()
	ls, err := NewLedgerStore(provider)
	if err != nil {
		t.Fatalf("NewLedgerStore failed: %v", err)
	}
	return ls, provider
}

func makeTx(t *testing.T, kp *wallet.Keypair, nonce uint64) *transaction.OfflineTransaction {
	t.Helper()
	tx := &transaction.OfflineTransaction{
		ID:        fmt.Sprintf("tx-%s-%d", kp.Address[:6], nonce),
		From:      kp.Address,
		To:        "recipient",
		Amount:    "100",
		Nonce:     nonce,
		Timestamp: time.Now().UnixMilli(),
		Status:    transaction.StatusPending,
	}
	message := tx.CanonicalMessage()
	tx.Signature = wallet.Sign(message, kp.PrivateKey)
	tx.Hash = wallet.HashMessage(message)
	return tx
}

func TestPutIsIdempotent(t *testing.T) {
	ls, _ := newTestStore(t)
	kp, _ := wallet.Generate()
	tx := makeTx(t, kp, 1)

	added, err := ls.Put(tx)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !added {
		t.Fatal("First put should report added")
	}

	// Second delivery with a mutated status must not clobber the record
	dup := *tx
	dup.Status = transaction.StatusCompleted
	added, err = ls.Put(&dup)
	if err != nil {
		t.Fatalf("Duplicate put failed: %v", err)
	}
	if added {
		t.Fatal("Duplicate put should not report added")
	}

	stored, err := ls.GetByHash(tx.Hash)
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if stored.Status != transaction.StatusPending {
		t.Fatalf("Duplicate put overwrote stored record: %s", stored.Status)
	}
	if ls.Count() != 1 {
		t.Fatalf("Expected 1 stored transaction, got %d", ls.Count())
	}
}

func TestGetByHashAbsent(t *testing.T) {
	ls, _ := newTestStore(t)
	tx, err := ls.GetByHash("missing")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if tx != nil {
		t.Fatal("Absent hash should return nil")
	}
}

func TestNextNonce(t *testing.T) {
	ls, _ := newTestStore(t)
	kp, _ := wallet.Generate()

	if got := ls.NextNonce(kp.Address); got != 1 {
		t.Fatalf("Fresh sender should start at nonce 1, got %d", got)
	}

	for nonce := uint64(1); nonce <= 3; nonce++ {
		if _, err := ls.PutLocal(makeTx(t, kp, nonce)); err != nil {
			t.Fatalf("PutLocal failed: %v", err)
		}
	}
	if got := ls.NextNonce(kp.Address); got != 4 {
		t.Fatalf("NextNonce after 3 transactions should be 4, got %d", got)
	}
}

func TestPendingForSyncHoldsBackNonceGap(t *testing.T) {
	ls, _ := newTestStore(t)
	kp, _ := wallet.Generate()

	// Nonces 1, 2, 4: the gap at 3 keeps 4 ineligible
	for _, nonce := range []uint64{1, 2, 4} {
		if _, err := ls.PutLocal(makeTx(t, kp, nonce)); err != nil {
			t.Fatalf("PutLocal failed: %v", err)
		}
	}

	pending, err := ls.PendingForSync()
	if err != nil {
		t.Fatalf("PendingForSync failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 eligible transactions, got %d", len(pending))
	}
	if pending[0].Nonce != 1 || pending[1].Nonce != 2 {
		t.Fatalf("Eligible set out of order: %d, %d", pending[0].Nonce, pending[1].Nonce)
	}

	// Filling the gap releases nonce 4
	if _, err := ls.PutLocal(makeTx(t, kp, 3)); err != nil {
		t.Fatalf("PutLocal failed: %v", err)
	}
	pending, err = ls.PendingForSync()
	if err != nil {
		t.Fatalf("PendingForSync failed: %v", err)
	}
	if len(pending) != 4 {
		t.Fatalf("Expected 4 eligible transactions after gap filled, got %d", len(pending))
	}
}

func TestPendingForSyncExcludesMeshReceived(t *testing.T) {
	ls, _ := newTestStore(t)
	local, _ := wallet.Generate()
	remote, _ := wallet.Generate()

	if _, err := ls.PutLocal(makeTx(t, local, 1)); err != nil {
		t.Fatalf("PutLocal failed: %v", err)
	}
	if _, err := ls.Put(makeTx(t, remote, 1)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	pending, err := ls.PendingForSync()
	if err != nil {
		t.Fatalf("PendingForSync failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Only locally originated transactions sync from this device, got %d", len(pending))
	}
	if pending[0].From != local.Address {
		t.Fatalf("Wrong transaction eligible: %s", pending[0].From)
	}
}

func TestUpdateStatusRefusesBackwardMove(t *testing.T) {
	ls, _ := newTestStore(t)
	kp, _ := wallet.Generate()
	tx := makeTx(t, kp, 1)
	if _, err := ls.PutLocal(tx); err != nil {
		t.Fatalf("PutLocal failed: %v", err)
	}

	if err := ls.UpdateStatus(tx.Hash, transaction.StatusProcessing); err != nil {
		t.Fatalf("PENDING -> PROCESSING failed: %v", err)
	}
	if err := ls.MarkSynced(tx.Hash); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	// Backward move is swallowed, not applied
	if err := ls.UpdateStatus(tx.Hash, transaction.StatusPending); err != nil {
		t.Fatalf("Backward move should be a no-op, got error: %v", err)
	}
	stored, _ := ls.GetByHash(tx.Hash)
	if stored.Status != transaction.StatusCompleted {
		t.Fatalf("Backward move changed status to %s", stored.Status)
	}
	if !stored.SyncedOnLedger {
		t.Fatal("MarkSynced should set synced_on_ledger")
	}
}

func TestUpdateStatusUnknownHash(t *testing.T) {
	ls, _ := newTestStore(t)
	if err := ls.UpdateStatus("missing", transaction.StatusProcessing); err == nil {
		t.Fatal("Unknown hash should fail")
	}
}

func TestMarkMeshPropagated(t *testing.T) {
	ls, _ := newTestStore(t)
	kp, _ := wallet.Generate()
	tx := makeTx(t, kp, 1)
	if _, err := ls.PutLocal(tx); err != nil {
		t.Fatalf("PutLocal failed: %v", err)
	}

	if err := ls.MarkMeshPropagated(tx.Hash); err != nil {
		t.Fatalf("MarkMeshPropagated failed: %v", err)
	}
	stored, _ := ls.GetByHash(tx.Hash)
	if !stored.MeshPropagated {
		t.Fatal("mesh_propagated not set")
	}
}

func TestListByStatusOrdering(t *testing.T) {
	ls, _ := newTestStore(t)
	kp, _ := wallet.Generate()

	for nonce := uint64(1); nonce <= 3; nonce++ {
		if _, err := ls.PutLocal(makeTx(t, kp, nonce)); err != nil {
			t.Fatalf("PutLocal failed: %v", err)
		}
	}
	listed, err := ls.ListByStatus(transaction.StatusPending)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("Expected 3 pending, got %d", len(listed))
	}
	for i, tx := range listed {
		if tx.Nonce != uint64(i+1) {
			t.Fatalf("List out of nonce order at %d: %d", i, tx.Nonce)
		}
	}
}

func TestListByCounterparty(t *testing.T) {
	ls, _ := newTestStore(t)
	alice, _ := wallet.Generate()
	bob, _ := wallet.Generate()

	sent := makeTx(t, alice, 1)
	received := makeTx(t, bob, 1)
	received.To = alice.Address
	message := received.CanonicalMessage()
	received.Signature = wallet.Sign(message, bob.PrivateKey)
	received.Hash = wallet.HashMessage(message)
	unrelated := makeTx(t, bob, 2)

	for _, tx := range []*transaction.OfflineTransaction{sent, received, unrelated} {
		if _, err := ls.Put(tx); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	history, err := ls.ListByCounterparty(alice.Address)
	if err != nil {
		t.Fatalf("ListByCounterparty failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 transactions involving alice, got %d", len(history))
	}
	for _, tx := range history {
		if tx.From != alice.Address && tx.To != alice.Address {
			t.Fatalf("Unrelated transaction in history: %+v", tx)
		}
	}
}

func TestIndexRebuildsOnReopen(t *testing.T) {
	ls, provider := newTestStore(t)
	kp, _ := wallet.Generate()

	for nonce := uint64(1); nonce <= 2; nonce++ {
		if _, err := ls.PutLocal(makeTx(t, kp, nonce)); err != nil {
			t.Fatalf("PutLocal failed: %v", err)
		}
	}

	// Reopen over the same provider: nonce index and local-origin set come
	// back from disk
	reopened, err := NewLedgerStore(provider)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if got := reopened.NextNonce(kp.Address); got != 3 {
		t.Fatalf("Rebuilt index lost nonces, NextNonce = %d", got)
	}
	pending, err := reopened.PendingForSync()
	if err != nil {
		t.Fatalf("PendingForSync failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Rebuilt local-origin set lost entries, got %d pending", len(pending))
	}
}

func TestIdentityPersistence(t *testing.T) {
	ls, provider := newTestStore(t)

	kp, err := ls.GetIdentity()
	if err != nil {
		t.Fatalf("GetIdentity failed: %v", err)
	}
	if kp != nil {
		t.Fatal("Fresh store should have no identity")
	}

	created, err := ls.LoadOrCreateIdentity()
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity failed: %v", err)
	}

	reopened, err := NewLedgerStore(provider)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	loaded, err := reopened.LoadOrCreateIdentity()
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity after reopen failed: %v", err)
	}
	if loaded.Address != created.Address {
		t.Fatalf("Identity not stable across reopen: %s != %s", loaded.Address, created.Address)
	}
}
