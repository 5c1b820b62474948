package syncer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/globepay/meshpay/config"
	"github.com/globepay/meshpay/db"
	meshErrors "github.com/globepay/meshpay/errors"
	"github.com/globepay/meshpay/store"
	"github.com/globepay/meshpay/transaction"
	"github.com/globepay/meshpay/wallet"
)

// ----------------- Helpers / Mocks -----------------

// fakeSubmitter scripts the ledger's verdicts per transaction hash.
type fakeSubmitter struct {
	mu       sync.Mutex
	batches  [][]*transaction.OfflineTransaction
	rejected map[string]string // hash -> reason
	omit     map[string]bool   // hash -> leave without a verdict
	fail     bool
	block    chan struct{}
}

func (f *fakeSubmitter) SubmitBatch(ctx context.Context, txs []*transaction.OfflineTransaction) (*transaction.BatchResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, meshErrors.NewError(meshErrors.ErrCodeLedgerSubmissionFailed, "ledger unreachable")
	}
	f.batches = append(f.batches, txs)

	result := &transaction.BatchResult{ConfirmationRef: fmt.Sprintf("ref-%d", len(f.batches))}
	for _, tx := range txs {
		if f.omit[tx.Hash] {
			continue
		}
		if reason, ok := f.rejected[tx.Hash]; ok {
			result.Outcomes = append(result.Outcomes, transaction.TxOutcome{Hash: tx.Hash, Accepted: false, Reason: reason})
			continue
		}
		result.Outcomes = append(result.Outcomes, transaction.TxOutcome{Hash: tx.Hash, Accepted: true})
	}
	return result, nil
}

func (f *fakeSubmitter) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func newSyncedStore(t *testing.T, txCount int) (*store.LedgerStore, []*transaction.OfflineTransaction) {
	t.Helper()
	ls, err := store.NewLedgerStore(db.NewMemoryProvider())
	if err != nil {
		t.Fatalf("NewLedgerStore failed: %v", err)
	}
	kp, err := wallet.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var txs []*transaction.OfflineTransaction
	for nonce := uint64(1); nonce <= uint64(txCount); nonce++ {
		tx := &transaction.OfflineTransaction{
			ID:        fmt.Sprintf("tx-%d", nonce),
			From:      kp.Address,
			To:        "recipient",
			Amount:    "50",
			Nonce:     nonce,
			Timestamp: time.Now().UnixMilli(),
			Status:    transaction.StatusPending,
		}
		message := tx.CanonicalMessage()
		tx.Signature = wallet.Sign(message, kp.PrivateKey)
		tx.Hash = wallet.HashMessage(message)
		if _, err := ls.PutLocal(tx); err != nil {
			t.Fatalf("PutLocal failed: %v", err)
		}
		txs = append(txs, tx)
	}
	return ls, txs
}

func testSyncConfig(batchSize int) *config.SyncConfig {
	return &config.SyncConfig{IntervalMs: 60000, BatchSize: batchSize}
}

// ----------------- Tests -----------------

func TestRunOnceMarksAcceptedCompleted(t *testing.T) {
	ls, txs := newSyncedStore(t, 3)
	submitter := &fakeSubmitter{}
	c := NewCoordinator(ls, submitter, testSyncConfig(20))

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	for _, tx := range txs {
		stored, _ := ls.GetByHash(tx.Hash)
		if stored.Status != transaction.StatusCompleted {
			t.Fatalf("Accepted transaction %d should be COMPLETED, got %s", tx.Nonce, stored.Status)
		}
		if !stored.SyncedOnLedger {
			t.Fatalf("Accepted transaction %d should be marked synced", tx.Nonce)
		}
	}

	// Nothing left for the next round
	pending, _ := ls.PendingForSync()
	if len(pending) != 0 {
		t.Fatalf("Expected empty pending set, got %d", len(pending))
	}
}

func TestRunOnceMarksRejected(t *testing.T) {
	ls, txs := newSyncedStore(t, 2)
	submitter := &fakeSubmitter{rejected: map[string]string{txs[1].Hash: "insufficient balance"}}
	c := NewCoordinator(ls, submitter, testSyncConfig(20))

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	first, _ := ls.GetByHash(txs[0].Hash)
	if first.Status != transaction.StatusCompleted {
		t.Fatalf("Accepted transaction should be COMPLETED, got %s", first.Status)
	}
	second, _ := ls.GetByHash(txs[1].Hash)
	if second.Status != transaction.StatusRejected {
		t.Fatalf("Rejected transaction should be REJECTED, got %s", second.Status)
	}
	if second.SyncedOnLedger {
		t.Fatal("Rejected transaction must not be marked synced")
	}
}

func TestRunOnceRevertsOnTransportFailure(t *testing.T) {
	ls, txs := newSyncedStore(t, 5)
	submitter := &fakeSubmitter{fail: true}
	c := NewCoordinator(ls, submitter, testSyncConfig(20))

	if err := c.RunOnce(context.Background()); err == nil {
		t.Fatal("Transport failure should surface from RunOnce")
	}

	// Every transaction reverted to PENDING and eligible again
	for _, tx := range txs {
		stored, _ := ls.GetByHash(tx.Hash)
		if stored.Status != transaction.StatusPending {
			t.Fatalf("Transaction %d should be reverted to PENDING, got %s", tx.Nonce, stored.Status)
		}
	}
	pending, _ := ls.PendingForSync()
	if len(pending) != 5 {
		t.Fatalf("Reverted transactions should reappear, got %d pending", len(pending))
	}

	// Ledger back up: the retry drains them
	submitter.mu.Lock()
	submitter.fail = false
	submitter.mu.Unlock()
	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("Retry RunOnce failed: %v", err)
	}
	pending, _ = ls.PendingForSync()
	if len(pending) != 0 {
		t.Fatalf("Retry should drain the pending set, got %d", len(pending))
	}
}

func TestRunOnceRevertsMissingVerdict(t *testing.T) {
	ls, txs := newSyncedStore(t, 2)
	submitter := &fakeSubmitter{omit: map[string]bool{txs[1].Hash: true}}
	c := NewCoordinator(ls, submitter, testSyncConfig(20))

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	second, _ := ls.GetByHash(txs[1].Hash)
	if second.Status != transaction.StatusPending {
		t.Fatalf("Verdict-less transaction should revert to PENDING, got %s", second.Status)
	}
}

func TestRunOncePartitionsBatches(t *testing.T) {
	ls, _ := newSyncedStore(t, 45)
	submitter := &fakeSubmitter{}
	c := NewCoordinator(ls, submitter, testSyncConfig(20))

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if submitter.batchCount() != 3 {
		t.Fatalf("45 transactions at batch size 20 should submit 3 batches, got %d", submitter.batchCount())
	}
	submitter.mu.Lock()
	defer submitter.mu.Unlock()
	if len(submitter.batches[0]) != 20 || len(submitter.batches[1]) != 20 || len(submitter.batches[2]) != 5 {
		t.Fatalf("Unexpected batch sizes: %d, %d, %d",
			len(submitter.batches[0]), len(submitter.batches[1]), len(submitter.batches[2]))
	}
}

func TestRunOnceIsMutuallyExclusive(t *testing.T) {
	ls, _ := newSyncedStore(t, 1)
	block := make(chan struct{})
	submitter := &fakeSubmitter{block: block}
	c := NewCoordinator(ls, submitter, testSyncConfig(20))

	done := make(chan error, 1)
	go func() { done <- c.RunOnce(context.Background()) }()

	// Give the first run time to reach the submitter, then overlap
	time.Sleep(50 * time.Millisecond)
	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("Overlapping RunOnce should be skipped, got %v", err)
	}
	if submitter.batchCount() != 0 {
		t.Fatal("Overlapping run must not submit")
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("First RunOnce failed: %v", err)
	}
	if submitter.batchCount() != 1 {
		t.Fatalf("Expected exactly 1 submission, got %d", submitter.batchCount())
	}
}

func TestSetOnlineTriggersImmediateRun(t *testing.T) {
	ls, txs := newSyncedStore(t, 1)
	submitter := &fakeSubmitter{}
	c := NewCoordinator(ls, submitter, testSyncConfig(20))

	if c.IsOnline() {
		t.Fatal("Coordinator should start offline")
	}
	c.SetOnline(context.Background(), true)
	if !c.IsOnline() {
		t.Fatal("SetOnline(true) should flip the flag")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, _ := ls.GetByHash(txs[0].Hash)
		if stored.Status == transaction.StatusCompleted {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Coming online did not trigger a reconciliation run")
}
