package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/globepay/meshpay/config"
	"github.com/globepay/meshpay/exception"
	"github.com/globepay/meshpay/interfaces"
	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/monitoring"
	"github.com/globepay/meshpay/store"
	"github.com/globepay/meshpay/transaction"

	"github.com/google/uuid"
)

// Coordinator drains the store's pending set and reconciles it against the
// external ledger in bounded batches. Two reconciliation passes never run
// concurrently.
type Coordinator struct {
	ledgerStore *store.LedgerStore
	submitter   interfaces.LedgerSubmitter

	interval  time.Duration
	batchSize int

	online  atomic.Bool
	syncing atomic.Bool
}

// NewCoordinator wires a coordinator over the store and ledger client.
func NewCoordinator(ledgerStore *store.LedgerStore, submitter interfaces.LedgerSubmitter, cfg *config.SyncConfig) *Coordinator {
	if cfg == nil {
		cfg = config.DefaultSyncConfig()
	}
	return &Coordinator{
		ledgerStore: ledgerStore,
		submitter:   submitter,
		interval:    time.Duration(cfg.IntervalMs) * time.Millisecond,
		batchSize:   cfg.BatchSize,
	}
}

// Start runs the periodic reconciliation timer until ctx is done. Stopping
// the timer never aborts an in-flight run.
func (c *Coordinator) Start(ctx context.Context) {
	exception.SafeGo("SyncCoordinator", func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !c.online.Load() {
					continue
				}
				if err := c.RunOnce(ctx); err != nil {
					logx.Warn("SYNC", "Reconciliation round failed: ", err)
				}
			case <-ctx.Done():
				return
			}
		}
	})
}

// SetOnline records a connectivity transition. Coming online triggers an
// immediate reconciliation run.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) {
	was := c.online.Swap(online)
	if online && !was {
		exception.SafeGo("SyncOnOnline", func() {
			if err := c.RunOnce(ctx); err != nil {
				logx.Warn("SYNC", "Reconciliation after reconnect failed: ", err)
			}
		})
	}
}

// IsOnline reports the current connectivity flag.
func (c *Coordinator) IsOnline() bool {
	return c.online.Load()
}

// RunOnce performs one reconciliation pass. When a pass is already running
// the call is skipped, not queued.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	if !c.syncing.CompareAndSwap(false, true) {
		logx.Debug("SYNC", "Reconciliation already in progress, skipping")
		return nil
	}
	// Guaranteed cleanup on every exit path.
	defer c.syncing.Store(false)

	started := time.Now()
	monitoring.IncreaseSyncRoundCount()

	pending, err := c.ledgerStore.PendingForSync()
	if err != nil {
		return err
	}
	monitoring.SetPendingTxCount(len(pending))
	if len(pending) == 0 {
		return nil
	}

	logx.Info("SYNC", "Reconciling ", len(pending), " pending transactions")
	for _, work := range c.partition(pending) {
		if err := c.submitBatch(ctx, work); err != nil {
			// Transport-level failure: everything already reverted, the rest
			// of the pending set waits for the next cycle.
			monitoring.ObserveSyncRoundDuration(time.Since(started))
			return err
		}
	}
	monitoring.ObserveSyncRoundDuration(time.Since(started))
	return nil
}

// batchWork pairs one ephemeral SyncBatch with its transactions for the
// duration of a round.
type batchWork struct {
	batch *transaction.SyncBatch
	txs   []*transaction.OfflineTransaction
}

// partition splits the ordered pending set into batches of at most
// batchSize, preserving the per-sender nonce order the store produced.
func (c *Coordinator) partition(pending []*transaction.OfflineTransaction) []batchWork {
	var work []batchWork
	for start := 0; start < len(pending); start += c.batchSize {
		end := start + c.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		txs := pending[start:end]
		ids := make([]string, 0, len(txs))
		for _, tx := range txs {
			ids = append(ids, tx.ID)
		}
		work = append(work, batchWork{
			batch: &transaction.SyncBatch{
				BatchID:        uuid.NewString(),
				TransactionIDs: ids,
				SubmittedAt:    time.Now().UnixMilli(),
				Outcome:        transaction.BatchPending,
			},
			txs: txs,
		})
	}
	return work
}

func (c *Coordinator) submitBatch(ctx context.Context, work batchWork) error {
	batch, txs := work.batch, work.txs

	for _, tx := range txs {
		if err := c.ledgerStore.UpdateStatus(tx.Hash, transaction.StatusProcessing); err != nil {
			logx.Warn("SYNC", "Failed to mark ", tx.Hash, " processing: ", err)
		}
	}

	result, err := c.submitter.SubmitBatch(ctx, txs)
	if err != nil {
		// Transient failure: revert to PENDING so the batch retries next
		// cycle. FAILED is reserved for deterministic rejections.
		for _, tx := range txs {
			if revertErr := c.ledgerStore.UpdateStatus(tx.Hash, transaction.StatusPending); revertErr != nil {
				logx.Error("SYNC", "Failed to revert ", tx.Hash, " to pending: ", revertErr)
			}
		}
		batch.Outcome = transaction.BatchPending
		return err
	}

	monitoring.AddSubmittedTxCount(len(txs))

	accepted := 0
	outcomes := make(map[string]transaction.TxOutcome, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		outcomes[outcome.Hash] = outcome
	}
	for _, tx := range txs {
		outcome, ok := outcomes[tx.Hash]
		if !ok {
			// No verdict for this transaction: treat as transient.
			if err := c.ledgerStore.UpdateStatus(tx.Hash, transaction.StatusPending); err != nil {
				logx.Error("SYNC", "Failed to revert ", tx.Hash, " to pending: ", err)
			}
			continue
		}
		if outcome.Accepted {
			if err := c.ledgerStore.MarkSynced(tx.Hash); err != nil {
				logx.Error("SYNC", "Failed to mark ", tx.Hash, " synced: ", err)
				continue
			}
			accepted++
			continue
		}
		logx.Warn("SYNC", "Ledger rejected ", tx.Hash, ": ", outcome.Reason)
		monitoring.IncreaseRejectedTxCount(monitoring.TxLedgerRejected)
		if err := c.ledgerStore.UpdateStatus(tx.Hash, transaction.StatusRejected); err != nil {
			logx.Error("SYNC", "Failed to mark ", tx.Hash, " rejected: ", err)
		}
	}

	switch accepted {
	case len(txs):
		batch.Outcome = transaction.BatchComplete
	case 0:
		batch.Outcome = transaction.BatchPending
	default:
		batch.Outcome = transaction.BatchPartial
	}
	if batch.Outcome != transaction.BatchComplete && result.ConfirmationRef != "" {
		logx.Info("SYNC", "Batch ", batch.BatchID, " outcome ", batch.Outcome, " ref ", result.ConfirmationRef)
	}
	return nil
}
