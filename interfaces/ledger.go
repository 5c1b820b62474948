package interfaces

import (
	"context"

	"github.com/globepay/meshpay/transaction"
)

// LedgerSubmitter is the narrow surface of the external authoritative
// ledger: submit a bounded ordered batch, get per-transaction outcomes back.
type LedgerSubmitter interface {
	SubmitBatch(ctx context.Context, txs []*transaction.OfflineTransaction) (*transaction.BatchResult, error)
}
