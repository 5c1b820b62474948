package transaction

// BatchOutcome is the coarse result of one submitted batch.
type BatchOutcome string

const (
	BatchPending  BatchOutcome = "pending"
	BatchPartial  BatchOutcome = "partial"
	BatchComplete BatchOutcome = "complete"
)

// SyncBatch is one reconciliation unit. It lives only for the duration of a
// sync round; nothing persists it.
type SyncBatch struct {
	BatchID        string
	TransactionIDs []string
	SubmittedAt    int64
	Outcome        BatchOutcome
}

// TxOutcome is the ledger's per-transaction verdict.
type TxOutcome struct {
	Hash     string `json:"hash"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// BatchResult is the ledger's response to one submitted batch.
type BatchResult struct {
	ConfirmationRef string      `json:"confirmation_ref"`
	Outcomes        []TxOutcome `json:"outcomes"`
}
