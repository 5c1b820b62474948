package ledger

import (
	"context"
	"fmt"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"

	meshErrors "github.com/globepay/meshpay/errors"
	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/transaction"
)

// MaxBatchSize is the ledger-imposed ceiling on one submission.
const MaxBatchSize = 20

// BatchEntry is one wire row of a submission batch, in the exact field order
// the ledger validates against.
type BatchEntry struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

type submitBatchParams struct {
	Transactions []BatchEntry `json:"transactions"`
}

// Client talks JSON-RPC over HTTP to the ledger gateway. Transport failures
// map to ledger_submission_failed so the coordinator retries them.
type Client struct {
	endpoint string
	cli      *jrpc2.Client
	ch       *jhttp.Channel
}

// NewClient creates a ledger client for the given HTTP endpoint.
func NewClient(endpoint string) *Client {
	ch := jhttp.NewChannel(endpoint, nil)
	return &Client{
		endpoint: endpoint,
		ch:       ch,
		cli:      jrpc2.NewClient(ch, nil),
	}
}

// SubmitBatch submits up to MaxBatchSize transactions in order and returns
// the per-transaction outcomes.
func (c *Client) SubmitBatch(ctx context.Context, txs []*transaction.OfflineTransaction) (*transaction.BatchResult, error) {
	if len(txs) == 0 {
		return &transaction.BatchResult{}, nil
	}
	if len(txs) > MaxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum %d", len(txs), MaxBatchSize)
	}

	params := submitBatchParams{Transactions: make([]BatchEntry, 0, len(txs))}
	for _, tx := range txs {
		params.Transactions = append(params.Transactions, BatchEntry{
			Hash:      tx.Hash,
			From:      tx.From,
			To:        tx.To,
			Amount:    tx.Amount,
			Nonce:     tx.Nonce,
			Timestamp: tx.Timestamp,
			Signature: tx.Signature,
		})
	}

	var result transaction.BatchResult
	if err := c.cli.CallResult(ctx, "mesh.submitBatch", params, &result); err != nil {
		logx.Warn("LEDGER", "Batch submission failed: ", err)
		return nil, meshErrors.NewError(meshErrors.ErrCodeLedgerSubmissionFailed, meshErrors.ErrMsgLedgerSubmissionFailed)
	}
	return &result, nil
}

// GetBatchStatus queries the outcome of a previously submitted batch by its
// confirmation reference.
func (c *Client) GetBatchStatus(ctx context.Context, confirmationRef string) (*transaction.BatchResult, error) {
	var result transaction.BatchResult
	params := map[string]string{"confirmation_ref": confirmationRef}
	if err := c.cli.CallResult(ctx, "mesh.getBatchStatus", params, &result); err != nil {
		return nil, meshErrors.NewError(meshErrors.ErrCodeLedgerSubmissionFailed, meshErrors.ErrMsgLedgerSubmissionFailed)
	}
	return &result, nil
}

// Close releases the underlying channel.
func (c *Client) Close() error {
	c.cli.Close()
	return nil
}
