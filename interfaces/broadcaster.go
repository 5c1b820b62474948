package interfaces

import (
	"github.com/globepay/meshpay/transaction"
)

// Broadcaster floods a transaction across the mesh. The gossip router
// implements it; callers treat "not propagated" as a fallback signal, not a
// failure.
type Broadcaster interface {
	BroadcastTransaction(tx *transaction.OfflineTransaction) error
}
