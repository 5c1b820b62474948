package store

const (
	// PrefixTx keys a stored transaction by its content hash.
	PrefixTx = "tx:"
	// PrefixLocal marks a transaction as locally originated. Only these are
	// eligible for ledger submission from this device.
	PrefixLocal = "local:"
	// KeyIdentity holds the device identity keypair.
	KeyIdentity = "identity:self"
)
