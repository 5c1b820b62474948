package store

import (
	"encoding/hex"
	"fmt"

	"github.com/globepay/meshpay/jsonx"
	"github.com/globepay/meshpay/logx"
	"github.com/globepay/meshpay/wallet"
)

type identityRecord struct {
	Address string `json:"address"`
	SeedHex string `json:"seed_hex"`
}

// GetIdentity loads the device keypair, nil when none was stored yet.
func (ls *LedgerStore) GetIdentity() (*wallet.Keypair, error) {
	data, err := ls.dbProvider.Get([]byte(KeyIdentity))
	if err != nil {
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var rec identityRecord
	if err := jsonx.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}
	kp, err := wallet.FromSeedHex(rec.SeedHex)
	if err != nil {
		return nil, err
	}
	if rec.Address != kp.Address {
		return nil, fmt.Errorf("stored identity address %s does not match key", rec.Address)
	}
	return kp, nil
}

// PutIdentity persists the device keypair. The private key never leaves the
// local store except through the signing operation.
func (ls *LedgerStore) PutIdentity(kp *wallet.Keypair) error {
	rec := identityRecord{
		Address: kp.Address,
		SeedHex: hex.EncodeToString(kp.PrivateKey.Seed()),
	}
	data, err := jsonx.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	return ls.dbProvider.Put([]byte(KeyIdentity), data)
}

// LoadOrCreateIdentity returns the stored keypair, generating and persisting
// one on first run.
func (ls *LedgerStore) LoadOrCreateIdentity() (*wallet.Keypair, error) {
	kp, err := ls.GetIdentity()
	if err != nil {
		return nil, err
	}
	if kp != nil {
		return kp, nil
	}

	kp, err = wallet.Generate()
	if err != nil {
		return nil, err
	}
	if err := ls.PutIdentity(kp); err != nil {
		return nil, err
	}
	logx.Info("LEDGER_STORE", "Created device identity: ", kp.Address)
	return kp, nil
}
