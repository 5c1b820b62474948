package db

import (
	"fmt"
	"path/filepath"
)

const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

// NewProvider opens the configured backend under dataDir.
func NewProvider(backend, dataDir string) (DatabaseProvider, error) {
	switch backend {
	case BackendLevelDB, "":
		return NewLevelDBProvider(filepath.Join(dataDir, "ledgerstore"))
	case BackendBolt:
		return NewBoltProvider(filepath.Join(dataDir, "ledgerstore.db"))
	case BackendMemory:
		return NewMemoryProvider(), nil
	default:
		return nil, fmt.Errorf("unknown db backend %q", backend)
	}
}
