package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadNodeConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	yml := `node:
  data_dir: /var/lib/meshpay
  db_backend: bolt
  listen_addr: /ip4/0.0.0.0/tcp/9000
  bootstrap_peers:
    - /ip4/10.0.0.1/tcp/9000/p2p/QmBootstrap
  ledger_endpoint: http://ledger.example:8080/rpc
  api_addr: :8645
  metrics_addr: :9100
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/meshpay", cfg.DataDir)
	require.Equal(t, "bolt", cfg.DBBackend)
	require.Equal(t, "/ip4/0.0.0.0/tcp/9000", cfg.ListenAddr)
	require.Len(t, cfg.BootstrapPeers, 1)
	require.Equal(t, "http://ledger.example:8080/rpc", cfg.LedgerEndpoint)
	require.Equal(t, "/var/lib/meshpay/identity.key", cfg.KeyFile)
}

func TestLoadNodeConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("node: {}\n"), 0o644))

	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, "leveldb", cfg.DBBackend)
	require.Equal(t, "./data/identity.key", cfg.KeyFile)
}

func TestLoadNodeConfigMissingFile(t *testing.T) {
	_, err := LoadNodeConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestTuningSectionsFromINI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meshpay.ini")
	ini := `[gossip]
initial_ttl = 7
dedup_window_minutes = 30
peer_list_connect_percent = 50

[overlay]
announce_interval_ms = 10000
reconnect_delay_ms = 2000

[sync]
interval_ms = 15000
batch_size = 10
`
	require.NoError(t, os.WriteFile(path, []byte(ini), 0o644))

	gossipCfg, err := LoadGossipConfig(path)
	require.NoError(t, err)
	require.Equal(t, 7, gossipCfg.InitialTTL)
	require.Equal(t, 30, gossipCfg.DedupWindowMinutes)
	require.Equal(t, 50, gossipCfg.PeerListConnectPercent)

	overlayCfg, err := LoadOverlayConfig(path)
	require.NoError(t, err)
	require.Equal(t, 10000, overlayCfg.AnnounceIntervalMs)
	require.Equal(t, 2000, overlayCfg.ReconnectDelayMs)

	syncCfg, err := LoadSyncConfig(path)
	require.NoError(t, err)
	require.Equal(t, 15000, syncCfg.IntervalMs)
	require.Equal(t, 10, syncCfg.BatchSize)
}

func TestTuningDefaultsWhenFileAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.ini")

	gossipCfg, err := LoadGossipConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultGossipConfig(), gossipCfg)

	overlayCfg, err := LoadOverlayConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultOverlayConfig(), overlayCfg)

	syncCfg, err := LoadSyncConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultSyncConfig(), syncCfg)
}
