package config

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/globepay/meshpay/logx"
)

// LoadNodeConfig reads and parses the node YAML config file
func LoadNodeConfig(path string) (*NodeConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	cfg := cfgFile.Node
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.DBBackend == "" {
		cfg.DBBackend = "leveldb"
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = cfg.DataDir + "/identity.key"
	}

	logx.Info("CONFIG", fmt.Sprintf("Loaded node config: listen=%s, bootstrap=%d peers, ledger=%s",
		cfg.ListenAddr, len(cfg.BootstrapPeers), cfg.LedgerEndpoint))
	return &cfg, nil
}

type GossipConfig struct {
	InitialTTL             int `ini:"initial_ttl"`
	DedupWindowMinutes     int `ini:"dedup_window_minutes"`
	PeerListConnectPercent int `ini:"peer_list_connect_percent"`
}

type OverlayConfig struct {
	AnnounceIntervalMs int `ini:"announce_interval_ms"`
	ReconnectDelayMs   int `ini:"reconnect_delay_ms"`
}

type SyncConfig struct {
	IntervalMs int `ini:"interval_ms"`
	BatchSize  int `ini:"batch_size"`
}

func DefaultGossipConfig() *GossipConfig {
	return &GossipConfig{
		InitialTTL:             5,
		DedupWindowMinutes:     60,
		PeerListConnectPercent: 30,
	}
}

func DefaultOverlayConfig() *OverlayConfig {
	return &OverlayConfig{
		AnnounceIntervalMs: 30_000,
		ReconnectDelayMs:   5_000,
	}
}

func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		IntervalMs: 30_000,
		BatchSize:  20,
	}
}

// LoadGossipConfig reads gossip tuning from an .ini file, falling back to
// defaults when the file is absent.
func LoadGossipConfig(path string) (*GossipConfig, error) {
	gossipCfg := DefaultGossipConfig()
	cfg, err := ini.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return gossipCfg, nil
		}
		return nil, err
	}
	if err := cfg.Section("gossip").MapTo(gossipCfg); err != nil {
		return nil, err
	}
	return gossipCfg, nil
}

func LoadOverlayConfig(path string) (*OverlayConfig, error) {
	overlayCfg := DefaultOverlayConfig()
	cfg, err := ini.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return overlayCfg, nil
		}
		return nil, err
	}
	if err := cfg.Section("overlay").MapTo(overlayCfg); err != nil {
		return nil, err
	}
	return overlayCfg, nil
}

func LoadSyncConfig(path string) (*SyncConfig, error) {
	syncCfg := DefaultSyncConfig()
	cfg, err := ini.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return syncCfg, nil
		}
		return nil, err
	}
	if err := cfg.Section("sync").MapTo(syncCfg); err != nil {
		return nil, err
	}
	return syncCfg, nil
}
