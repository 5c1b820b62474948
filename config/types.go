package config

// NodeConfig is the static per-device configuration loaded from YAML.
type NodeConfig struct {
	DataDir        string   `yaml:"data_dir"`
	DBBackend      string   `yaml:"db_backend"` // "leveldb" (default) or "bolt"
	KeyFile        string   `yaml:"key_file"`
	ListenAddr     string   `yaml:"listen_addr"`
	BootstrapPeers []string `yaml:"bootstrap_peers"`
	LedgerEndpoint string   `yaml:"ledger_endpoint"`
	APIAddr        string   `yaml:"api_addr"`
	MetricsAddr    string   `yaml:"metrics_addr"`
}

// ConfigFile wraps the node section of the YAML file.
type ConfigFile struct {
	Node NodeConfig `yaml:"node"`
}
