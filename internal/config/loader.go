package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment variable overrides
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	if dbDriver := os.Getenv("SKILLCHAIN_DB_DRIVER"); dbDriver != "" {
		cfg.Database.Driver = dbDriver
	}

	if dbPath := os.Getenv("SKILLCHAIN_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if dbDSN := os.Getenv("SKILLCHAIN_DB_DSN"); dbDSN != "" {
		cfg.Database.DSN = dbDSN
	}

	if rpcURL := os.Getenv("SKILLCHAIN_LEDGER_RPC_URL"); rpcURL != "" {
		cfg.Ledger.RPCURL = rpcURL
	}

	if contract := os.Getenv("SKILLCHAIN_LEDGER_CONTRACT"); contract != "" {
		cfg.Ledger.ContractAddress = contract
	}

	if ipfsURL := os.Getenv("SKILLCHAIN_ARCHIVE_API_URL"); ipfsURL != "" {
		cfg.Archive.APIURL = ipfsURL
	}

	if adminToken := os.Getenv("SKILLCHAIN_ADMIN_TOKEN"); adminToken != "" {
		cfg.Admin.Token = adminToken
	}

	if listenAddr := os.Getenv("SKILLCHAIN_LISTEN_ADDR"); listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	// Validate again after env overrides
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}

	return cfg, nil
}
