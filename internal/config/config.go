package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Policy   PolicyConfig   `yaml:"policy"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// VerifyBaseURL is the public base URL used to build verification links
	// (QR codes, DigiLocker payloads), e.g. https://skillchain.example.com
	VerifyBaseURL string `yaml:"verify_base_url"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite file path
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// LedgerConfig contains credential ledger node configuration
type LedgerConfig struct {
	RPCURL          string `yaml:"rpc_url"`
	ContractAddress string `yaml:"contract_address"`
	Timeout         string `yaml:"timeout"`
}

// ArchiveConfig contains off-chain archive (IPFS) configuration.
// APIURL is optional; an empty value disables archiving entirely.
type ArchiveConfig struct {
	APIURL     string `yaml:"api_url"`
	GatewayURL string `yaml:"gateway_url"`
	Timeout    string `yaml:"timeout"`
}

// PolicyConfig contains certificate issuance policy
type PolicyConfig struct {
	MaxCertsPerDay int `yaml:"max_certs_per_day"`
	MinNSQFLevel   int `yaml:"min_nsqf_level"`
	MaxNSQFLevel   int `yaml:"max_nsqf_level"`
}

// AdminConfig contains admin configuration
type AdminConfig struct {
	Token string `yaml:"token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.VerifyBaseURL != "" {
		if _, err := url.Parse(c.Server.VerifyBaseURL); err != nil {
			return fmt.Errorf("server.verify_base_url is invalid: %w", err)
		}
	}

	// Database validation
	switch c.Database.Driver {
	case "", "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be 'sqlite' or 'postgres'")
	}

	// Ledger validation
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger.rpc_url is required")
	}
	if c.Ledger.ContractAddress == "" {
		return fmt.Errorf("ledger.contract_address is required")
	}
	if c.Ledger.Timeout != "" {
		if _, err := time.ParseDuration(c.Ledger.Timeout); err != nil {
			return fmt.Errorf("ledger.timeout is invalid: %w", err)
		}
	}

	// Archive validation (archive itself is optional)
	if c.Archive.Timeout != "" {
		if _, err := time.ParseDuration(c.Archive.Timeout); err != nil {
			return fmt.Errorf("archive.timeout is invalid: %w", err)
		}
	}

	// Policy validation
	if c.Policy.MaxCertsPerDay <= 0 {
		return fmt.Errorf("policy.max_certs_per_day must be positive")
	}
	if c.Policy.MinNSQFLevel < 1 || c.Policy.MaxNSQFLevel < c.Policy.MinNSQFLevel {
		return fmt.Errorf("policy NSQF level range is invalid")
	}

	// Admin validation
	if c.Admin.Token == "" {
		return fmt.Errorf("admin.token is required")
	}
	if c.Admin.Token == "your-secure-admin-token-change-me-in-production" {
		fmt.Fprintf(os.Stderr, "WARNING: Using default admin token. Please change it in production!\n")
	}

	// Logging validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	return nil
}

// GetLedgerTimeout returns the ledger call timeout as time.Duration
func (c *Config) GetLedgerTimeout() time.Duration {
	if c.Ledger.Timeout == "" {
		return 30 * time.Second
	}
	d, _ := time.ParseDuration(c.Ledger.Timeout)
	return d
}

// GetArchiveTimeout returns the archive call timeout as time.Duration
func (c *Config) GetArchiveTimeout() time.Duration {
	if c.Archive.Timeout == "" {
		return 15 * time.Second
	}
	d, _ := time.ParseDuration(c.Archive.Timeout)
	return d
}

// ArchiveEnabled reports whether an off-chain archive endpoint is configured
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.APIURL != ""
}
