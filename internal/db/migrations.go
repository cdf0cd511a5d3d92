package db

import (
	"database/sql"
	"fmt"
)

// RunMigrations executes all database migrations
func RunMigrations(db *DB) error {
	exists, err := schemaVersionTableExists(db)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !exists {
		// First time initialization
		if err := initializeSchema(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow(`
		SELECT version FROM schema_version
		ORDER BY applied_at DESC LIMIT 1
	`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Apply migrations if needed
	// Currently only version 1 exists
	if currentVersion < 1 {
		return fmt.Errorf("invalid schema version: %d", currentVersion)
	}

	return nil
}

func schemaVersionTableExists(db *DB) (bool, error) {
	var query string
	switch db.Driver {
	case DriverPostgres:
		query = `
			SELECT COUNT(*) > 0
			FROM information_schema.tables
			WHERE table_name = 'schema_version'
		`
	default:
		query = `
			SELECT COUNT(*) > 0
			FROM sqlite_master
			WHERE type='table' AND name='schema_version'
		`
	}

	var exists bool
	if err := db.QueryRow(query).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(db *DB) error {
	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := sqliteSchema
	if db.Driver == DriverPostgres {
		statements = postgresSchema
	}

	for _, stmt := range statements {
		if err := execSQL(tx, stmt); err != nil {
			return err
		}
	}

	// Insert initial schema version
	if err := execSQL(tx, `INSERT INTO schema_version (version) VALUES (1)`); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

// Schema definitions.
//
// The certificate_counter table backs the sequential cert_id assignment.
// It is bumped with a single atomic UPDATE so concurrent issuance requests
// can never be handed the same id (a max+1 scan would race).
var sqliteSchema = []string{
	`
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`
CREATE TABLE issuers (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    api_key_hash      TEXT NOT NULL UNIQUE,
    enabled           INTEGER NOT NULL DEFAULT 1,
    max_certs_per_day INTEGER NOT NULL DEFAULT 0,
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL
)`,
	`
CREATE INDEX idx_issuers_api_key_hash ON issuers(api_key_hash)`,
	`
CREATE TABLE certificates (
    id               TEXT PRIMARY KEY,
    cert_id          INTEGER NOT NULL UNIQUE,
    learner_name     TEXT NOT NULL,
    course_name      TEXT NOT NULL,
    nsqf_level       INTEGER NOT NULL,
    completion_date  DATETIME NOT NULL,
    marks            INTEGER,
    issuer_id        TEXT NOT NULL,
    learner_address  TEXT,
    cert_hash        TEXT NOT NULL,
    archive_cid      TEXT,
    transaction_hash TEXT,
    metadata         TEXT NOT NULL,
    created_at       DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL,

    FOREIGN KEY (issuer_id) REFERENCES issuers(id) ON DELETE CASCADE
)`,
	`
CREATE INDEX idx_certs_cert_id ON certificates(cert_id)`,
	`
CREATE INDEX idx_certs_issuer_id ON certificates(issuer_id)`,
	`
CREATE INDEX idx_certs_created_at ON certificates(created_at)`,
	`
CREATE TABLE certificate_counter (
    id    INTEGER PRIMARY KEY CHECK (id = 1),
    value INTEGER NOT NULL
)`,
	`
INSERT INTO certificate_counter (id, value) VALUES (1, 0)`,
	`
CREATE TABLE audit_logs (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    action    TEXT NOT NULL,
    issuer_id TEXT,
    cert_id   INTEGER,
    client_ip TEXT NOT NULL,
    success   INTEGER NOT NULL,
    error_msg TEXT,
    details   TEXT
)`,
	`
CREATE INDEX idx_audit_timestamp ON audit_logs(timestamp)`,
	`
CREATE INDEX idx_audit_action ON audit_logs(action)`,
}

var postgresSchema = []string{
	`
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`
CREATE TABLE issuers (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    api_key_hash      TEXT NOT NULL UNIQUE,
    enabled           INTEGER NOT NULL DEFAULT 1,
    max_certs_per_day INTEGER NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
)`,
	`
CREATE INDEX idx_issuers_api_key_hash ON issuers(api_key_hash)`,
	`
CREATE TABLE certificates (
    id               TEXT PRIMARY KEY,
    cert_id          BIGINT NOT NULL UNIQUE,
    learner_name     TEXT NOT NULL,
    course_name      TEXT NOT NULL,
    nsqf_level       INTEGER NOT NULL,
    completion_date  TIMESTAMPTZ NOT NULL,
    marks            INTEGER,
    issuer_id        TEXT NOT NULL REFERENCES issuers(id) ON DELETE CASCADE,
    learner_address  VARCHAR(42),
    cert_hash        VARCHAR(64) NOT NULL,
    archive_cid      TEXT,
    transaction_hash VARCHAR(66),
    metadata         TEXT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
)`,
	`
CREATE INDEX idx_certs_cert_id ON certificates(cert_id)`,
	`
CREATE INDEX idx_certs_issuer_id ON certificates(issuer_id)`,
	`
CREATE INDEX idx_certs_created_at ON certificates(created_at)`,
	`
CREATE TABLE certificate_counter (
    id    INTEGER PRIMARY KEY CHECK (id = 1),
    value BIGINT NOT NULL
)`,
	`
INSERT INTO certificate_counter (id, value) VALUES (1, 0)`,
	`
CREATE TABLE audit_logs (
    id        BIGSERIAL PRIMARY KEY,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    action    TEXT NOT NULL,
    issuer_id TEXT,
    cert_id   BIGINT,
    client_ip TEXT NOT NULL,
    success   INTEGER NOT NULL,
    error_msg TEXT,
    details   TEXT
)`,
	`
CREATE INDEX idx_audit_timestamp ON audit_logs(timestamp)`,
	`
CREATE INDEX idx_audit_action ON audit_logs(action)`,
}
