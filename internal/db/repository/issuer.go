package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillchain/certserver/internal/db"
	"github.com/skillchain/certserver/internal/models"
)

// IssuerRepository handles issuing-principal data access
type IssuerRepository struct {
	db *db.DB
}

// NewIssuerRepository creates a new issuer repository
func NewIssuerRepository(database *db.DB) *IssuerRepository {
	return &IssuerRepository{db: database}
}

// Create creates a new issuer
func (r *IssuerRepository) Create(issuer *models.Issuer) error {
	if issuer.ID == "" {
		issuer.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	issuer.CreatedAt = now
	issuer.UpdatedAt = now

	enabled := 0
	if issuer.Enabled {
		enabled = 1
	}

	query := r.db.Rebind(`
		INSERT INTO issuers (id, name, api_key_hash, enabled, max_certs_per_day, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.Exec(query,
		issuer.ID,
		issuer.Name,
		issuer.APIKeyHash,
		enabled,
		issuer.MaxCertsPerDay,
		issuer.CreatedAt,
		issuer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("issuer %s: %w", issuer.ID, ErrDuplicateID)
		}
		return fmt.Errorf("failed to create issuer: %w", err)
	}

	return nil
}

// GetByID retrieves an issuer by id
func (r *IssuerRepository) GetByID(id string) (*models.Issuer, error) {
	query := r.db.Rebind(`
		SELECT id, name, api_key_hash, enabled, max_certs_per_day, created_at, updated_at
		FROM issuers
		WHERE id = ?
	`)

	return r.scanIssuer(r.db.QueryRow(query, id))
}

// GetByKeyHash retrieves an issuer by its API key hash
func (r *IssuerRepository) GetByKeyHash(keyHash string) (*models.Issuer, error) {
	query := r.db.Rebind(`
		SELECT id, name, api_key_hash, enabled, max_certs_per_day, created_at, updated_at
		FROM issuers
		WHERE api_key_hash = ?
	`)

	return r.scanIssuer(r.db.QueryRow(query, keyHash))
}

// List lists all issuers ordered by creation time
func (r *IssuerRepository) List() ([]*models.Issuer, error) {
	rows, err := r.db.Query(`
		SELECT id, name, api_key_hash, enabled, max_certs_per_day, created_at, updated_at
		FROM issuers
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list issuers: %w", err)
	}
	defer rows.Close()

	var issuers []*models.Issuer
	for rows.Next() {
		issuer, err := r.scanIssuerRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issuer: %w", err)
		}
		issuers = append(issuers, issuer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate issuers: %w", err)
	}

	return issuers, nil
}

func (r *IssuerRepository) scanIssuer(row *sql.Row) (*models.Issuer, error) {
	issuer, err := r.scanIssuerRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issuer: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issuer: %w", err)
	}
	return issuer, nil
}

func (r *IssuerRepository) scanIssuerRow(row rowScanner) (*models.Issuer, error) {
	issuer := &models.Issuer{}
	var enabled int

	err := row.Scan(
		&issuer.ID,
		&issuer.Name,
		&issuer.APIKeyHash,
		&enabled,
		&issuer.MaxCertsPerDay,
		&issuer.CreatedAt,
		&issuer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	issuer.Enabled = enabled == 1
	return issuer, nil
}
