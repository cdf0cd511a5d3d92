package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillchain/certserver/internal/db"
	"github.com/skillchain/certserver/internal/models"
)

// CertificateRepository handles certificate record data access. It is the
// only writer of certificate rows; workflows request writes through it.
type CertificateRepository struct {
	db *db.DB
}

// NewCertificateRepository creates a new certificate repository
func NewCertificateRepository(database *db.DB) *CertificateRepository {
	return &CertificateRepository{db: database}
}

const certColumns = `
	id, cert_id, learner_name, course_name, nsqf_level, completion_date,
	marks, issuer_id, learner_address, cert_hash, archive_cid,
	transaction_hash, metadata, created_at, updated_at
`

// NextCertID reserves and returns the next sequential certificate id.
//
// The counter is bumped with a single atomic UPDATE, so two concurrent
// issuance requests can never be handed the same id. The counter is also
// floored at the current max cert_id, which keeps the sequence correct if
// rows were ever imported with explicit ids.
func (r *CertificateRepository) NextCertID() (int64, error) {
	query := `
		UPDATE certificate_counter
		SET value = max(value, (SELECT COALESCE(MAX(cert_id), 0) FROM certificates)) + 1
		WHERE id = 1
		RETURNING value
	`
	if r.db.Driver == db.DriverPostgres {
		query = `
			UPDATE certificate_counter
			SET value = GREATEST(value, (SELECT COALESCE(MAX(cert_id), 0) FROM certificates)) + 1
			WHERE id = 1
			RETURNING value
		`
	}

	var id int64
	if err := r.db.QueryRow(query).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get next certificate id: %w", err)
	}

	return id, nil
}

// PeekNextCertID returns the id NextCertID would hand out, without
// reserving it. Used by the issuance preview only.
func (r *CertificateRepository) PeekNextCertID() (int64, error) {
	query := `
		SELECT max(
			(SELECT value FROM certificate_counter WHERE id = 1),
			(SELECT COALESCE(MAX(cert_id), 0) FROM certificates)
		) + 1
	`
	if r.db.Driver == db.DriverPostgres {
		query = `
			SELECT GREATEST(
				(SELECT value FROM certificate_counter WHERE id = 1),
				(SELECT COALESCE(MAX(cert_id), 0) FROM certificates)
			) + 1
		`
	}

	var id int64
	if err := r.db.QueryRow(query).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to peek next certificate id: %w", err)
	}

	return id, nil
}

// Create persists a new certificate record. Fails with ErrDuplicateID if
// the cert_id is already taken, leaving the existing row unmodified.
func (r *CertificateRepository) Create(cert *models.CertificateRecord) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	cert.CreatedAt = now
	cert.UpdatedAt = now

	metadataJSON, err := json.Marshal(cert.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate metadata: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO certificates (
			id, cert_id, learner_name, course_name, nsqf_level, completion_date,
			marks, issuer_id, learner_address, cert_hash, archive_cid,
			transaction_hash, metadata, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.db.Exec(query,
		cert.ID,
		cert.CertID,
		cert.LearnerName,
		cert.CourseName,
		cert.NSQFLevel,
		cert.CompletionDate.UTC(),
		cert.Marks,
		cert.IssuerID,
		cert.LearnerAddress,
		cert.CertHash,
		cert.ArchiveCID,
		cert.TransactionHash,
		string(metadataJSON),
		cert.CreatedAt,
		cert.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("cert_id %d: %w", cert.CertID, ErrDuplicateID)
		}
		return fmt.Errorf("failed to create certificate record: %w", err)
	}

	return nil
}

// AttachTransaction sets the ledger transaction reference on an existing
// record. The reference is single-write: a second attempt fails with
// ErrAlreadyAttached, an unknown id with ErrNotFound.
func (r *CertificateRepository) AttachTransaction(certID int64, txRef string) error {
	query := r.db.Rebind(`
		UPDATE certificates
		SET transaction_hash = ?, updated_at = ?
		WHERE cert_id = ? AND transaction_hash IS NULL
	`)

	result, err := r.db.Exec(query, txRef, time.Now().UTC(), certID)
	if err != nil {
		return fmt.Errorf("failed to attach transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing updated: either the record is missing or the reference is
	// already set.
	var existing sql.NullString
	err = r.db.QueryRow(
		r.db.Rebind(`SELECT transaction_hash FROM certificates WHERE cert_id = ?`),
		certID,
	).Scan(&existing)
	if err == sql.ErrNoRows {
		return fmt.Errorf("cert_id %d: %w", certID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check certificate: %w", err)
	}

	return fmt.Errorf("cert_id %d: %w", certID, ErrAlreadyAttached)
}

// GetByCertID retrieves a certificate by its sequential id
func (r *CertificateRepository) GetByCertID(certID int64) (*models.CertificateRecord, error) {
	query := r.db.Rebind(`
		SELECT ` + certColumns + `
		FROM certificates
		WHERE cert_id = ?
	`)

	cert, err := scanCertificate(r.db.QueryRow(query, certID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cert_id %d: %w", certID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return cert, nil
}

// ListByIssuer lists all certificates issued by the given principal,
// ordered by creation time.
func (r *CertificateRepository) ListByIssuer(issuerID string) ([]*models.CertificateRecord, error) {
	query := r.db.Rebind(`
		SELECT ` + certColumns + `
		FROM certificates
		WHERE issuer_id = ?
		ORDER BY created_at, cert_id
	`)

	rows, err := r.db.Query(query, issuerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	return collectCertificates(rows)
}

// ListAll lists every certificate, ordered by creation time
func (r *CertificateRepository) ListAll() ([]*models.CertificateRecord, error) {
	rows, err := r.db.Query(`
		SELECT ` + certColumns + `
		FROM certificates
		ORDER BY created_at, cert_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	return collectCertificates(rows)
}

// CountByIssuerToday returns the number of certificates created by the
// issuer today, for the daily issuance cap.
func (r *CertificateRepository) CountByIssuerToday(issuerID string) (int, error) {
	query := r.db.Rebind(`
		SELECT COUNT(*)
		FROM certificates
		WHERE issuer_id = ? AND DATE(created_at) = DATE('now')
	`)
	if r.db.Driver == db.DriverPostgres {
		query = r.db.Rebind(`
			SELECT COUNT(*)
			FROM certificates
			WHERE issuer_id = ? AND created_at::date = CURRENT_DATE
		`)
	}

	var count int
	if err := r.db.QueryRow(query, issuerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count certificates: %w", err)
	}

	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCertificate(row rowScanner) (*models.CertificateRecord, error) {
	cert := &models.CertificateRecord{}
	var (
		marks           sql.NullInt64
		learnerAddress  sql.NullString
		archiveCID      sql.NullString
		transactionHash sql.NullString
		metadataJSON    string
	)

	err := row.Scan(
		&cert.ID,
		&cert.CertID,
		&cert.LearnerName,
		&cert.CourseName,
		&cert.NSQFLevel,
		&cert.CompletionDate,
		&marks,
		&cert.IssuerID,
		&learnerAddress,
		&cert.CertHash,
		&archiveCID,
		&transactionHash,
		&metadataJSON,
		&cert.CreatedAt,
		&cert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if marks.Valid {
		m := int(marks.Int64)
		cert.Marks = &m
	}
	if learnerAddress.Valid {
		cert.LearnerAddress = &learnerAddress.String
	}
	if archiveCID.Valid {
		cert.ArchiveCID = &archiveCID.String
	}
	if transactionHash.Valid {
		cert.TransactionHash = &transactionHash.String
	}

	if err := json.Unmarshal([]byte(metadataJSON), &cert.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate metadata: %w", err)
	}

	return cert, nil
}

func collectCertificates(rows *sql.Rows) ([]*models.CertificateRecord, error) {
	var certs []*models.CertificateRecord

	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate certificates: %w", err)
	}

	return certs, nil
}
