package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skillchain/certserver/internal/db"
	"github.com/skillchain/certserver/internal/models"
)

// AuditRepository handles audit log data access
type AuditRepository struct {
	db *db.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(database *db.DB) *AuditRepository {
	return &AuditRepository{db: database}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(entry *models.AuditLog) error {
	query := r.db.Rebind(`
		INSERT INTO audit_logs (timestamp, action, issuer_id, cert_id, client_ip, success, error_msg, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	success := 0
	if entry.Success {
		success = 1
	}

	entry.Timestamp = time.Now().UTC()

	var certID interface{}
	if entry.CertID != 0 {
		certID = entry.CertID
	}

	_, err := r.db.Exec(query,
		entry.Timestamp,
		entry.Action,
		nullableString(entry.IssuerID),
		certID,
		entry.ClientIP,
		success,
		nullableString(entry.ErrorMsg),
		nullableString(entry.Details),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

// List lists audit logs with optional filters, newest first
func (r *AuditRepository) List(issuerID string, action string, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, timestamp, action, issuer_id, cert_id, client_ip, success, error_msg, details
		FROM audit_logs
		WHERE 1=1
	`
	args := []interface{}{}

	if issuerID != "" {
		query += " AND issuer_id = ?"
		args = append(args, issuerID)
	}

	if action != "" {
		query += " AND action = ?"
		args = append(args, action)
	}

	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog

	for rows.Next() {
		entry := &models.AuditLog{}
		var success int
		var issuer, errorMsg, details sql.NullString
		var certID sql.NullInt64

		err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.Action,
			&issuer,
			&certID,
			&entry.ClientIP,
			&success,
			&errorMsg,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		entry.Success = success == 1
		entry.IssuerID = issuer.String
		entry.CertID = certID.Int64
		entry.ErrorMsg = errorMsg.String
		entry.Details = details.String

		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}

	return logs, nil
}

// CountByAction counts audit logs by action type
func (r *AuditRepository) CountByAction(action string, since time.Time) (int, error) {
	query := r.db.Rebind(`
		SELECT COUNT(*)
		FROM audit_logs
		WHERE action = ? AND timestamp >= ?
	`)

	var count int
	if err := r.db.QueryRow(query, action, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return count, nil
}

// DeleteOld deletes audit logs older than the given date
func (r *AuditRepository) DeleteOld(before time.Time) (int64, error) {
	query := r.db.Rebind(`
		DELETE FROM audit_logs
		WHERE timestamp < ?
	`)

	result, err := r.db.Exec(query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
