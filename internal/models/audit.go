package models

import "time"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	IssuerID  string    `json:"issuer_id,omitempty"`
	CertID    int64     `json:"cert_id,omitempty"`
	ClientIP  string    `json:"client_ip"`
	Success   bool      `json:"success"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Details   string    `json:"details,omitempty"` // JSON
}

// Audit action constants
const (
	ActionCertPrepare       = "cert_prepare"
	ActionCertIssue         = "cert_issue"
	ActionCertVerify        = "cert_verify"
	ActionLedgerRetry       = "ledger_retry"
	ActionAdminCreateIssuer = "admin_create_issuer"
	ActionAuthFailed        = "auth_failed"
)
