package models

import "time"

// CertificateMetadata is the blob that gets hashed, archived off-chain and
// persisted alongside a certificate record. The JSON field names are part of
// the hash contract: the canonical serialization of this struct is the exact
// input to the content hash, so they must never change for issued records.
type CertificateMetadata struct {
	LearnerName    string `json:"learnerName"`
	CourseName     string `json:"courseName"`
	NSQFLevel      int    `json:"nsqfLevel"`
	CompletionDate string `json:"completionDate"` // RFC 3339
	Marks          *int   `json:"marks,omitempty"`
	IssuerID       string `json:"issuerId"`
	IssuedAt       string `json:"issuedAt"` // RFC 3339, captured once at issuance
}

// CertificateRecord represents one issued credential.
//
// CertID is the public sequential identifier; ID is the storage row key.
// TransactionHash is nil until the ledger write is confirmed; a record
// without it is readable but unverifiable.
type CertificateRecord struct {
	ID              string              `json:"id"`
	CertID          int64               `json:"cert_id"`
	LearnerName     string              `json:"learner_name"`
	CourseName      string              `json:"course_name"`
	NSQFLevel       int                 `json:"nsqf_level"`
	CompletionDate  time.Time           `json:"completion_date"`
	Marks           *int                `json:"marks,omitempty"`
	IssuerID        string              `json:"issuer_id"`
	LearnerAddress  *string             `json:"learner_address,omitempty"`
	CertHash        string              `json:"cert_hash"`
	ArchiveCID      *string             `json:"archive_cid,omitempty"`
	TransactionHash *string             `json:"transaction_hash,omitempty"`
	Metadata        CertificateMetadata `json:"metadata"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Issued reports whether the ledger write has been confirmed.
func (r *CertificateRecord) Issued() bool {
	return r.TransactionHash != nil && *r.TransactionHash != ""
}
