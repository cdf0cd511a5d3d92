// Package credential orchestrates certificate issuance and verification.
// It owns no storage and no transport: the store, ledger client and archive
// client are injected, and data flows one way from the workflows down.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/skillchain/certserver/internal/archive"
	"github.com/skillchain/certserver/internal/canonical"
	"github.com/skillchain/certserver/internal/ledger"
	"github.com/skillchain/certserver/internal/models"
)

// CertificateStore is the persistence contract the workflows depend on.
// *repository.CertificateRepository satisfies it.
type CertificateStore interface {
	NextCertID() (int64, error)
	PeekNextCertID() (int64, error)
	Create(cert *models.CertificateRecord) error
	AttachTransaction(certID int64, txRef string) error
	GetByCertID(certID int64) (*models.CertificateRecord, error)
	ListByIssuer(issuerID string) ([]*models.CertificateRecord, error)
	ListAll() ([]*models.CertificateRecord, error)
}

// IssueInput carries the certificate facts supplied by the issuer.
type IssueInput struct {
	LearnerName    string
	CourseName     string
	NSQFLevel      int
	CompletionDate time.Time
	Marks          *int
	LearnerAddress *string
}

// ErrAlreadyIssued reports a retry against a certificate whose ledger write
// is already confirmed.
var ErrAlreadyIssued = errors.New("certificate already issued")

// PartialIssuanceError reports that the certificate record was persisted
// but the ledger write did not complete. The record exists and is readable;
// it stays unverifiable until RetryLedgerWrite succeeds. Distinguishable
// from total failure so callers can retry only the ledger step.
type PartialIssuanceError struct {
	CertID int64
	Err    error
}

func (e *PartialIssuanceError) Error() string {
	return fmt.Sprintf("certificate %d persisted but ledger write incomplete: %v", e.CertID, e.Err)
}

func (e *PartialIssuanceError) Unwrap() error {
	return e.Err
}

// VerificationStatus classifies a verification outcome.
type VerificationStatus string

const (
	// StatusVerified means the ledger hash matches the stored hash exactly.
	StatusVerified VerificationStatus = "verified"
	// StatusMismatch means the ledger holds a different hash: possible
	// tamper or stale local copy.
	StatusMismatch VerificationStatus = "mismatch"
	// StatusUnconfirmed means the certificate exists locally but carries no
	// confirmed ledger entry, so nothing can be proven either way.
	StatusUnconfirmed VerificationStatus = "unconfirmed"
)

// VerificationResult is the structured outcome of a verification. It is
// never a bare boolean: both hashes travel with it as evidence.
type VerificationResult struct {
	CertID      int64                     `json:"cert_id"`
	Status      VerificationStatus        `json:"status"`
	Verified    bool                      `json:"verified"`
	StoredHash  string                    `json:"stored_hash"`
	LedgerHash  string                    `json:"ledger_hash,omitempty"`
	Certificate *models.CertificateRecord `json:"certificate"`
}

// PrepareResult previews the next issuance without persisting anything.
type PrepareResult struct {
	CertID   int64                      `json:"cert_id"`
	CertHash string                     `json:"cert_hash"`
	Metadata models.CertificateMetadata `json:"metadata"`
}

// Service runs the issuance and verification workflows.
type Service struct {
	store   CertificateStore
	ledger  ledger.Client
	archive archive.Client // nil disables off-chain archiving
	clock   func() time.Time
}

// NewService creates a credential service. archiveClient may be nil.
func NewService(store CertificateStore, ledgerClient ledger.Client, archiveClient archive.Client) *Service {
	return &Service{
		store:   store,
		ledger:  ledgerClient,
		archive: archiveClient,
		clock:   time.Now,
	}
}

// WithClock overrides the clock for testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Prepare previews the issuance: the id the sequence would assign next and
// the hash of the metadata as of now. Nothing is reserved or persisted;
// Issue captures its own issuance timestamp, so the final hash binds there.
func (s *Service) Prepare(issuerID string, input *IssueInput) (*PrepareResult, error) {
	certID, err := s.store.PeekNextCertID()
	if err != nil {
		return nil, err
	}

	meta := s.buildMetadata(issuerID, input, s.clock().UTC())
	hash, err := canonical.Hash(meta)
	if err != nil {
		return nil, err
	}

	return &PrepareResult{
		CertID:   certID,
		CertHash: hash,
		Metadata: meta,
	}, nil
}

// Issue runs the full issuance workflow:
//
//	reserve id -> build metadata -> hash -> archive (best effort) ->
//	persist record -> ledger write -> attach transaction reference
//
// The metadata blob is built once; the same bytes are hashed, archived and
// persisted, so the stored hash always matches the stored blob.
//
// A failure before the record is persisted is terminal and returns a nil
// record. A failure at or after the ledger write returns the persisted
// record together with a *PartialIssuanceError.
func (s *Service) Issue(ctx context.Context, issuerID string, input *IssueInput) (*models.CertificateRecord, error) {
	certID, err := s.store.NextCertID()
	if err != nil {
		return nil, err
	}

	meta := s.buildMetadata(issuerID, input, s.clock().UTC())

	blob, err := canonical.Serialize(meta)
	if err != nil {
		return nil, err
	}
	hash, err := canonical.Hash(meta)
	if err != nil {
		return nil, err
	}

	var archiveCID *string
	if s.archive != nil {
		cid, err := s.archive.Store(ctx, blob)
		if err != nil {
			// Degrade gracefully: issuance proceeds without an archive id.
			log.Printf("Archive upload failed for cert %d: %v", certID, err)
		} else {
			archiveCID = &cid
		}
	}

	record := &models.CertificateRecord{
		CertID:         certID,
		LearnerName:    input.LearnerName,
		CourseName:     input.CourseName,
		NSQFLevel:      input.NSQFLevel,
		CompletionDate: input.CompletionDate,
		Marks:          input.Marks,
		IssuerID:       issuerID,
		LearnerAddress: input.LearnerAddress,
		CertHash:       hash,
		ArchiveCID:     archiveCID,
		Metadata:       meta,
	}

	if err := s.store.Create(record); err != nil {
		return nil, err
	}

	txRef, err := s.ledger.Issue(ctx, certID, derefOrEmpty(input.LearnerAddress), hash)
	if err != nil {
		return record, &PartialIssuanceError{CertID: certID, Err: err}
	}

	if err := s.store.AttachTransaction(certID, txRef); err != nil {
		return record, &PartialIssuanceError{CertID: certID, Err: err}
	}

	record.TransactionHash = &txRef
	return record, nil
}

// RetryLedgerWrite re-runs only the ledger write and attach steps for a
// partially-issued certificate. A record that already carries a transaction
// reference is refused.
func (s *Service) RetryLedgerWrite(ctx context.Context, certID int64) (*models.CertificateRecord, error) {
	record, err := s.store.GetByCertID(certID)
	if err != nil {
		return nil, err
	}

	if record.Issued() {
		return record, fmt.Errorf("certificate %d already carries a transaction reference: %w", certID, ErrAlreadyIssued)
	}

	txRef, err := s.ledger.Issue(ctx, certID, derefOrEmpty(record.LearnerAddress), record.CertHash)
	if err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			// The ledger already holds this id: a previous write landed but
			// its reference was lost. Surface as "already issued" so the
			// caller verifies instead of retrying blindly.
			return record, fmt.Errorf("certificate %d already on ledger, verify status: %w", certID, err)
		}
		return record, &PartialIssuanceError{CertID: certID, Err: err}
	}

	if err := s.store.AttachTransaction(certID, txRef); err != nil {
		return record, &PartialIssuanceError{CertID: certID, Err: err}
	}

	record.TransactionHash = &txRef
	return record, nil
}

// Verify runs the verification workflow: look the record up, fetch the
// ledger hash, compare byte for byte. An unknown certificate is an error;
// every other outcome is a normal structured result.
func (s *Service) Verify(ctx context.Context, certID int64) (*VerificationResult, error) {
	record, err := s.store.GetByCertID(certID)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{
		CertID:      certID,
		StoredHash:  record.CertHash,
		Certificate: record,
	}

	// A record with no confirmed ledger write is unverifiable, not false.
	if !record.Issued() {
		result.Status = StatusUnconfirmed
		return result, nil
	}

	ledgerHash, err := s.ledger.GetHash(ctx, certID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			result.Status = StatusUnconfirmed
			return result, nil
		}
		return nil, err
	}

	result.LedgerHash = ledgerHash
	if ledgerHash == record.CertHash {
		result.Status = StatusVerified
		result.Verified = true
	} else {
		result.Status = StatusMismatch
	}

	return result, nil
}

// Get returns the certificate record for the id
func (s *Service) Get(certID int64) (*models.CertificateRecord, error) {
	return s.store.GetByCertID(certID)
}

// ListByIssuer returns the issuer's certificates in creation order
func (s *Service) ListByIssuer(issuerID string) ([]*models.CertificateRecord, error) {
	return s.store.ListByIssuer(issuerID)
}

// ListAll returns every certificate in creation order
func (s *Service) ListAll() ([]*models.CertificateRecord, error) {
	return s.store.ListAll()
}

func (s *Service) buildMetadata(issuerID string, input *IssueInput, issuedAt time.Time) models.CertificateMetadata {
	return models.CertificateMetadata{
		LearnerName:    input.LearnerName,
		CourseName:     input.CourseName,
		NSQFLevel:      input.NSQFLevel,
		CompletionDate: input.CompletionDate.UTC().Format(time.RFC3339),
		Marks:          input.Marks,
		IssuerID:       issuerID,
		IssuedAt:       issuedAt.Format(time.RFC3339),
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
