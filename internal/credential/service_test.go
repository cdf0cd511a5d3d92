package credential

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillchain/certserver/internal/canonical"
	"github.com/skillchain/certserver/internal/config"
	"github.com/skillchain/certserver/internal/db"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/ledger"
	"github.com/skillchain/certserver/internal/models"
)

const testIssuerID = "issuer-test-1"

// fakeLedger is an in-memory stand-in for the credential ledger node.
type fakeLedger struct {
	hashes   map[int64]string
	issueErr error
	txSeq    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{hashes: make(map[int64]string)}
}

func (f *fakeLedger) Issue(_ context.Context, certID int64, _, certHash string) (string, error) {
	if f.issueErr != nil {
		return "", f.issueErr
	}
	if _, exists := f.hashes[certID]; exists {
		return "", fmt.Errorf("cert %d: %w", certID, ledger.ErrRejected)
	}
	f.hashes[certID] = certHash
	f.txSeq++
	return fmt.Sprintf("0xtx%04d", f.txSeq), nil
}

func (f *fakeLedger) GetHash(_ context.Context, certID int64) (string, error) {
	hash, ok := f.hashes[certID]
	if !ok {
		return "", fmt.Errorf("cert %d: %w", certID, ledger.ErrNotFound)
	}
	return hash, nil
}

type fakeArchive struct {
	cid string
	err error
}

func (f *fakeArchive) Store(_ context.Context, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.cid, nil
}

func newTestStore(t *testing.T) (*repository.CertificateRepository, *db.DB) {
	t.Helper()

	database, err := db.New(config.DatabaseConfig{
		Driver: db.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "certs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.RunMigrations(database))

	issuerRepo := repository.NewIssuerRepository(database)
	require.NoError(t, issuerRepo.Create(&models.Issuer{
		ID:         testIssuerID,
		Name:       "Test Training Partner",
		APIKeyHash: "test-hash",
		Enabled:    true,
	}))

	return repository.NewCertificateRepository(database), database
}

func sampleInput() *IssueInput {
	marks := 92
	return &IssueInput{
		LearnerName:    "Asha Rao",
		CourseName:     "Cloud Fundamentals",
		NSQFLevel:      4,
		CompletionDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Marks:          &marks,
	}
}

func TestIssueAndVerifySuccess(t *testing.T) {
	store, _ := newTestStore(t)
	led := newFakeLedger()
	svc := NewService(store, led, &fakeArchive{cid: "QmTestCid"})

	record, err := svc.Issue(context.Background(), testIssuerID, sampleInput())
	require.NoError(t, err)

	assert.Equal(t, int64(1), record.CertID)
	require.NotNil(t, record.TransactionHash)
	assert.NotEmpty(t, *record.TransactionHash)
	require.NotNil(t, record.ArchiveCID)
	assert.Equal(t, "QmTestCid", *record.ArchiveCID)
	assert.Len(t, record.CertHash, 64)

	result, err := svc.Verify(context.Background(), record.CertID)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Equal(t, StatusVerified, result.Status)
	assert.Equal(t, result.StoredHash, result.LedgerHash)
}

func TestStoredHashMatchesStoredMetadata(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewService(store, newFakeLedger(), nil)

	record, err := svc.Issue(context.Background(), testIssuerID, sampleInput())
	require.NoError(t, err)

	// The persisted blob must hash to the persisted hash.
	persisted, err := store.GetByCertID(record.CertID)
	require.NoError(t, err)

	recomputed, err := canonical.Hash(persisted.Metadata)
	require.NoError(t, err)
	assert.Equal(t, persisted.CertHash, recomputed)
}

func TestIssueLedgerUnavailableLeavesPartialRecord(t *testing.T) {
	store, _ := newTestStore(t)
	led := newFakeLedger()
	svc := NewService(store, led, nil)

	// Reserve ids 1-6 so the failing issuance lands on cert id 7.
	for i := 0; i < 6; i++ {
		_, err := store.NextCertID()
		require.NoError(t, err)
	}

	led.issueErr = fmt.Errorf("rpc timeout: %w", ledger.ErrUnavailable)
	record, err := svc.Issue(context.Background(), testIssuerID, sampleInput())

	var partial *PartialIssuanceError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(7), partial.CertID)
	assert.ErrorIs(t, partial, ledger.ErrUnavailable)

	require.NotNil(t, record)
	assert.Nil(t, record.TransactionHash)

	// The record is readable but reports unconfirmed, never verified:false
	// because of a missing ledger entry.
	got, err := svc.Get(7)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got.LearnerName)
	assert.Equal(t, "Cloud Fundamentals", got.CourseName)
	assert.Nil(t, got.TransactionHash)

	result, err := svc.Verify(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, StatusUnconfirmed, result.Status)
	assert.Empty(t, result.LedgerHash)
}

func TestVerifyTamperedStoredHash(t *testing.T) {
	store, database := newTestStore(t)
	led := newFakeLedger()
	svc := NewService(store, led, nil)

	record, err := svc.Issue(context.Background(), testIssuerID, sampleInput())
	require.NoError(t, err)

	// Flip one hex character of the stored hash behind the store's back.
	tampered := record.CertHash[:63]
	if record.CertHash[63] == '0' {
		tampered += "1"
	} else {
		tampered += "0"
	}
	_, err = database.Exec(`UPDATE certificates SET cert_hash = ? WHERE cert_id = ?`, tampered, record.CertID)
	require.NoError(t, err)

	result, err := svc.Verify(context.Background(), record.CertID)
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, StatusMismatch, result.Status)
	assert.Equal(t, tampered, result.StoredHash)
	assert.Equal(t, record.CertHash, result.LedgerHash)
}

func TestIssueArchiveFailureDoesNotAbort(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewService(store, newFakeLedger(), &fakeArchive{err: fmt.Errorf("ipfs node down")})

	record, err := svc.Issue(context.Background(), testIssuerID, sampleInput())
	require.NoError(t, err)

	assert.Nil(t, record.ArchiveCID)
	require.NotNil(t, record.TransactionHash)
	assert.NotEmpty(t, *record.TransactionHash)
}

func TestRetryLedgerWrite(t *testing.T) {
	store, _ := newTestStore(t)
	led := newFakeLedger()
	svc := NewService(store, led, nil)

	led.issueErr = fmt.Errorf("rpc timeout: %w", ledger.ErrUnavailable)
	_, err := svc.Issue(context.Background(), testIssuerID, sampleInput())
	var partial *PartialIssuanceError
	require.ErrorAs(t, err, &partial)

	// The ledger comes back; only steps 6-7 re-run.
	led.issueErr = nil
	record, err := svc.RetryLedgerWrite(context.Background(), partial.CertID)
	require.NoError(t, err)
	require.NotNil(t, record.TransactionHash)

	result, err := svc.Verify(context.Background(), partial.CertID)
	require.NoError(t, err)
	assert.True(t, result.Verified)

	// A fully issued certificate refuses another ledger write.
	_, err = svc.RetryLedgerWrite(context.Background(), partial.CertID)
	require.ErrorIs(t, err, ErrAlreadyIssued)
}

func TestVerifyUnknownCertificate(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewService(store, newFakeLedger(), nil)

	_, err := svc.Verify(context.Background(), 999)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPrepareDoesNotReserveID(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewService(store, newFakeLedger(), nil)

	preview, err := svc.Prepare(testIssuerID, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, int64(1), preview.CertID)
	assert.Len(t, preview.CertHash, 64)

	record, err := svc.Issue(context.Background(), testIssuerID, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.CertID)
}

func TestExportDigiLocker(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewService(store, newFakeLedger(), nil)

	record, err := svc.Issue(context.Background(), testIssuerID, sampleInput())
	require.NoError(t, err)

	payload, err := svc.ExportDigiLocker(record.CertID, "https://skillchain.example.com")
	require.NoError(t, err)
	assert.Equal(t, "JSON", payload.Format)
	assert.Equal(t, "1.0", payload.Version)
	assert.Equal(t, record.CertID, payload.Certificate.ID)
	assert.Equal(t, "Asha Rao", payload.Certificate.Name)
	assert.Equal(t, "https://skillchain.example.com/verify?certId=1", payload.Certificate.VerificationURL)
	require.NotNil(t, payload.Certificate.TransactionHash)
}
