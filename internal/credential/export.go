package credential

import (
	"fmt"
	"time"
)

// DigiLockerCertificate is the certificate section of a DigiLocker push
// payload.
type DigiLockerCertificate struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Course          string  `json:"course"`
	Level           int     `json:"level"`
	IssuedDate      string  `json:"issuedDate"`
	Issuer          string  `json:"issuer"`
	TransactionHash *string `json:"transactionHash,omitempty"`
	VerificationURL string  `json:"verificationUrl"`
}

// DigiLockerPayload is the document envelope handed to the DigiLocker
// integration.
type DigiLockerPayload struct {
	Certificate DigiLockerCertificate `json:"certificate"`
	Format      string                `json:"format"`
	Version     string                `json:"version"`
}

// VerificationURL builds the public verification link for a certificate.
func VerificationURL(baseURL string, certID int64) string {
	return fmt.Sprintf("%s/verify?certId=%d", baseURL, certID)
}

// ExportDigiLocker builds the DigiLocker payload for an issued certificate.
func (s *Service) ExportDigiLocker(certID int64, verifyBaseURL string) (*DigiLockerPayload, error) {
	record, err := s.store.GetByCertID(certID)
	if err != nil {
		return nil, err
	}

	return &DigiLockerPayload{
		Certificate: DigiLockerCertificate{
			ID:              record.CertID,
			Name:            record.LearnerName,
			Course:          record.CourseName,
			Level:           record.NSQFLevel,
			IssuedDate:      record.CompletionDate.UTC().Format(time.RFC3339),
			Issuer:          record.IssuerID,
			TransactionHash: record.TransactionHash,
			VerificationURL: VerificationURL(verifyBaseURL, record.CertID),
		},
		Format:  "JSON",
		Version: "1.0",
	}, nil
}
