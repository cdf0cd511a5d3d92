package policy

import (
	"fmt"
	"regexp"
	"time"

	"github.com/skillchain/certserver/internal/config"
	"github.com/skillchain/certserver/internal/credential"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/models"
)

var walletAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Validator validates certificate issuance requests against policy
type Validator struct {
	config   *config.Config
	certRepo *repository.CertificateRepository
}

// NewValidator creates a new policy validator
func NewValidator(cfg *config.Config, certRepo *repository.CertificateRepository) *Validator {
	return &Validator{
		config:   cfg,
		certRepo: certRepo,
	}
}

// ValidateIssueRequest validates a certificate issuance request for the
// given issuer. It checks the issuer account, the request fields, and the
// issuer's daily issuance cap.
func (v *Validator) ValidateIssueRequest(issuer *models.Issuer, input *credential.IssueInput) error {
	// Check if issuer is enabled
	if !issuer.Enabled {
		return fmt.Errorf("issuer account is disabled")
	}

	if input.LearnerName == "" {
		return fmt.Errorf("learner name is required")
	}
	if input.CourseName == "" {
		return fmt.Errorf("course name is required")
	}

	minLevel := v.config.Policy.MinNSQFLevel
	maxLevel := v.config.Policy.MaxNSQFLevel
	if input.NSQFLevel < minLevel || input.NSQFLevel > maxLevel {
		return fmt.Errorf("nsqf level must be between %d and %d", minLevel, maxLevel)
	}

	if input.CompletionDate.IsZero() {
		return fmt.Errorf("completion date is required")
	}
	if input.CompletionDate.After(time.Now()) {
		return fmt.Errorf("completion date must not be in the future")
	}

	if input.Marks != nil && (*input.Marks < 0 || *input.Marks > 100) {
		return fmt.Errorf("marks must be between 0 and 100")
	}

	if input.LearnerAddress != nil && !walletAddressPattern.MatchString(*input.LearnerAddress) {
		return fmt.Errorf("learner address must be a 0x-prefixed 40-hex-digit wallet address")
	}

	// Check daily issuance limit
	count, err := v.certRepo.CountByIssuerToday(issuer.ID)
	if err != nil {
		return fmt.Errorf("failed to check daily limit: %w", err)
	}

	maxCerts := issuer.MaxCertsPerDay
	if maxCerts <= 0 {
		maxCerts = v.config.Policy.MaxCertsPerDay
	}

	if count >= maxCerts {
		return fmt.Errorf("daily certificate limit exceeded (%d/%d)", count, maxCerts)
	}

	return nil
}
