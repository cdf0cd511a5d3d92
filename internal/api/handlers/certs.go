package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillchain/certserver/internal/api/middleware"
	"github.com/skillchain/certserver/internal/config"
	"github.com/skillchain/certserver/internal/credential"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/models"
	"github.com/skillchain/certserver/internal/policy"
)

// CertHandler handles certificate issuance operations
type CertHandler struct {
	config    *config.Config
	service   *credential.Service
	auditRepo *repository.AuditRepository
	validator *policy.Validator
}

// NewCertHandler creates a new certificate handler
func NewCertHandler(
	cfg *config.Config,
	service *credential.Service,
	auditRepo *repository.AuditRepository,
	validator *policy.Validator,
) *CertHandler {
	return &CertHandler{
		config:    cfg,
		service:   service,
		auditRepo: auditRepo,
		validator: validator,
	}
}

// IssueRequest represents a certificate issuance request
type IssueRequest struct {
	LearnerName    string  `json:"learner_name" binding:"required"`
	CourseName     string  `json:"course_name" binding:"required"`
	NSQFLevel      int     `json:"nsqf_level" binding:"required"`
	CompletionDate string  `json:"completion_date" binding:"required"` // RFC 3339
	Marks          *int    `json:"marks"`
	LearnerAddress *string `json:"learner_address"`
}

// IssueResponse represents a successful issuance
type IssueResponse struct {
	Status      string                    `json:"status"`
	Certificate *models.CertificateRecord `json:"certificate"`
}

func (r *IssueRequest) toInput() (*credential.IssueInput, error) {
	completionDate, err := time.Parse(time.RFC3339, r.CompletionDate)
	if err != nil {
		return nil, fmt.Errorf("completion_date must be RFC 3339: %w", err)
	}

	return &credential.IssueInput{
		LearnerName:    r.LearnerName,
		CourseName:     r.CourseName,
		NSQFLevel:      r.NSQFLevel,
		CompletionDate: completionDate,
		Marks:          r.Marks,
		LearnerAddress: r.LearnerAddress,
	}, nil
}

// PrepareIssuance previews the next certificate id and metadata hash
// without persisting anything.
// POST /v1/certs/prepare
func (h *CertHandler) PrepareIssuance(c *gin.Context) {
	issuer, ok := middleware.CurrentIssuer(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", "Issuer context missing")
		return
	}

	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	input, err := req.toInput()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.validator.ValidateIssueRequest(issuer, input); err != nil {
		RespondError(c, http.StatusForbidden, "policy_violation", err.Error())
		return
	}

	preview, err := h.service.Prepare(issuer.ID, input)
	if err != nil {
		log.Printf("Error preparing issuance: %v", err)
		RespondDomainError(c, err)
		return
	}

	h.audit(c, models.ActionCertPrepare, issuer.ID, preview.CertID, true, "")
	RespondSuccess(c, preview)
}

// IssueCertificate runs the full issuance workflow.
// POST /v1/certs/issue
func (h *CertHandler) IssueCertificate(c *gin.Context) {
	issuer, ok := middleware.CurrentIssuer(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", "Issuer context missing")
		return
	}

	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	input, err := req.toInput()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.validator.ValidateIssueRequest(issuer, input); err != nil {
		RespondError(c, http.StatusForbidden, "policy_violation", err.Error())
		return
	}

	record, err := h.service.Issue(c.Request.Context(), issuer.ID, input)
	if err != nil {
		var partial *credential.PartialIssuanceError
		if errors.As(err, &partial) {
			// The record exists but the ledger write did not confirm. The
			// caller retries the ledger step, not the whole issuance.
			h.audit(c, models.ActionCertIssue, issuer.ID, partial.CertID, false, partial.Err.Error())
			RespondErrorWithDetails(c, http.StatusBadGateway, "ledger_write_failed",
				"Certificate persisted but the ledger write did not complete; retry the ledger step",
				gin.H{"cert_id": partial.CertID, "status": "partially_issued"})
			return
		}

		log.Printf("Error issuing certificate: %v", err)
		h.audit(c, models.ActionCertIssue, issuer.ID, 0, false, err.Error())
		RespondDomainError(c, err)
		return
	}

	h.audit(c, models.ActionCertIssue, issuer.ID, record.CertID, true, "")
	RespondSuccess(c, IssueResponse{Status: "issued", Certificate: record})
}

// RetryLedgerWrite re-runs the ledger write for a partially-issued
// certificate.
// POST /v1/certs/:certId/retry-ledger
func (h *CertHandler) RetryLedgerWrite(c *gin.Context) {
	issuer, ok := middleware.CurrentIssuer(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", "Issuer context missing")
		return
	}

	certID, err := ParseCertID(c.Param("certId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_cert_id", "Certificate id must be a positive integer")
		return
	}

	record, err := h.service.RetryLedgerWrite(c.Request.Context(), certID)
	if err != nil {
		var partial *credential.PartialIssuanceError
		if errors.As(err, &partial) {
			h.audit(c, models.ActionLedgerRetry, issuer.ID, certID, false, partial.Err.Error())
			RespondErrorWithDetails(c, http.StatusBadGateway, "ledger_write_failed",
				"Ledger write did not complete; retry later",
				gin.H{"cert_id": certID, "status": "partially_issued"})
			return
		}

		h.audit(c, models.ActionLedgerRetry, issuer.ID, certID, false, err.Error())
		RespondDomainError(c, err)
		return
	}

	h.audit(c, models.ActionLedgerRetry, issuer.ID, certID, true, "")
	RespondSuccess(c, IssueResponse{Status: "issued", Certificate: record})
}

// ListMine lists the authenticated issuer's certificates.
// GET /v1/certs/mine
func (h *CertHandler) ListMine(c *gin.Context) {
	issuer, ok := middleware.CurrentIssuer(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", "Issuer context missing")
		return
	}

	certs, err := h.service.ListByIssuer(issuer.ID)
	if err != nil {
		log.Printf("Error listing certificates: %v", err)
		RespondDomainError(c, err)
		return
	}

	RespondSuccess(c, gin.H{"certificates": certs})
}

// ExportDigiLocker returns the DigiLocker payload for a certificate.
// GET /v1/certs/:certId/digilocker
func (h *CertHandler) ExportDigiLocker(c *gin.Context) {
	certID, err := ParseCertID(c.Param("certId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_cert_id", "Certificate id must be a positive integer")
		return
	}

	payload, err := h.service.ExportDigiLocker(certID, h.config.Server.VerifyBaseURL)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	RespondSuccess(c, payload)
}

func (h *CertHandler) audit(c *gin.Context, action, issuerID string, certID int64, success bool, errorMsg string) {
	err := h.auditRepo.Create(&models.AuditLog{
		Action:   action,
		IssuerID: issuerID,
		CertID:   certID,
		ClientIP: GetClientIP(c),
		Success:  success,
		ErrorMsg: errorMsg,
	})
	if err != nil {
		log.Printf("Failed to write audit log: %v", err)
	}
}

// ParseCertID parses a sequential certificate id from a path parameter.
// The CERT-<n> display form used by dashboards is accepted as well.
func ParseCertID(raw string) (int64, error) {
	if len(raw) > 5 && raw[:5] == "CERT-" {
		raw = raw[5:]
	}

	certID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || certID <= 0 {
		return 0, fmt.Errorf("invalid certificate id %q", raw)
	}
	return certID, nil
}
