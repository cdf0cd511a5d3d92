package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillchain/certserver/internal/auth"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/models"
)

// AdminHandler handles administrative operations
type AdminHandler struct {
	issuerRepo *repository.IssuerRepository
	auditRepo  *repository.AuditRepository
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(issuerRepo *repository.IssuerRepository, auditRepo *repository.AuditRepository) *AdminHandler {
	return &AdminHandler{
		issuerRepo: issuerRepo,
		auditRepo:  auditRepo,
	}
}

// CreateIssuerRequest represents an issuer registration request
type CreateIssuerRequest struct {
	Name           string `json:"name" binding:"required"`
	MaxCertsPerDay int    `json:"max_certs_per_day"`
}

// CreateIssuerResponse carries the one-time API key for a new issuer
type CreateIssuerResponse struct {
	Issuer *models.Issuer `json:"issuer"`
	APIKey string         `json:"api_key"` // Shown once, never stored in clear
}

// CreateIssuer registers a new issuer and returns its API key.
// POST /v1/admin/issuers
func (h *AdminHandler) CreateIssuer(c *gin.Context) {
	var req CreateIssuerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		log.Printf("Error generating API key: %v", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to generate API key")
		return
	}

	issuer := &models.Issuer{
		ID:             uuid.NewString(),
		Name:           req.Name,
		APIKeyHash:     auth.HashKey(apiKey),
		Enabled:        true,
		MaxCertsPerDay: req.MaxCertsPerDay,
	}

	if err := h.issuerRepo.Create(issuer); err != nil {
		log.Printf("Error creating issuer: %v", err)
		RespondDomainError(c, err)
		return
	}

	h.audit(c, models.ActionAdminCreateIssuer, issuer.ID, true, "")
	c.JSON(http.StatusCreated, CreateIssuerResponse{Issuer: issuer, APIKey: apiKey})
}

// ListIssuers lists all registered issuers.
// GET /v1/admin/issuers
func (h *AdminHandler) ListIssuers(c *gin.Context) {
	issuers, err := h.issuerRepo.List()
	if err != nil {
		log.Printf("Error listing issuers: %v", err)
		RespondDomainError(c, err)
		return
	}

	RespondSuccess(c, gin.H{"issuers": issuers})
}

// ListAudit lists audit log entries, newest first.
// GET /v1/admin/audit
func (h *AdminHandler) ListAudit(c *gin.Context) {
	limit := 100
	issuerID := c.Query("issuer_id")
	action := c.Query("action")

	entries, err := h.auditRepo.List(issuerID, action, limit)
	if err != nil {
		log.Printf("Error listing audit logs: %v", err)
		RespondDomainError(c, err)
		return
	}

	RespondSuccess(c, gin.H{"audit_logs": entries})
}

func (h *AdminHandler) audit(c *gin.Context, action, issuerID string, success bool, errorMsg string) {
	err := h.auditRepo.Create(&models.AuditLog{
		Action:   action,
		IssuerID: issuerID,
		ClientIP: GetClientIP(c),
		Success:  success,
		ErrorMsg: errorMsg,
	})
	if err != nil {
		log.Printf("Failed to write audit log: %v", err)
	}
}
