package handlers

import (
	"bytes"
	"image/png"
	"log"
	"net/http"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/gin-gonic/gin"

	"github.com/skillchain/certserver/internal/config"
	"github.com/skillchain/certserver/internal/credential"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/models"
)

const qrImageSize = 256

// VerifyHandler handles public certificate lookup and verification
type VerifyHandler struct {
	config    *config.Config
	service   *credential.Service
	auditRepo *repository.AuditRepository
}

// NewVerifyHandler creates a new verification handler
func NewVerifyHandler(cfg *config.Config, service *credential.Service, auditRepo *repository.AuditRepository) *VerifyHandler {
	return &VerifyHandler{
		config:    cfg,
		service:   service,
		auditRepo: auditRepo,
	}
}

// GetCertificate returns a stored certificate record.
// GET /v1/certs/:certId
func (h *VerifyHandler) GetCertificate(c *gin.Context) {
	certID, err := ParseCertID(c.Param("certId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_cert_id", "Certificate id must be a positive integer")
		return
	}

	record, err := h.service.Get(certID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	RespondSuccess(c, record)
}

// ListCertificates lists all stored certificates.
// GET /v1/certs
func (h *VerifyHandler) ListCertificates(c *gin.Context) {
	certs, err := h.service.ListAll()
	if err != nil {
		log.Printf("Error listing certificates: %v", err)
		RespondDomainError(c, err)
		return
	}

	RespondSuccess(c, gin.H{"certificates": certs})
}

// VerifyCertificate checks the stored metadata hash against the ledger.
// GET /v1/certs/:certId/verify
func (h *VerifyHandler) VerifyCertificate(c *gin.Context) {
	certID, err := ParseCertID(c.Param("certId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_cert_id", "Certificate id must be a positive integer")
		return
	}

	result, err := h.service.Verify(c.Request.Context(), certID)
	if err != nil {
		h.audit(c, certID, false, err.Error())
		RespondDomainError(c, err)
		return
	}

	h.audit(c, certID, result.Status == credential.StatusVerified, "")
	RespondSuccess(c, result)
}

// QRCode renders the verification URL for a certificate as a PNG QR code.
// GET /v1/certs/:certId/qr
func (h *VerifyHandler) QRCode(c *gin.Context) {
	certID, err := ParseCertID(c.Param("certId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_cert_id", "Certificate id must be a positive integer")
		return
	}

	// 404 for certificates that were never stored
	if _, err := h.service.Get(certID); err != nil {
		RespondDomainError(c, err)
		return
	}

	verifyURL := credential.VerificationURL(h.config.Server.VerifyBaseURL, certID)

	code, err := qr.Encode(verifyURL, qr.M, qr.Auto)
	if err != nil {
		log.Printf("Error encoding QR code for cert %d: %v", certID, err)
		RespondError(c, http.StatusInternalServerError, "qr_encode_failed", "Failed to generate QR code")
		return
	}

	code, err = barcode.Scale(code, qrImageSize, qrImageSize)
	if err != nil {
		log.Printf("Error scaling QR code for cert %d: %v", certID, err)
		RespondError(c, http.StatusInternalServerError, "qr_encode_failed", "Failed to generate QR code")
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		log.Printf("Error rendering QR code for cert %d: %v", certID, err)
		RespondError(c, http.StatusInternalServerError, "qr_encode_failed", "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *VerifyHandler) audit(c *gin.Context, certID int64, success bool, errorMsg string) {
	err := h.auditRepo.Create(&models.AuditLog{
		Action:   models.ActionCertVerify,
		CertID:   certID,
		ClientIP: GetClientIP(c),
		Success:  success,
		ErrorMsg: errorMsg,
	})
	if err != nil {
		log.Printf("Failed to write audit log: %v", err)
	}
}
