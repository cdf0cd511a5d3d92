package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillchain/certserver/internal/credential"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/ledger"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// RespondError sends an error response
func RespondError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// RespondErrorWithDetails sends an error response with details
func RespondErrorWithDetails(c *gin.Context, statusCode int, errorCode string, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// RespondSuccess sends a success response
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondDomainError maps the store and ledger error taxonomy onto HTTP
// statuses. Unrecognized errors become a 500.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
	case errors.Is(err, repository.ErrDuplicateID):
		RespondError(c, http.StatusConflict, "duplicate_id", "Certificate id already exists")
	case errors.Is(err, repository.ErrAlreadyAttached):
		RespondError(c, http.StatusConflict, "already_attached", "Transaction reference already attached")
	case errors.Is(err, credential.ErrAlreadyIssued):
		RespondError(c, http.StatusConflict, "already_issued", "Certificate already carries a confirmed ledger write")
	case errors.Is(err, ledger.ErrUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "ledger_unavailable", "Credential ledger is unreachable")
	case errors.Is(err, ledger.ErrRejected):
		RespondError(c, http.StatusConflict, "ledger_rejected", "Credential ledger rejected the call")
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// GetClientIP gets the real client IP address
func GetClientIP(c *gin.Context) string {
	// Try X-Forwarded-For header first (for proxied requests)
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		return ip
	}

	// Try X-Real-IP header
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}

	// Fall back to RemoteAddr
	return c.ClientIP()
}
