package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/skillchain/certserver/internal/auth"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/models"
)

// IssuerContextKey is the gin context key carrying the authenticated issuer.
const IssuerContextKey = "issuer"

// IssuerAuth resolves the Authorization bearer API key to an issuer
// principal and stores it in the request context. The rest of the server
// treats the issuer id as opaque.
func IssuerAuth(issuerRepo *repository.IssuerRepository, auditRepo *repository.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		key, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Issuer API key required",
			})
			c.Abort()
			return
		}

		issuer, err := issuerRepo.GetByKeyHash(auth.HashKey(key))
		if err != nil {
			logAuthFailure(auditRepo, c.ClientIP(), "Unknown API key")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid API key",
			})
			c.Abort()
			return
		}

		if !issuer.Enabled {
			logAuthFailure(auditRepo, c.ClientIP(), "Issuer disabled")
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Issuer account is disabled",
			})
			c.Abort()
			return
		}

		c.Set(IssuerContextKey, issuer)
		c.Next()
	}
}

// CurrentIssuer returns the issuer set by IssuerAuth.
func CurrentIssuer(c *gin.Context) (*models.Issuer, bool) {
	value, exists := c.Get(IssuerContextKey)
	if !exists {
		return nil, false
	}
	issuer, ok := value.(*models.Issuer)
	return issuer, ok
}

// AdminAuth middleware checks for admin token
func AdminAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Admin-Token")

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Admin token required",
			})
			c.Abort()
			return
		}

		if token != adminToken {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func logAuthFailure(auditRepo *repository.AuditRepository, clientIP, reason string) {
	if auditRepo == nil {
		return
	}
	err := auditRepo.Create(&models.AuditLog{
		Action:   models.ActionAuthFailed,
		ClientIP: clientIP,
		Success:  false,
		ErrorMsg: reason,
	})
	if err != nil {
		log.Printf("Failed to write auth failure audit log: %v", err)
	}
}
