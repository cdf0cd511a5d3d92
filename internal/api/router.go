package api

import (
	"github.com/gin-gonic/gin"

	"github.com/skillchain/certserver/internal/api/handlers"
	"github.com/skillchain/certserver/internal/api/middleware"
	"github.com/skillchain/certserver/internal/config"
	"github.com/skillchain/certserver/internal/credential"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/policy"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	service *credential.Service,
	issuerRepo *repository.IssuerRepository,
	auditRepo *repository.AuditRepository,
	validator *policy.Validator,
) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// Create handlers
	certHandler := handlers.NewCertHandler(cfg, service, auditRepo, validator)
	verifyHandler := handlers.NewVerifyHandler(cfg, service, auditRepo)
	adminHandler := handlers.NewAdminHandler(issuerRepo, auditRepo)

	// API v1 routes
	v1 := router.Group("/v1")
	{
		certs := v1.Group("/certs")
		{
			// Public endpoints: anyone holding a certificate id may look
			// it up and verify it against the ledger
			certs.GET("", verifyHandler.ListCertificates)
			certs.GET("/:certId", verifyHandler.GetCertificate)
			certs.GET("/:certId/verify", verifyHandler.VerifyCertificate)
			certs.GET("/:certId/qr", verifyHandler.QRCode)

			// Issuer endpoints (require API key)
			issuing := certs.Group("")
			issuing.Use(middleware.IssuerAuth(issuerRepo, auditRepo))
			{
				issuing.GET("/mine", certHandler.ListMine)
				issuing.GET("/:certId/digilocker", certHandler.ExportDigiLocker)
				issuing.POST("/prepare", certHandler.PrepareIssuance)
				issuing.POST("/issue", certHandler.IssueCertificate)
				issuing.POST("/:certId/retry-ledger", certHandler.RetryLedgerWrite)
			}
		}

		// Admin endpoints (require admin token)
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(cfg.Admin.Token))
		{
			admin.POST("/issuers", adminHandler.CreateIssuer)
			admin.GET("/issuers", adminHandler.ListIssuers)
			admin.GET("/audit", adminHandler.ListAudit)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	return s.router.Run(s.config.Server.ListenAddr)
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
