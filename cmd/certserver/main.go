package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/skillchain/certserver/internal/api"
	"github.com/skillchain/certserver/internal/archive"
	"github.com/skillchain/certserver/internal/config"
	"github.com/skillchain/certserver/internal/credential"
	"github.com/skillchain/certserver/internal/db"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/ledger"
	"github.com/skillchain/certserver/internal/policy"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/skillchain/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Skill Chain Certificate Server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	log.Printf("Starting Skill Chain Certificate Server %s (commit: %s)", Version, Commit)

	// Load configuration
	log.Printf("Loading configuration from %s", *configPath)
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	log.Printf("Connecting to %s database", cfg.Database.Driver)
	database, err := db.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	log.Printf("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	certRepo := repository.NewCertificateRepository(database)
	issuerRepo := repository.NewIssuerRepository(database)
	auditRepo := repository.NewAuditRepository(database)

	// Ledger client
	log.Printf("Ledger RPC endpoint: %s (contract %s)", cfg.Ledger.RPCURL, cfg.Ledger.ContractAddress)
	ledgerClient := ledger.NewRPCClient(cfg.Ledger.RPCURL, cfg.Ledger.ContractAddress, cfg.GetLedgerTimeout())

	// Archive client (optional)
	var archiveClient archive.Client
	if cfg.ArchiveEnabled() {
		log.Printf("Archive API endpoint: %s", cfg.Archive.APIURL)
		archiveClient = archive.NewIPFSClient(cfg.Archive.APIURL, cfg.Archive.GatewayURL, cfg.GetArchiveTimeout())
	} else {
		log.Printf("No archive endpoint configured, metadata archival disabled")
	}

	// Core issuance/verification service
	service := credential.NewService(certRepo, ledgerClient, archiveClient)

	// Policy validator
	validator := policy.NewValidator(cfg, certRepo)

	// Create HTTP server
	server := api.NewServer(cfg, service, issuerRepo, auditRepo, validator)

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.Server.ListenAddr)
		if err := server.Run(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Certificate server is running")
	log.Printf("Press Ctrl+C to shutdown")

	// Wait for interrupt signal
	<-quit
	log.Printf("Shutting down server...")

	// Cleanup
	database.Close()

	log.Printf("Server stopped")
}
