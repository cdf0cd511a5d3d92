package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skillchain/certserver/internal/archive"
	"github.com/skillchain/certserver/internal/auth"
	"github.com/skillchain/certserver/internal/config"
	"github.com/skillchain/certserver/internal/credential"
	"github.com/skillchain/certserver/internal/db"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/ledger"
	"github.com/skillchain/certserver/internal/models"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Skill Chain certificate server administration tool",
	Long:  "Administrative tool for managing issuers, certificates, and audit logs",
}

var issuerCmd = &cobra.Command{
	Use:   "issuer",
	Short: "Manage issuers",
}

var issuerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new issuer and print its API key",
	RunE:  createIssuer,
}

var issuerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all issuers",
	RunE:  listIssuers,
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Inspect certificates",
}

var certListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all certificates",
	RunE:  listCerts,
}

var certVerifyCmd = &cobra.Command{
	Use:   "verify <cert-id>",
	Short: "Verify a certificate against the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  verifyCert,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Manage audit logs",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit log entries",
	RunE:  listAudit,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-action audit counts for a recent window",
	RunE:  auditStats,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit log entries older than the retention window",
	RunE:  pruneAudit,
}

var (
	issuerName     string
	maxCertsPerDay int
	auditIssuerID  string
	auditAction    string
	auditLimit     int
	auditDays      int
)

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/skillchain/config.yaml", "Config file path")

	// Issuer create flags
	issuerCreateCmd.Flags().StringVarP(&issuerName, "name", "n", "", "Issuer name (required)")
	issuerCreateCmd.Flags().IntVar(&maxCertsPerDay, "max-certs-per-day", 0, "Daily issuance cap (0 uses the server default)")
	issuerCreateCmd.MarkFlagRequired("name")

	// Audit list flags
	auditListCmd.Flags().StringVar(&auditIssuerID, "issuer", "", "Filter by issuer id")
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum number of entries")

	// Audit stats/prune flags
	auditStatsCmd.Flags().IntVar(&auditDays, "days", 1, "Window in days")
	auditPruneCmd.Flags().IntVar(&auditDays, "days", 90, "Retention in days")

	// Add commands
	issuerCmd.AddCommand(issuerCreateCmd)
	issuerCmd.AddCommand(issuerListCmd)
	certCmd.AddCommand(certListCmd)
	certCmd.AddCommand(certVerifyCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditCmd.AddCommand(auditPruneCmd)
	rootCmd.AddCommand(issuerCmd)
	rootCmd.AddCommand(certCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initDB() error {
	// Load configuration
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Connect to database
	database, err = db.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return nil
}

func createIssuer(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("failed to generate API key: %w", err)
	}

	issuerRepo := repository.NewIssuerRepository(database)
	issuer := &models.Issuer{
		ID:             uuid.NewString(),
		Name:           issuerName,
		APIKeyHash:     auth.HashKey(apiKey),
		Enabled:        true,
		MaxCertsPerDay: maxCertsPerDay,
	}

	if err := issuerRepo.Create(issuer); err != nil {
		return fmt.Errorf("failed to create issuer: %w", err)
	}

	fmt.Printf("\nIssuer created successfully!\n")
	fmt.Printf("Issuer ID: %s\n", issuer.ID)
	fmt.Printf("Name: %s\n", issuer.Name)
	fmt.Printf("Max certs per day: %d\n", issuer.MaxCertsPerDay)
	fmt.Printf("\nAPI key: %s\n", apiKey)
	fmt.Printf("\nStore the API key now; only its hash is kept on the server.\n")

	return nil
}

func listIssuers(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	issuerRepo := repository.NewIssuerRepository(database)
	issuers, err := issuerRepo.List()
	if err != nil {
		return fmt.Errorf("failed to list issuers: %w", err)
	}

	if len(issuers) == 0 {
		fmt.Println("No issuers found")
		return nil
	}

	fmt.Printf("\nTotal issuers: %d\n\n", len(issuers))
	fmt.Printf("%-38s %-24s %-10s %-15s %s\n", "ID", "Name", "Enabled", "Max Certs/Day", "Created")
	fmt.Println("------------------------------------------------------------------------------------------------")

	for _, issuer := range issuers {
		enabledStr := "No"
		if issuer.Enabled {
			enabledStr = "Yes"
		}
		fmt.Printf("%-38s %-24s %-10s %-15d %s\n",
			issuer.ID,
			issuer.Name,
			enabledStr,
			issuer.MaxCertsPerDay,
			issuer.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	return nil
}

func listCerts(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	certRepo := repository.NewCertificateRepository(database)
	certs, err := certRepo.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list certificates: %w", err)
	}

	if len(certs) == 0 {
		fmt.Println("No certificates found")
		return nil
	}

	fmt.Printf("\nTotal certificates: %d\n\n", len(certs))
	fmt.Printf("%-8s %-20s %-24s %-12s %s\n", "CertID", "Learner", "Course", "On Ledger", "Issued")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, cert := range certs {
		onLedger := "No"
		if cert.Issued() {
			onLedger = "Yes"
		}
		fmt.Printf("%-8d %-20s %-24s %-12s %s\n",
			cert.CertID,
			cert.Metadata.LearnerName,
			cert.Metadata.CourseName,
			onLedger,
			cert.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	return nil
}

func verifyCert(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	certID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || certID <= 0 {
		return fmt.Errorf("invalid certificate id %q", args[0])
	}

	certRepo := repository.NewCertificateRepository(database)
	ledgerClient := ledger.NewRPCClient(cfg.Ledger.RPCURL, cfg.Ledger.ContractAddress, cfg.GetLedgerTimeout())

	var archiveClient archive.Client
	if cfg.ArchiveEnabled() {
		archiveClient = archive.NewIPFSClient(cfg.Archive.APIURL, cfg.Archive.GatewayURL, cfg.GetArchiveTimeout())
	}

	service := credential.NewService(certRepo, ledgerClient, archiveClient)
	result, err := service.Verify(context.Background(), certID)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	fmt.Printf("\nCertificate %d\n", result.CertID)
	fmt.Printf("Status:      %s\n", result.Status)
	fmt.Printf("Stored hash: %s\n", result.StoredHash)
	if result.LedgerHash != "" {
		fmt.Printf("Ledger hash: %s\n", result.LedgerHash)
	}

	return nil
}

func auditStats(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	auditRepo := repository.NewAuditRepository(database)
	since := time.Now().UTC().AddDate(0, 0, -auditDays)

	actions := []string{
		models.ActionCertPrepare,
		models.ActionCertIssue,
		models.ActionCertVerify,
		models.ActionLedgerRetry,
		models.ActionAdminCreateIssuer,
		models.ActionAuthFailed,
	}

	fmt.Printf("\nAudit counts since %s\n\n", since.Format("2006-01-02 15:04:05"))
	for _, action := range actions {
		count, err := auditRepo.CountByAction(action, since)
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", action, err)
		}
		fmt.Printf("%-22s %d\n", action, count)
	}

	return nil
}

func pruneAudit(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	auditRepo := repository.NewAuditRepository(database)
	before := time.Now().UTC().AddDate(0, 0, -auditDays)

	deleted, err := auditRepo.DeleteOld(before)
	if err != nil {
		return fmt.Errorf("failed to prune audit logs: %w", err)
	}

	fmt.Printf("Deleted %d audit log entries older than %s\n", deleted, before.Format("2006-01-02"))
	return nil
}

func listAudit(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	auditRepo := repository.NewAuditRepository(database)
	entries, err := auditRepo.List(auditIssuerID, auditAction, auditLimit)
	if err != nil {
		return fmt.Errorf("failed to list audit logs: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No audit log entries found")
		return nil
	}

	fmt.Printf("\nTotal entries: %d\n\n", len(entries))
	fmt.Printf("%-20s %-20s %-38s %-8s %-8s %s\n", "Timestamp", "Action", "Issuer", "CertID", "Success", "Error")
	fmt.Println("------------------------------------------------------------------------------------------------------------")

	for _, entry := range entries {
		successStr := "No"
		if entry.Success {
			successStr = "Yes"
		}
		certIDStr := "-"
		if entry.CertID != 0 {
			certIDStr = strconv.FormatInt(entry.CertID, 10)
		}
		issuerStr := entry.IssuerID
		if issuerStr == "" {
			issuerStr = "-"
		}
		fmt.Printf("%-20s %-20s %-38s %-8s %-8s %s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.Action,
			issuerStr,
			certIDStr,
			successStr,
			entry.ErrorMsg,
		)
	}

	return nil
}
