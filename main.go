package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/voicetel/support-escalator/internal/config"
	"github.com/voicetel/support-escalator/internal/database"
	"github.com/voicetel/support-escalator/internal/email"
	"github.com/voicetel/support-escalator/internal/jobs"
	"github.com/voicetel/support-escalator/internal/logging"
	"github.com/voicetel/support-escalator/internal/models"
	"github.com/voicetel/support-escalator/internal/slack"
)

// Version information - these will be set at build time via ldflags
var (
	Version   = "dev"     // Version number
	GitCommit = "unknown" // Git commit hash
	BuildDate = "unknown" // Build date
	GoVersion = "unknown" // Go version used to build
)

// Exit codes the scheduler keys its retry policy on.
const (
	exitOK           = 0
	exitFailure      = 1
	exitNonRetriable = 3
)

func main() {
	// Parse command line flags
	cfg := config.ParseFlags()

	// Check for version flag before other validation
	if cfg.ShowVersion {
		printVersion()
		os.Exit(exitOK)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Set up logging
	logger := logging.NewLogger(cfg.LogFormat, cfg.Verbose, nil)
	logger.SetAsDefault()

	if cfg.Verbose {
		logger.Info("Starting Support Escalator",
			"version", Version,
			"git_commit", GitCommit,
			"job", cfg.Job,
			"dry_run", cfg.DryRun,
		)
	}

	// Check connections mode
	if cfg.CheckConnections {
		if err := checkConnections(cfg, logger); err != nil {
			logger.LogError("Connection check failed", err)
			os.Exit(exitFailure)
		}
		fmt.Println("All connections successful!")
		os.Exit(exitOK)
	}

	// Initialize SQLite delivery log
	db, err := database.InitSQLite(cfg.DBPath)
	if err != nil {
		logger.LogError("Failed to initialize SQLite", err)
		os.Exit(exitFailure)
	}
	defer db.Close()

	// Initialize database schema if requested
	if cfg.InitDB {
		if err := database.InitSchema(db); err != nil {
			logger.LogError("Failed to initialize database schema", err)
			os.Exit(exitFailure)
		}
		fmt.Println("Database initialized successfully!")
		os.Exit(exitOK)
	}

	// Cleanup mode
	if cfg.Cleanup {
		if err := performCleanup(db, cfg, logger); err != nil {
			logger.LogError("Failed to perform cleanup", err)
			os.Exit(exitFailure)
		}
		fmt.Println("Cleanup completed successfully!")
		os.Exit(exitOK)
	}

	// Stats only mode
	if cfg.StatsOnly {
		if err := printStats(db); err != nil {
			logger.LogError("Failed to print stats", err)
			os.Exit(exitFailure)
		}
		os.Exit(exitOK)
	}

	// Connect to the helpdesk database
	store, err := database.ConnectHelpdesk(cfg.Helpdesk)
	if err != nil {
		logger.LogError("Failed to connect to helpdesk database", err)
		os.Exit(exitFailure)
	}
	defer store.Close()

	engine := jobs.New(
		store,
		slack.NewClient(cfg.Slack),
		email.NewClient(cfg.Resend),
		db,
		cfg,
		logger,
	)

	code := runJob(engine, cfg, logger)

	// Print statistics if requested
	if cfg.Stats || cfg.Verbose {
		printRunStats(engine.RunStats(cfg.Job), logger)
	}

	os.Exit(code)
}

func printRunStats(stats models.RunStats, logger *logging.Logger) {
	logger.LogRunStats(map[string]interface{}{
		"job":      stats.Job,
		"sent":     stats.Sent,
		"failed":   stats.Failed,
		"skipped":  stats.Skipped,
		"duration": stats.Duration.String(),
	})
}

func runJob(engine *jobs.Engine, cfg *config.Config, logger *logging.Logger) int {
	now := time.Now()

	switch cfg.Job {
	case "vip-message":
		result, err := engine.NotifyVipMessage(cfg.MessageID)
		if err != nil {
			logger.LogError("VIP message notification failed", err, "message_id", cfg.MessageID)
			if jobs.IsNonRetriable(err) {
				return exitNonRetriable
			}
			return exitFailure
		}
		logger.Info("vip_message_completed",
			"message_id", cfg.MessageID,
			"chat", result.Chat,
			"email", result.Email,
			"reason", result.Reason,
		)
		return exitOK

	case "assigned":
		return reportResult(engine.CheckAssignedTicketResponseTimes(now), cfg.Job, logger)
	case "vip":
		return reportResult(engine.CheckVipResponseTimes(now), cfg.Job, logger)
	case "daily":
		return reportResult(engine.GenerateMailboxDailyReport(now), cfg.Job, logger)
	case "weekly":
		return reportResult(engine.GenerateMailboxWeeklyReport(now), cfg.Job, logger)
	default:
		logger.Error("unknown job", "job", cfg.Job)
		return exitFailure
	}
}

func reportResult(result models.JobResult, job string, logger *logging.Logger) int {
	attrs := []any{"job", job, "success", result.Success}
	if result.Skipped != "" {
		attrs = append(attrs, "skipped", string(result.Skipped))
	}
	logger.Info("job_completed", attrs...)

	for _, f := range result.FailedMailboxes {
		logger.Error("mailbox failed", "mailbox_id", f.ID, "name", f.Name, "slug", f.Slug, "error", f.Error)
	}

	if !result.Success {
		return exitFailure
	}
	return exitOK
}

func printVersion() {
	fmt.Printf("Support Escalator\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Go Version: %s\n", GoVersion)
}

func checkConnections(cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Checking connections...")

	// Check helpdesk database
	logger.Info("Testing helpdesk database connection...")
	store, err := database.ConnectHelpdesk(cfg.Helpdesk)
	if err != nil {
		return fmt.Errorf("helpdesk connection failed: %w", err)
	}
	defer store.Close()
	logger.Info("Helpdesk database connection successful")

	// Check Slack bot token when a mailbox has one configured
	mailbox, err := store.GetMailbox()
	if err == nil && mailbox.SlackBotToken != "" {
		logger.Info("Testing Slack bot token...")
		client := slack.NewClient(cfg.Slack)
		if err := client.TestAuth(mailbox.SlackBotToken); err != nil {
			return fmt.Errorf("slack auth test failed: %w", err)
		}
		logger.Info("Slack auth test successful")
	}

	return nil
}

func printStats(db *database.DB) error {
	stats, err := db.GetDeliveryStats()
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	// Always use human-readable format for --stats-only
	printHumanReadableStats(stats)
	return nil
}

func printHumanReadableStats(stats map[string]interface{}) {
	fmt.Printf("\n=== Support Escalator Delivery Statistics ===\n\n")

	// Total deliveries
	if total, ok := stats["total_deliveries"].(int); ok {
		fmt.Printf("Total Deliveries: %d\n\n", total)
	}

	// By status
	if statusMap, ok := stats["by_status"].(map[string]int); ok {
		fmt.Printf("By Status:\n")
		for status, count := range statusMap {
			fmt.Printf("  %s: %d\n", status, count)
		}
		fmt.Println()
	}

	// By job type
	if jobMap, ok := stats["by_job"].(map[string]int); ok {
		fmt.Printf("By Job:\n")
		for jobType, count := range jobMap {
			fmt.Printf("  %s: %d\n", jobType, count)
		}
		fmt.Println()
	}

	// By channel
	if channelMap, ok := stats["by_channel"].(map[string]int); ok {
		fmt.Printf("By Channel:\n")
		for channel, count := range channelMap {
			fmt.Printf("  %s: %d\n", channel, count)
		}
		fmt.Println()
	}

	// Recent activity
	if sent24h, ok := stats["sent_last_24h"].(int); ok {
		fmt.Printf("Sent in Last 24 Hours: %d\n", sent24h)
	}

	if sent7d, ok := stats["sent_7d"].(int); ok {
		if failed7d, ok := stats["failed_7d"].(int); ok {
			fmt.Printf("Last 7 Days: %d sent, %d failed\n", sent7d, failed7d)
		}
	}
}

func performCleanup(db *database.DB, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting database cleanup",
		"retention_days", cfg.RetentionDays,
		"auto_vacuum", cfg.AutoVacuum,
	)

	if err := database.CleanupOldDeliveries(db, cfg.RetentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old deliveries: %w", err)
	}

	if cfg.AutoVacuum {
		if err := database.VacuumDatabase(db); err != nil {
			return fmt.Errorf("failed to vacuum database: %w", err)
		}
	}

	return nil
}
