package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	// SQLite delivery log
	DBPath    string   `json:"db_path"`
	DBTimeout Duration `json:"db_timeout"`

	// Helpdesk database
	Helpdesk HelpdeskConfig `json:"helpdesk"`

	// Slack
	Slack SlackConfig `json:"slack"`

	// Email (Resend)
	Resend ResendConfig `json:"resend"`

	// Reports
	ReportTimezone string `json:"report_timezone"`

	// Cleanup
	RetentionDays int  `json:"retention_days"`
	AutoVacuum    bool `json:"auto_vacuum"`

	// Operational
	Job              string `json:"-"`
	MessageID        int64  `json:"-"`
	DryRun           bool   `json:"dry_run"`
	Verbose          bool   `json:"verbose"`
	LogFormat        string `json:"log_format"`
	Stats            bool   `json:"stats"`
	ShowVersion      bool   `json:"-"`
	CheckConnections bool   `json:"-"`
	InitDB           bool   `json:"-"`
	StatsOnly        bool   `json:"-"`
	Cleanup          bool   `json:"-"`
}

type HelpdeskConfig struct {
	DSN     string   `json:"dsn"`     // Database connection string
	Timeout Duration `json:"timeout"` // Connection timeout
	URL     string   `json:"url"`     // Base URL for conversation links
}

type SlackConfig struct {
	Timeout       Duration `json:"timeout"`
	RetryAttempts int      `json:"retry_attempts"`
}

type ResendConfig struct {
	APIKey      string `json:"api_key"`
	FromAddress string `json:"from_address"`
}

func ParseFlags() *Config {
	cfg := &Config{}

	// Config file flag
	configFile := flag.String("config-file", "", "Path to JSON configuration file")

	// Job selection
	flag.StringVar(&cfg.Job, "job", "", "Job to run (assigned, vip, daily, weekly, vip-message)")
	flag.Int64Var(&cfg.MessageID, "message-id", 0, "Message ID for the vip-message job")

	// SQLite flags
	flag.StringVar(&cfg.DBPath, "db-path", "./deliveries.db", "Path to SQLite delivery log")
	flag.DurationVar(&cfg.DBTimeout.Duration, "db-timeout", 5*time.Second, "SQLite timeout")

	// Helpdesk flags
	flag.StringVar(&cfg.Helpdesk.DSN, "helpdesk-dsn", "user:password@tcp(localhost:3306)/helpdesk?parseTime=true&timeout=30s", "Helpdesk database DSN (required)")
	flag.DurationVar(&cfg.Helpdesk.Timeout.Duration, "helpdesk-timeout", 30*time.Second, "Helpdesk connection timeout")
	flag.StringVar(&cfg.Helpdesk.URL, "helpdesk-url", "https://support.example.com", "Helpdesk base URL for conversation links (required)")

	// Slack flags (bot tokens and channels live on each mailbox row)
	flag.DurationVar(&cfg.Slack.Timeout.Duration, "slack-timeout", 10*time.Second, "Slack request timeout")
	flag.IntVar(&cfg.Slack.RetryAttempts, "slack-retry-attempts", 3, "Slack retry attempts")

	// Email flags with environment fallbacks
	flag.StringVar(&cfg.Resend.APIKey, "resend-api-key", os.Getenv("RESEND_API_KEY"), "Resend API key (or RESEND_API_KEY)")
	flag.StringVar(&cfg.Resend.FromAddress, "resend-from", os.Getenv("RESEND_FROM_ADDRESS"), "Email from address (or RESEND_FROM_ADDRESS)")

	// Report flags
	flag.StringVar(&cfg.ReportTimezone, "report-timezone", "America/New_York", "Timezone for weekend checks and weekly report windows")

	// Cleanup flags
	flag.IntVar(&cfg.RetentionDays, "retention-days", 90, "Days to retain delivery history")
	flag.BoolVar(&cfg.AutoVacuum, "auto-vacuum", false, "Automatically vacuum database after cleanup")

	// Operational flags
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "Compute everything but don't send notifications")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", "text", "Log format (text or json)")
	flag.BoolVar(&cfg.Stats, "stats", false, "Print run statistics at end")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")
	flag.BoolVar(&cfg.CheckConnections, "check-connections", false, "Test connections and exit")
	flag.BoolVar(&cfg.InitDB, "init-db", false, "Initialize delivery log and exit")
	flag.BoolVar(&cfg.StatsOnly, "stats-only", false, "Print delivery statistics and exit")
	flag.BoolVar(&cfg.Cleanup, "cleanup", false, "Clean up old delivery records and exit")

	flag.Parse()

	// Load config file if specified
	if *configFile != "" {
		if err := cfg.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
			os.Exit(1)
		}
	}

	return cfg
}

func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (c *Config) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validJobs = map[string]bool{
	"assigned":    true,
	"vip":         true,
	"daily":       true,
	"weekly":      true,
	"vip-message": true,
}

func (c *Config) Validate() error {
	// Required fields
	if c.Helpdesk.DSN == "" {
		return fmt.Errorf("--helpdesk-dsn is required")
	}

	// Validate DSN format
	if err := c.validateDSN(); err != nil {
		return fmt.Errorf("invalid DSN: %w", err)
	}

	if c.Helpdesk.URL == "" {
		return fmt.Errorf("--helpdesk-url is required")
	}

	maintenance := c.CheckConnections || c.InitDB || c.StatsOnly || c.Cleanup
	if !maintenance {
		if c.Job == "" {
			return fmt.Errorf("--job is required")
		}
		if !validJobs[c.Job] {
			return fmt.Errorf("unknown job %q (expected assigned, vip, daily, weekly or vip-message)", c.Job)
		}
		if c.Job == "vip-message" && c.MessageID <= 0 {
			return fmt.Errorf("--message-id is required for the vip-message job")
		}
	}

	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		return fmt.Errorf("invalid --report-timezone: %w", err)
	}

	return nil
}

// validateDSN performs basic validation on the MySQL DSN format
func (c *Config) validateDSN() error {
	dsn := c.Helpdesk.DSN

	// Basic format check: should contain @ and /
	if !strings.Contains(dsn, "@") || !strings.Contains(dsn, "/") {
		return fmt.Errorf("DSN must be in format 'user:password@tcp(host:port)/database?options'")
	}

	if strings.HasPrefix(dsn, "tcp://") {
		return fmt.Errorf("DSN should not include 'tcp://' scheme, use format: 'user:password@tcp(host:port)/database'")
	}

	return nil
}

// Location returns the configured report timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
