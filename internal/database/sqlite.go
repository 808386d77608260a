package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/voicetel/support-escalator/internal/models"
)

// DB is the local SQLite delivery log. Every chat and email attempt is
// recorded here so operators can audit what was sent without digging
// through logs.
type DB struct {
	*sql.DB
}

func InitSQLite(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// Set pragmas for better performance
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}

func InitSchema(db *DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		mailbox_id INTEGER NOT NULL DEFAULT 0,
		channel TEXT NOT NULL,
		recipient TEXT,
		status TEXT NOT NULL,
		detail TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_job ON deliveries(job_type, created_at);
	CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status, created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Record inserts one delivery attempt. Failures here are the caller's to
// log; the delivery log is best-effort and never blocks a send.
func (db *DB) Record(d models.Delivery) error {
	query := `
		INSERT INTO deliveries (run_id, job_type, mailbox_id, channel, recipient, status, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, d.RunID, d.JobType, d.MailboxID, d.Channel, d.Recipient, d.Status, d.Detail)
	return err
}

// GetDeliveryStats returns statistics about recorded deliveries
func (db *DB) GetDeliveryStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	// Total deliveries
	var total int
	err := db.QueryRow("SELECT COUNT(*) FROM deliveries").Scan(&total)
	if err != nil {
		return nil, err
	}
	stats["total_deliveries"] = total

	// Deliveries by status
	statusQuery := `
		SELECT status, COUNT(*)
		FROM deliveries
		GROUP BY status
	`
	rows, err := db.Query(statusQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statusCounts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		statusCounts[status] = count
	}
	stats["by_status"] = statusCounts

	// Deliveries by job type
	jobQuery := `
		SELECT job_type, COUNT(*)
		FROM deliveries
		GROUP BY job_type
	`
	rows, err = db.Query(jobQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobCounts := make(map[string]int)
	for rows.Next() {
		var jobType string
		var count int
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, err
		}
		jobCounts[jobType] = count
	}
	stats["by_job"] = jobCounts

	// Deliveries by channel
	channelQuery := `
		SELECT channel, COUNT(*)
		FROM deliveries
		GROUP BY channel
	`
	rows, err = db.Query(channelQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channelCounts := make(map[string]int)
	for rows.Next() {
		var channel string
		var count int
		if err := rows.Scan(&channel, &count); err != nil {
			return nil, err
		}
		channelCounts[channel] = count
	}
	stats["by_channel"] = channelCounts

	// Sent in last 24 hours
	var last24h int
	err = db.QueryRow(`
		SELECT COUNT(*)
		FROM deliveries
		WHERE status = 'sent'
		AND created_at > datetime('now', '-24 hours')
	`).Scan(&last24h)
	if err != nil {
		return nil, err
	}
	stats["sent_last_24h"] = last24h

	// Failure rate over the last 7 days
	var sent7d, failed7d int
	err = db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM deliveries
		WHERE created_at > datetime('now', '-7 days')
	`).Scan(&sent7d, &failed7d)
	if err != nil {
		return nil, err
	}
	stats["sent_7d"] = sent7d
	stats["failed_7d"] = failed7d

	return stats, nil
}

// CleanupOldDeliveries removes old delivery records to prevent database bloat
func CleanupOldDeliveries(db *DB, retentionDays int) error {
	if retentionDays <= 0 {
		retentionDays = 90 // Default to 90 days
	}

	query := `
		DELETE FROM deliveries
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`

	result, err := db.Exec(query, retentionDays)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected > 0 {
		log.Printf("Cleaned up %d old delivery records", rowsAffected)
	}

	return nil
}

// VacuumDatabase performs SQLite VACUUM to reclaim disk space
func VacuumDatabase(db *DB) error {
	log.Printf("Performing database vacuum...")
	start := time.Now()

	_, err := db.Exec("VACUUM")
	if err != nil {
		return err
	}

	log.Printf("Database vacuum completed in %s", time.Since(start))
	return nil
}
