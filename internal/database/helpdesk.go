package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/voicetel/support-escalator/internal/config"
	"github.com/voicetel/support-escalator/internal/models"
)

// ErrNotFound is returned when a lookup by id matches no row. Callers use
// it to distinguish permanent failures from transient ones.
var ErrNotFound = errors.New("not found")

// Store reads the helpdesk database. The only write it performs is
// recording the Slack thread handle on a message after a VIP post.
type Store struct {
	db *sql.DB
}

func ConnectHelpdesk(cfg config.HelpdeskConfig) (*Store, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const mailboxColumns = `
	m.id,
	m.name,
	m.slug,
	COALESCE(m.slack_bot_token, ''),
	COALESCE(m.slack_alert_channel, ''),
	COALESCE(m.vip_channel_id, ''),
	m.vip_threshold,
	m.vip_expected_response_hours,
	COALESCE(m.email_escalation_recipients, ''),
	m.disable_ticket_response_time_alerts
`

// GetMailbox returns the mailbox. The helpdesk is single-tenant for the
// non-VIP jobs, matching the settings screens that edit one inbox.
func (s *Store) GetMailbox() (*models.Mailbox, error) {
	query := `SELECT ` + mailboxColumns + ` FROM mailboxes m ORDER BY m.id LIMIT 1`

	m, err := scanMailbox(s.db.QueryRow(query))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return m, nil
}

// ListVipMailboxes returns every mailbox with VIP alerting fully
// configured (both a threshold and expected response hours).
func (s *Store) ListVipMailboxes() ([]models.Mailbox, error) {
	query := `
		SELECT ` + mailboxColumns + `
		FROM mailboxes m
		WHERE m.vip_threshold IS NOT NULL
			AND m.vip_expected_response_hours IS NOT NULL
		ORDER BY m.id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var mailboxes []models.Mailbox
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		mailboxes = append(mailboxes, *m)
	}
	return mailboxes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMailbox(row rowScanner) (*models.Mailbox, error) {
	var m models.Mailbox
	var vipThreshold sql.NullInt64
	var vipHours sql.NullFloat64

	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Slug,
		&m.SlackBotToken,
		&m.SlackAlertChannel,
		&m.VipChannelID,
		&vipThreshold,
		&vipHours,
		&m.EscalationEmails,
		&m.DisableTicketAlert,
	)
	if err != nil {
		return nil, err
	}
	if vipThreshold.Valid {
		m.VipThreshold = &vipThreshold.Int64
	}
	if vipHours.Valid {
		m.VipExpectedHours = &vipHours.Float64
	}
	return &m, nil
}

// OpenAssignedConversations returns open, non-merged conversations with an
// assignee. The 24-hour threshold is applied by the detector, not here.
func (s *Store) OpenAssignedConversations() ([]models.Conversation, error) {
	query := `
		SELECT
			c.id,
			COALESCE(c.subject, ''),
			c.slug,
			c.status,
			c.assigned_to_id,
			c.merged_into_id,
			COALESCE(c.email_from, ''),
			c.last_user_message_at
		FROM conversations c
		WHERE c.status = 'open'
			AND c.merged_into_id IS NULL
			AND c.assigned_to_id IS NOT NULL
			AND c.last_user_message_at IS NOT NULL
		ORDER BY c.last_user_message_at ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return scanConversations(rows, false)
}

// OpenUnassignedVipCandidates returns open, non-merged, unassigned
// conversations joined to their customer's value record. Conversations
// without a value record are excluded; they can never be VIP.
func (s *Store) OpenUnassignedVipCandidates() ([]models.Conversation, error) {
	query := `
		SELECT
			c.id,
			COALESCE(c.subject, ''),
			c.slug,
			c.status,
			c.assigned_to_id,
			c.merged_into_id,
			COALESCE(c.email_from, ''),
			c.last_user_message_at,
			COALESCE(pc.name, ''),
			CAST(pc.value AS SIGNED)
		FROM conversations c
		INNER JOIN platform_customers pc ON c.email_from = pc.email
		WHERE c.status = 'open'
			AND c.merged_into_id IS NULL
			AND c.assigned_to_id IS NULL
			AND c.last_user_message_at IS NOT NULL
		ORDER BY c.last_user_message_at ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return scanConversations(rows, true)
}

func scanConversations(rows *sql.Rows, withCustomer bool) ([]models.Conversation, error) {
	var conversations []models.Conversation
	for rows.Next() {
		var c models.Conversation
		var assignedTo, mergedInto sql.NullInt64
		var lastUserAt sql.NullTime

		dest := []any{
			&c.ID,
			&c.Subject,
			&c.Slug,
			&c.Status,
			&assignedTo,
			&mergedInto,
			&c.EmailFrom,
			&lastUserAt,
		}
		if withCustomer {
			dest = append(dest, &c.CustomerName, &c.CustomerValueCents)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if assignedTo.Valid {
			c.AssignedToID = &assignedTo.Int64
		}
		if mergedInto.Valid {
			c.MergedIntoID = &mergedInto.Int64
		}
		if lastUserAt.Valid {
			t := lastUserAt.Time
			c.LastUserMessageAt = &t
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// GetConversation resolves a conversation by id.
func (s *Store) GetConversation(id int64) (*models.Conversation, error) {
	query := `
		SELECT
			c.id,
			COALESCE(c.subject, ''),
			c.slug,
			c.status,
			c.assigned_to_id,
			c.merged_into_id,
			COALESCE(c.email_from, ''),
			c.last_user_message_at,
			c.is_prompt
		FROM conversations c
		WHERE c.id = ?
	`

	var c models.Conversation
	var assignedTo, mergedInto sql.NullInt64
	var lastUserAt sql.NullTime

	err := s.db.QueryRow(query, id).Scan(
		&c.ID,
		&c.Subject,
		&c.Slug,
		&c.Status,
		&assignedTo,
		&mergedInto,
		&c.EmailFrom,
		&lastUserAt,
		&c.IsPrompt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if assignedTo.Valid {
		c.AssignedToID = &assignedTo.Int64
	}
	if mergedInto.Valid {
		c.MergedIntoID = &mergedInto.Int64
	}
	if lastUserAt.Valid {
		t := lastUserAt.Time
		c.LastUserMessageAt = &t
	}
	return &c, nil
}

// GetMessage resolves a message by id.
func (s *Store) GetMessage(id int64) (*models.Message, error) {
	query := `
		SELECT
			m.id,
			m.conversation_id,
			m.role,
			COALESCE(m.body, ''),
			m.created_at,
			m.response_to_id,
			m.user_id,
			COALESCE(m.slack_channel, ''),
			COALESCE(m.slack_message_ts, ''),
			COALESCE(m.thread_state, 'unthreaded')
		FROM messages m
		WHERE m.id = ?
	`

	var m models.Message
	var responseTo, userID sql.NullInt64

	err := s.db.QueryRow(query, id).Scan(
		&m.ID,
		&m.ConversationID,
		&m.Role,
		&m.Body,
		&m.CreatedAt,
		&responseTo,
		&userID,
		&m.SlackChannel,
		&m.SlackMessageTs,
		&m.ThreadState,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if responseTo.Valid {
		m.ResponseToID = &responseTo.Int64
	}
	if userID.Valid {
		m.UserID = &userID.Int64
	}
	return &m, nil
}

// GetPlatformCustomer returns the value record for a customer email, or
// nil when none exists.
func (s *Store) GetPlatformCustomer(email string) (*models.PlatformCustomer, error) {
	query := `
		SELECT pc.email, COALESCE(pc.name, ''), CAST(pc.value AS SIGNED)
		FROM platform_customers pc
		WHERE pc.email = ?
	`

	var pc models.PlatformCustomer
	err := s.db.QueryRow(query, email).Scan(&pc.Email, &pc.Name, &pc.ValueCents)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &pc, nil
}

// GetUser returns an agent's profile, or nil when the id is unknown.
func (s *Store) GetUser(id int64) (*models.User, error) {
	query := `
		SELECT u.id, COALESCE(u.display_name, ''), COALESCE(u.email, '')
		FROM users u
		WHERE u.id = ?
	`

	var u models.User
	err := s.db.QueryRow(query, id).Scan(&u.ID, &u.DisplayName, &u.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &u, nil
}

// ListUsers returns all agent profiles for assignee name resolution.
func (s *Store) ListUsers() ([]models.User, error) {
	query := `
		SELECT u.id, COALESCE(u.display_name, ''), COALESCE(u.email, '')
		FROM users u
		ORDER BY u.id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Email); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetMessageThread persists the Slack thread handle after posting a new
// VIP message and marks the message posted.
func (s *Store) SetMessageThread(messageID int64, channel, ts string) error {
	query := `
		UPDATE messages
		SET slack_channel = ?, slack_message_ts = ?, thread_state = 'posted'
		WHERE id = ?
	`

	if _, err := s.db.Exec(query, channel, ts, messageID); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	return nil
}

// MarkThreadUpdated records that the thread rooted at this message has been
// edited in place after a staff reply.
func (s *Store) MarkThreadUpdated(messageID int64) error {
	query := `UPDATE messages SET thread_state = 'updated' WHERE id = ?`

	if _, err := s.db.Exec(query, messageID); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	return nil
}

// OpenConversationSnapshots returns the open, non-merged conversations with
// their customers' values for the daily digest.
func (s *Store) OpenConversationSnapshots() ([]models.OpenTicket, error) {
	query := `
		SELECT
			c.last_user_message_at,
			COALESCE(CAST(pc.value AS SIGNED), 0)
		FROM conversations c
		LEFT JOIN platform_customers pc ON c.email_from = pc.email
		WHERE c.status = 'open'
			AND c.merged_into_id IS NULL
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var tickets []models.OpenTicket
	for rows.Next() {
		var t models.OpenTicket
		var lastUserAt sql.NullTime
		if err := rows.Scan(&lastUserAt, &t.CustomerValueCents); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if lastUserAt.Valid {
			at := lastUserAt.Time
			t.LastUserMessageAt = &at
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// StaffRepliesInWindow returns staff messages created in [start, end),
// joined to the customer message each one answers (when the back-reference
// exists and points at a customer message) and the customer's value.
func (s *Store) StaffRepliesInWindow(start, end time.Time) ([]models.StaffReply, error) {
	query := `
		SELECT
			m.conversation_id,
			m.created_at,
			um.created_at,
			COALESCE(CAST(pc.value AS SIGNED), 0)
		FROM messages m
		INNER JOIN conversations c ON m.conversation_id = c.id
		LEFT JOIN messages um ON m.response_to_id = um.id AND um.role = 'user'
		LEFT JOIN platform_customers pc ON c.email_from = pc.email
		WHERE m.role = 'staff'
			AND m.created_at >= ?
			AND m.created_at < ?
			AND c.merged_into_id IS NULL
	`

	rows, err := s.db.Query(query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var replies []models.StaffReply
	for rows.Next() {
		var r models.StaffReply
		var userAt sql.NullTime
		if err := rows.Scan(&r.ConversationID, &r.RepliedAt, &userAt, &r.CustomerValueCents); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if userAt.Valid {
			at := userAt.Time
			r.InResponseToUserAt = &at
		}
		replies = append(replies, r)
	}
	return replies, rows.Err()
}

// MemberStats returns one row per agent with the reply count for the
// window. Agents with no replies appear with a zero count.
func (s *Store) MemberStats(start, end time.Time) ([]models.MemberStats, error) {
	query := `
		SELECT
			u.id,
			COALESCE(u.display_name, ''),
			COALESCE(u.email, ''),
			COUNT(m.id)
		FROM users u
		LEFT JOIN messages m ON m.user_id = u.id
			AND m.role = 'staff'
			AND m.created_at >= ?
			AND m.created_at < ?
		GROUP BY u.id, u.display_name, u.email
		ORDER BY u.id
	`

	rows, err := s.db.Query(query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var stats []models.MemberStats
	for rows.Next() {
		var st models.MemberStats
		if err := rows.Scan(&st.ID, &st.DisplayName, &st.Email, &st.ReplyCount); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
