package models

import "time"

// Conversation statuses as stored in the helpdesk database.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
	StatusSpam   = "spam"
)

// Mailbox is one support inbox and its escalation policy. Created and
// updated externally via the settings UI; read-only here.
type Mailbox struct {
	ID                 int64
	Name               string
	Slug               string
	SlackBotToken      string
	SlackAlertChannel  string
	VipChannelID       string
	VipThreshold       *int64   // dollars; nil disables VIP alerting
	VipExpectedHours   *float64 // nil disables the VIP response sweep
	EscalationEmails   string   // comma-separated, "" = none
	DisableTicketAlert bool     // disables the assigned-ticket response sweep
}

type Conversation struct {
	ID                int64
	Subject           string
	Slug              string
	Status            string
	AssignedToID      *int64
	MergedIntoID      *int64
	EmailFrom         string
	LastUserMessageAt *time.Time
	IsPrompt          bool

	// Joined from platform_customers when the query needs them.
	CustomerName       string
	CustomerValueCents int64
}

type MessageRole string

const (
	RoleUser        MessageRole = "user"
	RoleStaff       MessageRole = "staff"
	RoleAIAssistant MessageRole = "ai_assistant"
)

// ThreadState tracks the Slack thread lifecycle of a VIP message.
type ThreadState string

const (
	ThreadUnthreaded ThreadState = "unthreaded"
	ThreadPosted     ThreadState = "posted"
	ThreadUpdated    ThreadState = "updated"
)

type Message struct {
	ID             int64
	ConversationID int64
	Role           MessageRole
	Body           string
	CreatedAt      time.Time
	ResponseToID   *int64
	UserID         *int64
	SlackChannel   string
	SlackMessageTs string
	ThreadState    ThreadState
}

// PlatformCustomer associates a customer email with a monetary value used
// solely to decide VIP-ness.
type PlatformCustomer struct {
	Email      string
	Name       string
	ValueCents int64
}

type User struct {
	ID          int64
	DisplayName string
	Email       string
}

// MemberStats is one agent's reply count for a reporting window.
type MemberStats struct {
	ID          int64
	DisplayName string
	Email       string
	ReplyCount  int
}

// OpenTicket is a snapshot row for the daily digest.
type OpenTicket struct {
	LastUserMessageAt  *time.Time
	CustomerValueCents int64
}

// StaffReply is one staff message in a reporting window, joined to the
// customer message it answers (when the back-reference exists) and the
// customer's value.
type StaffReply struct {
	ConversationID     int64
	RepliedAt          time.Time
	InResponseToUserAt *time.Time
	CustomerValueCents int64
}

// SkipReason explains why a job produced no sends. Configuration skips and
// no-op conditions are deliberately distinct values.
type SkipReason string

const (
	SkipWeekend       SkipReason = "weekend"
	SkipDisabled      SkipReason = "disabled"
	SkipNoOverdue     SkipReason = "no_overdue"
	SkipNotConfigured SkipReason = "not_configured"
	SkipNoOpenTickets SkipReason = "no_open_tickets"
	SkipNoStats       SkipReason = "no_stats"
)

// MailboxFailure records a detection/aggregation failure for one mailbox
// without aborting the rest of the batch.
type MailboxFailure struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Error string `json:"error"`
}

// JobResult is the contract every sweep/report entry point returns to the
// scheduler. Delivery failures never show up here; they are logged and
// recorded in the delivery log only.
type JobResult struct {
	Success         bool
	Skipped         SkipReason
	FailedMailboxes []MailboxFailure
}

// Chat statuses for VipNotifyResult.
const (
	ChatSkipped   = "skipped"
	ChatNotPosted = "not_posted"
	ChatPosted    = "posted"
	ChatUpdated   = "updated"
)

// Email statuses for VipNotifyResult.
const (
	EmailSkipped = "skipped"
	EmailSent    = "sent"
	EmailFailed  = "failed"
)

// VipNotifyResult is the VIP message notifier's only return contract.
type VipNotifyResult struct {
	Chat   string
	Email  string
	Reason string // set when the message was ineligible (prompt, anonymous, not VIP)
}

// Delivery is one recorded chat/email attempt for the local delivery log.
type Delivery struct {
	RunID     string
	JobType   string
	MailboxID int64
	Channel   string // "slack" or "email"
	Recipient string
	Status    string // "sent", "failed" or "skipped"
	Detail    string
}

// RunStats summarizes one invocation for logging.
type RunStats struct {
	Job      string
	Sent     int
	Failed   int
	Skipped  int
	Duration time.Duration
}
