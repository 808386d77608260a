// Package jobs holds the escalation and reporting entry points invoked by
// the external scheduler: the assigned-ticket sweep, the VIP response
// sweep, the daily and weekly reports, and the per-message VIP notifier.
package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voicetel/support-escalator/internal/config"
	"github.com/voicetel/support-escalator/internal/logging"
	"github.com/voicetel/support-escalator/internal/models"
	"github.com/voicetel/support-escalator/internal/slack"
)

// Store is the helpdesk data source.
type Store interface {
	GetMailbox() (*models.Mailbox, error)
	ListVipMailboxes() ([]models.Mailbox, error)
	OpenAssignedConversations() ([]models.Conversation, error)
	OpenUnassignedVipCandidates() ([]models.Conversation, error)
	GetConversation(id int64) (*models.Conversation, error)
	GetMessage(id int64) (*models.Message, error)
	GetPlatformCustomer(email string) (*models.PlatformCustomer, error)
	GetUser(id int64) (*models.User, error)
	ListUsers() ([]models.User, error)
	SetMessageThread(messageID int64, channel, ts string) error
	MarkThreadUpdated(messageID int64) error
	OpenConversationSnapshots() ([]models.OpenTicket, error)
	StaffRepliesInWindow(start, end time.Time) ([]models.StaffReply, error)
	MemberStats(start, end time.Time) ([]models.MemberStats, error)
}

// ChatClient is the Slack Web API surface the jobs need.
type ChatClient interface {
	PostMessage(token, channel, fallback string, blocks []slack.Block) (string, error)
	UpdateMessage(token, channel, ts, fallback string, blocks []slack.Block) error
	UsersByEmail(token string) (map[string]string, error)
}

// EmailSender delivers one rendered email.
type EmailSender interface {
	Send(to []string, subject, html string) error
}

// DeliveryLog records send attempts for the local audit trail. Recording is
// best-effort; failures are logged and never block a send.
type DeliveryLog interface {
	Record(d models.Delivery) error
}

type Engine struct {
	store      Store
	chat       ChatClient
	email      EmailSender
	deliveries DeliveryLog
	cfg        *config.Config
	log        *logging.Logger
	runID      string
	started    time.Time

	// Delivery outcome counters for the run summary.
	sent    int
	failed  int
	skipped int
}

func New(store Store, chat ChatClient, email EmailSender, deliveries DeliveryLog, cfg *config.Config, log *logging.Logger) *Engine {
	runID := uuid.NewString()
	return &Engine{
		store:      store,
		chat:       chat,
		email:      email,
		deliveries: deliveries,
		cfg:        cfg,
		log:        log.With("run_id", runID),
		runID:      runID,
		started:    time.Now(),
	}
}

// RunStats summarizes the delivery attempts made since the engine was
// created.
func (e *Engine) RunStats(job string) models.RunStats {
	return models.RunStats{
		Job:      job,
		Sent:     e.sent,
		Failed:   e.failed,
		Skipped:  e.skipped,
		Duration: time.Since(e.started),
	}
}

// NonRetriableError marks a permanent failure: the referenced entity does
// not exist and retrying cannot help. The scheduler must not retry these.
type NonRetriableError struct {
	Err error
}

func (e *NonRetriableError) Error() string {
	return fmt.Sprintf("non-retriable: %v", e.Err)
}

func (e *NonRetriableError) Unwrap() error {
	return e.Err
}

func nonRetriable(err error) error {
	return &NonRetriableError{Err: err}
}

// IsNonRetriable reports whether err is a permanent failure.
func IsNonRetriable(err error) bool {
	var nr *NonRetriableError
	return errors.As(err, &nr)
}

func skipped(reason models.SkipReason) models.JobResult {
	return models.JobResult{Success: true, Skipped: reason}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (e *Engine) conversationURL(slug string) string {
	return fmt.Sprintf("%s/conversations?id=%s", strings.TrimRight(e.cfg.Helpdesk.URL, "/"), slug)
}

var subjectSanitizer = strings.NewReplacer("|", "", "<", "", ">", "")

// subjectLabel strips the characters Slack link labels can't contain and
// falls back to "No subject".
func subjectLabel(subject string) string {
	s := strings.TrimSpace(subjectSanitizer.Replace(subject))
	if s == "" {
		return "No subject"
	}
	return s
}

// vipThresholdCents converts the mailbox's dollar threshold into the minor
// units the customer value records use. nil when VIP alerting is disabled.
func vipThresholdCents(m *models.Mailbox) *int64 {
	if m.VipThreshold == nil {
		return nil
	}
	cents := *m.VipThreshold * 100
	return &cents
}

func (e *Engine) recordDelivery(jobType string, mailboxID int64, channel, recipient, status, detail string) {
	switch status {
	case "sent":
		e.sent++
	case "failed":
		e.failed++
	case "skipped":
		e.skipped++
	}

	if e.deliveries == nil {
		return
	}
	err := e.deliveries.Record(models.Delivery{
		RunID:     e.runID,
		JobType:   jobType,
		MailboxID: mailboxID,
		Channel:   channel,
		Recipient: recipient,
		Status:    status,
		Detail:    detail,
	})
	if err != nil {
		e.log.Warn("failed to record delivery", "error", err.Error(), "job", jobType, "channel", channel)
	}
}

func mailboxFailure(m *models.Mailbox, err error) models.MailboxFailure {
	f := models.MailboxFailure{Error: err.Error()}
	if m != nil {
		f.ID = m.ID
		f.Name = m.Name
		f.Slug = m.Slug
	}
	return f
}
