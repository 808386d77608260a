package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voicetel/support-escalator/internal/database"
	"github.com/voicetel/support-escalator/internal/digest"
	"github.com/voicetel/support-escalator/internal/email"
	"github.com/voicetel/support-escalator/internal/models"
)

const jobDaily = "daily"

// GenerateMailboxDailyReport emails the trailing-24-hour metrics digest.
// An empty mailbox (zero open tickets) suppresses the whole send rather
// than reporting zeros.
func (e *Engine) GenerateMailboxDailyReport(now time.Time) models.JobResult {
	mailbox, err := e.store.GetMailbox()
	if errors.Is(err, database.ErrNotFound) {
		return skipped(models.SkipNotConfigured)
	}
	if err != nil {
		return models.JobResult{FailedMailboxes: []models.MailboxFailure{mailboxFailure(nil, err)}}
	}

	// The daily digest is email-only.
	channels := ResolveChannels("", "", mailbox.EscalationEmails, e.cfg.Resend)
	if !channels.EmailEnabled {
		return skipped(models.SkipNotConfigured)
	}

	open, err := e.store.OpenConversationSnapshots()
	if err != nil {
		e.log.LogError("daily report aggregation failed", err, "mailbox", mailbox.Slug)
		return models.JobResult{FailedMailboxes: []models.MailboxFailure{mailboxFailure(mailbox, err)}}
	}

	if len(open) == 0 {
		return skipped(models.SkipNoOpenTickets)
	}

	replies, err := e.store.StaffRepliesInWindow(now.Add(-24*time.Hour), now)
	if err != nil {
		e.log.LogError("daily report aggregation failed", err, "mailbox", mailbox.Slug)
		return models.JobResult{FailedMailboxes: []models.MailboxFailure{mailboxFailure(mailbox, err)}}
	}

	report := digest.BuildDaily(now, open, replies, vipThresholdCents(mailbox))

	subject := fmt.Sprintf("Daily summary for %s", mailbox.Name)
	recipientList := strings.Join(channels.Recipients, ",")

	html, err := email.RenderDaily(email.DailyData{
		MailboxName: mailbox.Name,
		Lines:       report.Lines(),
	})
	if err != nil {
		e.log.LogError("failed to render daily report", err, "mailbox", mailbox.Slug)
		e.recordDelivery(jobDaily, mailbox.ID, "email", recipientList, "failed", err.Error())
		return models.JobResult{Success: true}
	}

	if e.cfg.DryRun {
		e.log.Info("dry run: would send daily report", "mailbox", mailbox.Slug, "lines", len(report.Lines()))
		e.recordDelivery(jobDaily, mailbox.ID, "email", recipientList, "skipped", "dry run")
		return models.JobResult{Success: true}
	}

	if err := e.email.Send(channels.Recipients, subject, html); err != nil {
		// Delivery failures are invisible to the scheduler.
		e.log.LogError("failed to send daily report", err, "mailbox", mailbox.Slug)
		e.recordDelivery(jobDaily, mailbox.ID, "email", recipientList, "failed", err.Error())
		return models.JobResult{Success: true}
	}

	e.recordDelivery(jobDaily, mailbox.ID, "email", recipientList, "sent", subject)
	return models.JobResult{Success: true}
}
