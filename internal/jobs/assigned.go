package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voicetel/support-escalator/internal/database"
	"github.com/voicetel/support-escalator/internal/email"
	"github.com/voicetel/support-escalator/internal/escalation"
	"github.com/voicetel/support-escalator/internal/models"
	"github.com/voicetel/support-escalator/internal/slack"
)

// Rendering cap: detection keeps the full sequence, alerts list at most
// this many entries plus an "(and N more)" trailer.
const maxAlertEntries = 10

const jobAssigned = "assigned"

// CheckAssignedTicketResponseTimes alerts on open assigned conversations
// whose last customer message is more than 24 hours old. On weekends the
// whole check is skipped before any query runs.
func (e *Engine) CheckAssignedTicketResponseTimes(now time.Time) models.JobResult {
	if isWeekend(now.In(e.cfg.Location())) {
		return skipped(models.SkipWeekend)
	}

	mailbox, err := e.store.GetMailbox()
	if errors.Is(err, database.ErrNotFound) {
		return skipped(models.SkipNotConfigured)
	}
	if err != nil {
		return models.JobResult{FailedMailboxes: []models.MailboxFailure{mailboxFailure(nil, err)}}
	}

	if mailbox.DisableTicketAlert {
		return skipped(models.SkipDisabled)
	}

	channels := ResolveChannels(mailbox.SlackBotToken, mailbox.SlackAlertChannel, mailbox.EscalationEmails, e.cfg.Resend)
	if !channels.ChatEnabled && !channels.EmailEnabled {
		return skipped(models.SkipNotConfigured)
	}

	// Detection boundary: a query failure here is recorded per-mailbox
	// instead of crashing the job.
	tickets, err := e.detectOverdueAssigned(now)
	if err != nil {
		e.log.LogError("assigned ticket detection failed", err, "mailbox", mailbox.Slug)
		return models.JobResult{FailedMailboxes: []models.MailboxFailure{mailboxFailure(mailbox, err)}}
	}

	if len(tickets) == 0 {
		return skipped(models.SkipNoOverdue)
	}

	heading := fmt.Sprintf("Assigned Ticket Response Time Alert for %s", mailbox.Name)
	lead := fmt.Sprintf("%d assigned tickets have been waiting over 24 hours without a response", len(tickets))

	if channels.ChatEnabled {
		if err := e.sendAlertChat(jobAssigned, mailbox, mailbox.SlackAlertChannel, heading, lead, tickets, now, true); err != nil {
			e.log.LogError("failed to send assigned ticket chat alert", err, "mailbox", mailbox.Slug)
		}
	}

	if channels.EmailEnabled {
		if err := e.sendAlertEmail(jobAssigned, mailbox, channels.Recipients, heading, lead, "Assigned to ", tickets, now); err != nil {
			e.log.LogError("failed to send assigned ticket email alert", err, "mailbox", mailbox.Slug)
		}
	}

	return models.JobResult{Success: true}
}

func (e *Engine) detectOverdueAssigned(now time.Time) ([]escalation.Ticket, error) {
	users, err := e.store.ListUsers()
	if err != nil {
		return nil, err
	}
	usersByID := make(map[int64]models.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	conversations, err := e.store.OpenAssignedConversations()
	if err != nil {
		return nil, err
	}

	policy := escalation.Policy{
		ThresholdHours:  escalation.AssignedThresholdHours,
		RequireAssignee: true,
		CounterpartName: func(c models.Conversation) string {
			u := usersByID[*c.AssignedToID]
			if u.DisplayName != "" {
				return u.DisplayName
			}
			if u.Email != "" {
				return u.Email
			}
			return "Unknown"
		},
		CounterpartEmail: func(c models.Conversation) string {
			return usersByID[*c.AssignedToID].Email
		},
	}

	return escalation.Detect(now, conversations, policy), nil
}

// sendAlertChat renders and posts an overdue alert, with the top-10 cut,
// inside its own failure boundary. The returned error is for logging only;
// callers never propagate it.
func (e *Engine) sendAlertChat(jobType string, mailbox *models.Mailbox, channel, heading, lead string, tickets []escalation.Ticket, now time.Time, mention bool) error {
	mentionsByEmail := map[string]string{}
	if mention {
		byEmail, err := e.chat.UsersByEmail(mailbox.SlackBotToken)
		if err != nil {
			e.recordDelivery(jobType, mailbox.ID, "slack", channel, "failed", err.Error())
			return err
		}
		mentionsByEmail = byEmail
	}

	lines := []string{fmt.Sprintf("🚨 *%s*\n", lead)}
	for _, t := range truncate(tickets) {
		name := t.CounterpartName
		if id := mentionsByEmail[t.CounterpartEmail]; id != "" {
			name = fmt.Sprintf("<@%s>", id)
		}
		lines = append(lines, fmt.Sprintf("• <%s|%s> (Assigned to %s, %s since last reply)",
			e.conversationURL(t.Slug),
			subjectLabel(t.Subject),
			name,
			escalation.FormatDuration(t.LastUserMessageAt, now),
		))
	}
	if more := len(tickets) - maxAlertEntries; more > 0 {
		lines = append(lines, fmt.Sprintf("(and %d more)", more))
	}

	blocks := []slack.Block{slack.Section(strings.Join(lines, "\n"))}

	if e.cfg.DryRun {
		e.log.Info("dry run: would post chat alert", "job", jobType, "channel", channel, "overdue", len(tickets))
		e.recordDelivery(jobType, mailbox.ID, "slack", channel, "skipped", "dry run")
		return nil
	}

	if _, err := e.chat.PostMessage(mailbox.SlackBotToken, channel, heading, blocks); err != nil {
		e.recordDelivery(jobType, mailbox.ID, "slack", channel, "failed", err.Error())
		return err
	}

	e.recordDelivery(jobType, mailbox.ID, "slack", channel, "sent", lead)
	return nil
}

// sendAlertEmail renders and sends the email variant of an overdue alert
// inside its own failure boundary, independent of the chat attempt.
func (e *Engine) sendAlertEmail(jobType string, mailbox *models.Mailbox, recipients []string, heading, lead, metaPrefix string, tickets []escalation.Ticket, now time.Time) error {
	items := make([]email.TicketItem, 0, maxAlertEntries)
	for _, t := range truncate(tickets) {
		items = append(items, email.TicketItem{
			Subject: subjectLabel(t.Subject),
			URL:     e.conversationURL(t.Slug),
			Meta:    fmt.Sprintf("%s%s, %s since last reply", metaPrefix, t.CounterpartName, escalation.FormatDuration(t.LastUserMessageAt, now)),
		})
	}

	moreCount := 0
	if len(tickets) > maxAlertEntries {
		moreCount = len(tickets) - maxAlertEntries
	}

	html, err := email.RenderAlert(email.AlertData{
		Heading:   heading,
		Lead:      lead,
		Tickets:   items,
		MoreCount: moreCount,
	})
	if err != nil {
		e.recordDelivery(jobType, mailbox.ID, "email", strings.Join(recipients, ","), "failed", err.Error())
		return err
	}

	if e.cfg.DryRun {
		e.log.Info("dry run: would send email alert", "job", jobType, "recipients", len(recipients), "overdue", len(tickets))
		e.recordDelivery(jobType, mailbox.ID, "email", strings.Join(recipients, ","), "skipped", "dry run")
		return nil
	}

	if err := e.email.Send(recipients, heading, html); err != nil {
		e.recordDelivery(jobType, mailbox.ID, "email", strings.Join(recipients, ","), "failed", err.Error())
		return err
	}

	e.recordDelivery(jobType, mailbox.ID, "email", strings.Join(recipients, ","), "sent", lead)
	return nil
}

func truncate(tickets []escalation.Ticket) []escalation.Ticket {
	if len(tickets) > maxAlertEntries {
		return tickets[:maxAlertEntries]
	}
	return tickets
}
