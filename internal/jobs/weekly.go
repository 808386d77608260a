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
	"github.com/voicetel/support-escalator/internal/slack"
)

const jobWeekly = "weekly"

// GenerateMailboxWeeklyReport reports per-agent reply counts for the
// previous calendar week (Sunday through Saturday in the configured report
// timezone) to the alert channel and the escalation recipients.
func (e *Engine) GenerateMailboxWeeklyReport(now time.Time) models.JobResult {
	mailbox, err := e.store.GetMailbox()
	if errors.Is(err, database.ErrNotFound) {
		return skipped(models.SkipNotConfigured)
	}
	if err != nil {
		return models.JobResult{FailedMailboxes: []models.MailboxFailure{mailboxFailure(nil, err)}}
	}

	channels := ResolveChannels(mailbox.SlackBotToken, mailbox.SlackAlertChannel, mailbox.EscalationEmails, e.cfg.Resend)
	if !channels.ChatEnabled && !channels.EmailEnabled {
		return skipped(models.SkipNotConfigured)
	}

	start, end := digest.LastWeekRange(now, e.cfg.Location())

	stats, err := e.store.MemberStats(start, end)
	if err != nil {
		e.log.LogError("weekly report aggregation failed", err, "mailbox", mailbox.Slug)
		return models.JobResult{FailedMailboxes: []models.MailboxFailure{mailboxFailure(mailbox, err)}}
	}

	if len(stats) == 0 {
		return skipped(models.SkipNoStats)
	}

	report := digest.BuildWeekly(stats)
	dateRange := digest.FormatDateRange(start, end)

	if channels.ChatEnabled {
		if err := e.sendWeeklyChat(mailbox, report, dateRange); err != nil {
			e.log.LogError("failed to send weekly chat report", err, "mailbox", mailbox.Slug)
		}
	}

	if channels.EmailEnabled {
		if err := e.sendWeeklyEmail(mailbox, channels.Recipients, report, dateRange); err != nil {
			e.log.LogError("failed to send weekly email report", err, "mailbox", mailbox.Slug)
		}
	}

	return models.JobResult{Success: true}
}

func (e *Engine) sendWeeklyChat(mailbox *models.Mailbox, report digest.Weekly, dateRange string) error {
	channel := mailbox.SlackAlertChannel

	mentionsByEmail, err := e.chat.UsersByEmail(mailbox.SlackBotToken)
	if err != nil {
		e.recordDelivery(jobWeekly, mailbox.ID, "slack", channel, "failed", err.Error())
		return err
	}

	memberLabel := func(m digest.Member) string {
		if id := mentionsByEmail[m.Email]; id != "" {
			return fmt.Sprintf("<@%s>", id)
		}
		return m.Name()
	}

	blocks := []slack.Block{
		slack.PlainSection(fmt.Sprintf("Last week in the %s mailbox:", mailbox.Name)),
	}

	if len(report.Active) > 0 {
		lines := make([]string, 0, len(report.Active))
		for _, m := range report.Active {
			lines = append(lines, fmt.Sprintf("• %s: %s", memberLabel(m), digest.FormatCount(m.ReplyCount)))
		}
		blocks = append(blocks,
			slack.Section("*Team members:*"),
			slack.Section(strings.Join(lines, "\n")),
		)
	}

	if len(report.Inactive) > 0 {
		names := make([]string, 0, len(report.Inactive))
		for _, m := range report.Inactive {
			names = append(names, memberLabel(m))
		}
		blocks = append(blocks, slack.Section(fmt.Sprintf("*No tickets answered:* %s", strings.Join(names, ", "))))
	}

	blocks = append(blocks, slack.Divider())

	if report.TotalReplies > 0 {
		people := "people"
		if len(report.Active) == 1 {
			people = "person"
		}
		blocks = append(blocks, slack.Section(fmt.Sprintf("*Total replies:*\n%s from %d %s",
			digest.FormatCount(report.TotalReplies), len(report.Active), people)))
	}

	if e.cfg.DryRun {
		e.log.Info("dry run: would post weekly report", "mailbox", mailbox.Slug, "active", len(report.Active), "inactive", len(report.Inactive))
		e.recordDelivery(jobWeekly, mailbox.ID, "slack", channel, "skipped", "dry run")
		return nil
	}

	if _, err := e.chat.PostMessage(mailbox.SlackBotToken, channel, dateRange, blocks); err != nil {
		e.recordDelivery(jobWeekly, mailbox.ID, "slack", channel, "failed", err.Error())
		return err
	}

	e.recordDelivery(jobWeekly, mailbox.ID, "slack", channel, "sent", dateRange)
	return nil
}

func (e *Engine) sendWeeklyEmail(mailbox *models.Mailbox, recipients []string, report digest.Weekly, dateRange string) error {
	recipientList := strings.Join(recipients, ",")

	active := make([]email.WeeklyMember, 0, len(report.Active))
	for _, m := range report.Active {
		active = append(active, email.WeeklyMember{Name: m.Name(), Count: digest.FormatCount(m.ReplyCount)})
	}
	inactive := make([]string, 0, len(report.Inactive))
	for _, m := range report.Inactive {
		inactive = append(inactive, m.Name())
	}

	people := "people"
	if len(report.Active) == 1 {
		people = "person"
	}

	html, err := email.RenderWeekly(email.WeeklyData{
		MailboxName:     mailbox.Name,
		DateRange:       dateRange,
		ActiveMembers:   active,
		InactiveMembers: inactive,
		TotalReplies:    digest.FormatCount(report.TotalReplies),
		ActiveSummary:   fmt.Sprintf("from %d %s", len(report.Active), people),
	})
	if err != nil {
		e.recordDelivery(jobWeekly, mailbox.ID, "email", recipientList, "failed", err.Error())
		return err
	}

	subject := fmt.Sprintf("Weekly summary for %s", mailbox.Name)

	if e.cfg.DryRun {
		e.log.Info("dry run: would send weekly report email", "mailbox", mailbox.Slug, "recipients", len(recipients))
		e.recordDelivery(jobWeekly, mailbox.ID, "email", recipientList, "skipped", "dry run")
		return nil
	}

	if err := e.email.Send(recipients, subject, html); err != nil {
		e.recordDelivery(jobWeekly, mailbox.ID, "email", recipientList, "failed", err.Error())
		return err
	}

	e.recordDelivery(jobWeekly, mailbox.ID, "email", recipientList, "sent", subject)
	return nil
}
