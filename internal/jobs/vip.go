package jobs

import (
	"fmt"
	"strconv"
	"time"

	"github.com/voicetel/support-escalator/internal/escalation"
	"github.com/voicetel/support-escalator/internal/models"
)

const jobVip = "vip"

// CheckVipResponseTimes sweeps every mailbox with VIP alerting configured
// and alerts on unclaimed conversations from VIP customers that have waited
// longer than the mailbox's expected response hours. A failure in one
// mailbox is recorded and never blocks the others.
func (e *Engine) CheckVipResponseTimes(now time.Time) models.JobResult {
	mailboxes, err := e.store.ListVipMailboxes()
	if err != nil {
		return models.JobResult{FailedMailboxes: []models.MailboxFailure{mailboxFailure(nil, err)}}
	}

	if len(mailboxes) == 0 {
		return skipped(models.SkipNotConfigured)
	}

	var failed []models.MailboxFailure

	for i := range mailboxes {
		mailbox := &mailboxes[i]

		channels := ResolveChannels(mailbox.SlackBotToken, mailbox.VipChannelID, mailbox.EscalationEmails, e.cfg.Resend)
		if !channels.ChatEnabled && !channels.EmailEnabled {
			e.log.Verbose("vip check: no channels configured", "mailbox", mailbox.Slug)
			continue
		}

		tickets, err := e.detectOverdueVip(now, mailbox)
		if err != nil {
			e.log.LogError("vip detection failed", err, "mailbox", mailbox.Slug)
			failed = append(failed, mailboxFailure(mailbox, err))
			continue
		}

		if len(tickets) == 0 {
			e.log.Verbose("vip check: nothing overdue", "mailbox", mailbox.Slug)
			continue
		}

		heading := fmt.Sprintf("VIP Response Time Alert for %s", mailbox.Name)
		lead := vipAlertLead(len(tickets), *mailbox.VipExpectedHours)

		if channels.ChatEnabled {
			if err := e.sendAlertChat(jobVip, mailbox, mailbox.VipChannelID, heading, lead, tickets, now, false); err != nil {
				e.log.LogError("failed to send vip chat alert", err, "mailbox", mailbox.Slug)
			}
		}

		if channels.EmailEnabled {
			if err := e.sendAlertEmail(jobVip, mailbox, channels.Recipients, heading, lead, "", tickets, now); err != nil {
				e.log.LogError("failed to send vip email alert", err, "mailbox", mailbox.Slug)
			}
		}
	}

	return models.JobResult{Success: len(failed) == 0, FailedMailboxes: failed}
}

func (e *Engine) detectOverdueVip(now time.Time, mailbox *models.Mailbox) ([]escalation.Ticket, error) {
	conversations, err := e.store.OpenUnassignedVipCandidates()
	if err != nil {
		return nil, err
	}

	policy := escalation.Policy{
		ThresholdHours:    *mailbox.VipExpectedHours,
		RequireAssignee:   false,
		VipThresholdCents: vipThresholdCents(mailbox),
		CounterpartName: func(c models.Conversation) string {
			if c.CustomerName != "" {
				return c.CustomerName
			}
			return "Unknown Customer"
		},
	}

	return escalation.Detect(now, conversations, policy), nil
}

func vipAlertLead(count int, expectedHours float64) string {
	noun, verb := "VIPs", "have"
	if count == 1 {
		noun, verb = "VIP", "has"
	}
	hourNoun := "hours"
	if expectedHours == 1 {
		hourNoun = "hour"
	}
	return fmt.Sprintf("%d %s %s been waiting over %s %s",
		count, noun, verb, strconv.FormatFloat(expectedHours, 'f', -1, 64), hourNoun)
}
