package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicetel/support-escalator/internal/models"
)

func TestDailyReportSkipsWithZeroOpenTickets(t *testing.T) {
	store := &fakeStore{mailbox: testMailbox()}
	mail := &fakeEmail{}
	engine := newTestEngine(store, &fakeChat{}, mail, nil)

	result := engine.GenerateMailboxDailyReport(wednesday)

	assert.True(t, result.Success)
	assert.Equal(t, models.SkipNoOpenTickets, result.Skipped)
	assert.Empty(t, mail.sent)
}

func TestDailyReportSkipsWithoutRecipients(t *testing.T) {
	mailbox := testMailbox()
	mailbox.EscalationEmails = ""
	store := &fakeStore{
		mailbox: mailbox,
		open:    []models.OpenTicket{{}},
	}
	mail := &fakeEmail{}
	engine := newTestEngine(store, &fakeChat{}, mail, nil)

	result := engine.GenerateMailboxDailyReport(wednesday)

	assert.True(t, result.Success)
	assert.Equal(t, models.SkipNotConfigured, result.Skipped)
	assert.Empty(t, mail.sent)
}

func TestDailyReportEmailsDigest(t *testing.T) {
	last := wednesday.Add(-6 * time.Hour)
	answeredAt := wednesday.Add(-time.Hour)
	store := &fakeStore{
		mailbox: testMailbox(),
		open: []models.OpenTicket{
			{LastUserMessageAt: &last, CustomerValueCents: 20000},
			{},
		},
		replies: []models.StaffReply{
			{ConversationID: 1, RepliedAt: answeredAt, InResponseToUserAt: &last},
		},
	}
	chat := &fakeChat{}
	mail := &fakeEmail{}
	engine := newTestEngine(store, chat, mail, nil)

	result := engine.GenerateMailboxDailyReport(wednesday)

	assert.True(t, result.Success)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, chat.posted, "the daily digest is email-only")

	require.Len(t, mail.sent, 1)
	assert.Equal(t, []string{"oncall@example.com"}, mail.sent[0].to)
	assert.Equal(t, "Daily summary for Support", mail.sent[0].subject)
	assert.Contains(t, mail.sent[0].html, "Open tickets: 2")
	assert.Contains(t, mail.sent[0].html, "Tickets answered: 1")
	assert.Contains(t, mail.sent[0].html, "Average reply time: 5h 0m")
}

func TestDailyReportSendFailureStaysSuccessful(t *testing.T) {
	store := &fakeStore{
		mailbox: testMailbox(),
		open:    []models.OpenTicket{{}},
	}
	mail := &fakeEmail{sendErr: errors.New("resend rejected the request")}
	engine := newTestEngine(store, &fakeChat{}, mail, nil)

	result := engine.GenerateMailboxDailyReport(wednesday)

	assert.True(t, result.Success)
	assert.Empty(t, result.FailedMailboxes)
}

func TestWeeklyReportSkipsWithoutStats(t *testing.T) {
	store := &fakeStore{mailbox: testMailbox()}
	chat := &fakeChat{}
	engine := newTestEngine(store, chat, &fakeEmail{}, nil)

	result := engine.GenerateMailboxWeeklyReport(wednesday)

	assert.True(t, result.Success)
	assert.Equal(t, models.SkipNoStats, result.Skipped)
	assert.Empty(t, chat.posted)
}

func TestWeeklyReportPostsAndEmails(t *testing.T) {
	store := &fakeStore{
		mailbox: testMailbox(),
		stats: []models.MemberStats{
			{ID: 1, DisplayName: "Alice", Email: "alice@example.com", ReplyCount: 10},
			{ID: 2, DisplayName: "Bob", Email: "bob@example.com", ReplyCount: 0},
		},
	}
	chat := &fakeChat{usersByEmail: map[string]string{"alice@example.com": "U0ALICE"}}
	mail := &fakeEmail{}
	engine := newTestEngine(store, chat, mail, nil)

	result := engine.GenerateMailboxWeeklyReport(wednesday)

	assert.True(t, result.Success)

	require.Len(t, chat.posted, 1)
	assert.Equal(t, "C0ALERTS", chat.posted[0].channel)
	// Wednesday 2026-08-26 reports the week of Sunday the 16th.
	assert.Equal(t, "Week of 2026-08-16 to 2026-08-22", chat.posted[0].fallback)

	text := blocksText(chat.posted[0].blocks)
	assert.Contains(t, text, "Last week in the Support mailbox:")
	assert.Contains(t, text, "<@U0ALICE>: 10")
	assert.Contains(t, text, "*No tickets answered:* Bob")
	assert.Contains(t, text, "10 from 1 person")

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "Weekly summary for Support", mail.sent[0].subject)
	assert.Contains(t, mail.sent[0].html, "Alice")
	assert.Contains(t, mail.sent[0].html, "Bob")
}

func TestWeeklyReportAggregationFailure(t *testing.T) {
	store := &fakeStore{
		mailbox:  testMailbox(),
		statsErr: errors.New("query timeout"),
	}
	engine := newTestEngine(store, &fakeChat{}, &fakeEmail{}, nil)

	result := engine.GenerateMailboxWeeklyReport(wednesday)

	assert.False(t, result.Success)
	require.Len(t, result.FailedMailboxes, 1)
	assert.Equal(t, "support", result.FailedMailboxes[0].Slug)
}

func TestWeeklyReportChatFailureStillEmails(t *testing.T) {
	store := &fakeStore{
		mailbox: testMailbox(),
		stats:   []models.MemberStats{{ID: 1, DisplayName: "Alice", ReplyCount: 3}},
	}
	chat := &fakeChat{postErr: errors.New("channel archived")}
	mail := &fakeEmail{}
	engine := newTestEngine(store, chat, mail, nil)

	result := engine.GenerateMailboxWeeklyReport(wednesday)

	assert.True(t, result.Success)
	require.Len(t, mail.sent, 1)
}
