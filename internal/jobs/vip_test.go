package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicetel/support-escalator/internal/models"
)

func vipMailbox() models.Mailbox {
	return models.Mailbox{
		ID:               1,
		Name:             "Support",
		Slug:             "support",
		SlackBotToken:    "xoxb-test",
		VipChannelID:     "C0VIP",
		VipThreshold:     ptrInt64(100),
		VipExpectedHours: ptrFloat64(2),
		EscalationEmails: "oncall@example.com",
	}
}

func vipCandidate(slug string, hoursAgo float64, valueCents int64) models.Conversation {
	last := wednesday.Add(-time.Duration(hoursAgo * float64(time.Hour)))
	return models.Conversation{
		Subject:            "Need help",
		Slug:               slug,
		Status:             models.StatusOpen,
		LastUserMessageAt:  &last,
		CustomerName:       "Big Spender",
		CustomerValueCents: valueCents,
	}
}

func TestVipSkipsWithoutConfiguredMailboxes(t *testing.T) {
	engine := newTestEngine(&fakeStore{}, &fakeChat{}, &fakeEmail{}, nil)

	result := engine.CheckVipResponseTimes(wednesday)

	assert.True(t, result.Success)
	assert.Equal(t, models.SkipNotConfigured, result.Skipped)
}

func TestVipAlertsOverdueCustomers(t *testing.T) {
	store := &fakeStore{
		vipMailboxes: []models.Mailbox{vipMailbox()},
		vipCandidates: []models.Conversation{
			vipCandidate("waiting", 3, 20000),
			vipCandidate("fresh", 1, 20000),
			vipCandidate("too-small", 5, 500),
		},
	}
	chat := &fakeChat{}
	mail := &fakeEmail{}
	engine := newTestEngine(store, chat, mail, nil)

	result := engine.CheckVipResponseTimes(wednesday)

	assert.True(t, result.Success)
	assert.Empty(t, result.FailedMailboxes)

	require.Len(t, chat.posted, 1)
	assert.Equal(t, "C0VIP", chat.posted[0].channel)
	text := blocksText(chat.posted[0].blocks)
	assert.Contains(t, text, "1 VIP has been waiting over 2 hours")
	assert.Contains(t, text, "Big Spender")
	assert.Contains(t, text, "https://support.example.com/conversations?id=waiting")
	assert.NotContains(t, text, "fresh")
	assert.NotContains(t, text, "too-small")

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "VIP Response Time Alert for Support", mail.sent[0].subject)
}

func TestVipLeadPluralizes(t *testing.T) {
	assert.Equal(t, "1 VIP has been waiting over 1 hour", vipAlertLead(1, 1))
	assert.Equal(t, "3 VIPs have been waiting over 2 hours", vipAlertLead(3, 2))
	assert.Equal(t, "2 VIPs have been waiting over 0.5 hours", vipAlertLead(2, 0.5))
}

func TestVipRunsWeekends(t *testing.T) {
	store := &fakeStore{
		vipMailboxes:  []models.Mailbox{vipMailbox()},
		vipCandidates: []models.Conversation{vipCandidate("waiting", 3, 20000)},
	}
	chat := &fakeChat{}
	engine := newTestEngine(store, chat, &fakeEmail{}, nil)

	result := engine.CheckVipResponseTimes(saturday)

	assert.True(t, result.Success)
	assert.Empty(t, result.Skipped, "VIP sweeps run every day of the week")
	assert.Len(t, chat.posted, 1)
}

func TestVipFailureInOneMailboxDoesNotBlockOthers(t *testing.T) {
	broken := vipMailbox()
	broken.ID = 2
	broken.Slug = "broken"

	store := &fakeStore{
		vipMailboxes:  []models.Mailbox{vipMailbox(), broken},
		vipCandidates: []models.Conversation{vipCandidate("waiting", 3, 20000)},
	}
	chat := &fakeChat{}
	engine := newTestEngine(store, chat, &fakeEmail{}, nil)

	// The first mailbox's detection succeeds; poison the second by making
	// the candidate query fail after the first call.
	calls := 0
	store.vipErrAfter = func() error {
		calls++
		if calls > 1 {
			return errors.New("timeout")
		}
		return nil
	}

	result := engine.CheckVipResponseTimes(wednesday)

	assert.False(t, result.Success)
	require.Len(t, result.FailedMailboxes, 1)
	assert.Equal(t, "broken", result.FailedMailboxes[0].Slug)
	assert.Len(t, chat.posted, 1, "first mailbox still alerted")
}

func TestVipSkipsMailboxWithoutChannels(t *testing.T) {
	unconfigured := vipMailbox()
	unconfigured.SlackBotToken = ""
	unconfigured.EscalationEmails = ""

	store := &fakeStore{
		vipMailboxes:  []models.Mailbox{unconfigured},
		vipCandidates: []models.Conversation{vipCandidate("waiting", 3, 20000)},
	}
	chat := &fakeChat{}
	mail := &fakeEmail{}
	engine := newTestEngine(store, chat, mail, nil)

	result := engine.CheckVipResponseTimes(wednesday)

	assert.True(t, result.Success)
	assert.Empty(t, chat.posted)
	assert.Empty(t, mail.sent)
}
