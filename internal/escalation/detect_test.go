package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicetel/support-escalator/internal/models"
)

var detectNow = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

func lastMessage(hoursAgo float64) *time.Time {
	t := detectNow.Add(-time.Duration(hoursAgo * float64(time.Hour)))
	return &t
}

func assignedPolicy() Policy {
	return Policy{
		ThresholdHours:  AssignedThresholdHours,
		RequireAssignee: true,
		CounterpartName: func(c models.Conversation) string { return "Agent" },
	}
}

func TestDetectOrdersMostOverdueFirst(t *testing.T) {
	id := int64(7)
	conversations := []models.Conversation{
		{ID: 1, Subject: "mid", Slug: "mid", Status: models.StatusOpen, AssignedToID: &id, LastUserMessageAt: lastMessage(30)},
		{ID: 2, Subject: "oldest", Slug: "oldest", Status: models.StatusOpen, AssignedToID: &id, LastUserMessageAt: lastMessage(72)},
		{ID: 3, Subject: "newest", Slug: "newest", Status: models.StatusOpen, AssignedToID: &id, LastUserMessageAt: lastMessage(25)},
	}

	tickets := Detect(detectNow, conversations, assignedPolicy())

	require.Len(t, tickets, 3)
	assert.Equal(t, "oldest", tickets[0].Slug)
	assert.Equal(t, "mid", tickets[1].Slug)
	assert.Equal(t, "newest", tickets[2].Slug)
}

func TestDetectThresholdIsStrict(t *testing.T) {
	id := int64(7)
	conversations := []models.Conversation{
		{ID: 1, Slug: "exactly-24h", Status: models.StatusOpen, AssignedToID: &id, LastUserMessageAt: lastMessage(24)},
		{ID: 2, Slug: "just-over", Status: models.StatusOpen, AssignedToID: &id, LastUserMessageAt: lastMessage(24.01)},
	}

	tickets := Detect(detectNow, conversations, assignedPolicy())

	require.Len(t, tickets, 1)
	assert.Equal(t, "just-over", tickets[0].Slug)
}

func TestDetectExcludesIneligibleConversations(t *testing.T) {
	id := int64(7)
	merged := int64(99)
	conversations := []models.Conversation{
		{ID: 1, Slug: "merged", Status: models.StatusOpen, AssignedToID: &id, MergedIntoID: &merged, LastUserMessageAt: lastMessage(48)},
		{ID: 2, Slug: "closed", Status: models.StatusClosed, AssignedToID: &id, LastUserMessageAt: lastMessage(48)},
		{ID: 3, Slug: "unassigned", Status: models.StatusOpen, LastUserMessageAt: lastMessage(48)},
		{ID: 4, Slug: "no-customer-message", Status: models.StatusOpen, AssignedToID: &id},
		{ID: 5, Slug: "overdue", Status: models.StatusOpen, AssignedToID: &id, LastUserMessageAt: lastMessage(48)},
	}

	tickets := Detect(detectNow, conversations, assignedPolicy())

	require.Len(t, tickets, 1)
	assert.Equal(t, "overdue", tickets[0].Slug)
}

func TestDetectVipRequiresUnassigned(t *testing.T) {
	id := int64(7)
	threshold := int64(10000)
	policy := Policy{
		ThresholdHours:    2,
		RequireAssignee:   false,
		VipThresholdCents: &threshold,
		CounterpartName:   func(c models.Conversation) string { return c.CustomerName },
	}

	conversations := []models.Conversation{
		{ID: 1, Slug: "claimed", Status: models.StatusOpen, AssignedToID: &id, LastUserMessageAt: lastMessage(5), CustomerValueCents: 20000},
		{ID: 2, Slug: "unclaimed", Status: models.StatusOpen, LastUserMessageAt: lastMessage(5), CustomerValueCents: 20000, CustomerName: "Big Spender"},
	}

	tickets := Detect(detectNow, conversations, policy)

	require.Len(t, tickets, 1)
	assert.Equal(t, "unclaimed", tickets[0].Slug)
	assert.Equal(t, "Big Spender", tickets[0].CounterpartName)
}

func TestDetectVipValueGate(t *testing.T) {
	threshold := int64(10000)
	policy := Policy{
		ThresholdHours:    2,
		RequireAssignee:   false,
		VipThresholdCents: &threshold,
	}

	conversations := []models.Conversation{
		{ID: 1, Slug: "below", Status: models.StatusOpen, LastUserMessageAt: lastMessage(5), CustomerValueCents: 9999},
		{ID: 2, Slug: "exactly-at", Status: models.StatusOpen, LastUserMessageAt: lastMessage(5), CustomerValueCents: 10000},
		{ID: 3, Slug: "above", Status: models.StatusOpen, LastUserMessageAt: lastMessage(5), CustomerValueCents: 50000},
	}

	tickets := Detect(detectNow, conversations, policy)

	require.Len(t, tickets, 2)
	assert.Equal(t, "exactly-at", tickets[0].Slug)
	assert.Equal(t, "above", tickets[1].Slug)

	// Dropping a customer's value below the threshold removes them from the
	// next sweep.
	conversations[1].CustomerValueCents = 500
	tickets = Detect(detectNow, conversations, policy)
	require.Len(t, tickets, 1)
	assert.Equal(t, "above", tickets[0].Slug)
}

func TestDetectSubHourThreshold(t *testing.T) {
	policy := Policy{ThresholdHours: 0.5, RequireAssignee: false}

	conversations := []models.Conversation{
		{ID: 1, Slug: "twenty-minutes", Status: models.StatusOpen, LastUserMessageAt: lastMessage(20.0 / 60)},
		{ID: 2, Slug: "forty-minutes", Status: models.StatusOpen, LastUserMessageAt: lastMessage(40.0 / 60)},
	}

	tickets := Detect(detectNow, conversations, policy)

	require.Len(t, tickets, 1)
	assert.Equal(t, "forty-minutes", tickets[0].Slug)
}
