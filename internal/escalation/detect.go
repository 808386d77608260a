// Package escalation decides which conversations are overdue. The assigned
// and VIP alerts are two parameterizations of one policy shape; rendering
// decisions such as the top-10 cut belong to the dispatcher, not here.
package escalation

import (
	"sort"
	"time"

	"github.com/voicetel/support-escalator/internal/models"
)

// AssignedThresholdHours is the fixed threshold for assigned-ticket alerts.
// Unlike the VIP hours this is not a per-mailbox setting.
const AssignedThresholdHours = 24

// Policy parameterizes overdue detection for one alert kind.
type Policy struct {
	// ThresholdHours is how long a conversation may wait for a staff reply
	// after the last customer message. Sub-hour values are allowed.
	ThresholdHours float64

	// RequireAssignee selects assigned (true) or unassigned (false)
	// conversations. VIP alerting targets tickets nobody has claimed.
	RequireAssignee bool

	// VipThresholdCents, when set, requires the customer's value to meet or
	// exceed it. nil disables the VIP gate entirely.
	VipThresholdCents *int64

	// CounterpartName resolves the human named in the alert entry: the
	// assignee for assigned alerts, the customer for VIP alerts.
	CounterpartName func(models.Conversation) string

	// CounterpartEmail, when set, resolves the counterpart's email so chat
	// renderings can @-mention them.
	CounterpartEmail func(models.Conversation) string
}

// Ticket is one overdue conversation, derived per invocation and never
// persisted.
type Ticket struct {
	Subject           string
	Slug              string
	CounterpartName   string
	CounterpartEmail  string
	LastUserMessageAt time.Time
}

// Detect applies the policy to candidate conversations and returns overdue
// tickets ordered most overdue first (ascending last-customer-message time).
// No cap is applied; the caller truncates at render time so the true total
// is preserved.
func Detect(now time.Time, conversations []models.Conversation, policy Policy) []Ticket {
	threshold := time.Duration(policy.ThresholdHours * float64(time.Hour))

	var tickets []Ticket
	for _, conv := range conversations {
		if conv.MergedIntoID != nil {
			continue
		}
		if conv.Status != models.StatusOpen {
			continue
		}
		if policy.RequireAssignee && conv.AssignedToID == nil {
			continue
		}
		if !policy.RequireAssignee && conv.AssignedToID != nil {
			continue
		}
		if conv.LastUserMessageAt == nil {
			continue
		}
		if now.Sub(*conv.LastUserMessageAt) <= threshold {
			continue
		}
		if policy.VipThresholdCents != nil && conv.CustomerValueCents < *policy.VipThresholdCents {
			continue
		}

		name := ""
		if policy.CounterpartName != nil {
			name = policy.CounterpartName(conv)
		}
		email := ""
		if policy.CounterpartEmail != nil {
			email = policy.CounterpartEmail(conv)
		}

		tickets = append(tickets, Ticket{
			Subject:           conv.Subject,
			Slug:              conv.Slug,
			CounterpartName:   name,
			CounterpartEmail:  email,
			LastUserMessageAt: *conv.LastUserMessageAt,
		})
	}

	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].LastUserMessageAt.Before(tickets[j].LastUserMessageAt)
	})

	return tickets
}
