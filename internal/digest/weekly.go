package digest

import (
	"sort"

	"github.com/voicetel/support-escalator/internal/models"
)

// Member is one agent in the weekly report.
type Member struct {
	DisplayName string
	Email       string
	ReplyCount  int
}

// Name resolves the member's report label: display name, then email, then
// "Unknown".
func (m Member) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	if m.Email != "" {
		return m.Email
	}
	return "Unknown"
}

// Weekly partitions the week's member stats into active agents (ranked by
// reply count, descending) and inactive agents (zero replies).
type Weekly struct {
	Active       []Member
	Inactive     []Member
	TotalReplies int
}

// BuildWeekly folds per-agent reply counts into the partitioned, ranked
// weekly report structure shared by the chat and email renderings.
func BuildWeekly(stats []models.MemberStats) Weekly {
	var w Weekly
	for _, s := range stats {
		m := Member{DisplayName: s.DisplayName, Email: s.Email, ReplyCount: s.ReplyCount}
		if s.ReplyCount > 0 {
			w.Active = append(w.Active, m)
			w.TotalReplies += s.ReplyCount
		} else {
			w.Inactive = append(w.Inactive, m)
		}
	}

	sort.SliceStable(w.Active, func(i, j int) bool {
		return w.Active[i].ReplyCount > w.Active[j].ReplyCount
	})

	return w
}
