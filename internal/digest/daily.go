// Package digest folds time-windowed ticket and message records into the
// daily and weekly summary reports.
package digest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/voicetel/support-escalator/internal/models"
)

// Daily holds the trailing-24-hour metrics. Pointer fields are nil when the
// underlying computation produced no rows; their report lines are omitted
// rather than rendered as zeros.
type Daily struct {
	OpenCount              int
	AnsweredCount          int
	OpenHighValueCount     int
	AnsweredHighValueCount int
	AvgReplySeconds        *int
	VipAvgReplySeconds     *int
	AvgOpenAgeSeconds      *int
}

// BuildDaily computes the daily metrics from a snapshot of currently open
// conversations and the staff replies sent inside the window. The replies
// are expected to be pre-filtered to the window; vipThresholdCents gates the
// VIP latency metric and is nil when the mailbox has no VIP threshold.
func BuildDaily(now time.Time, open []models.OpenTicket, replies []models.StaffReply, vipThresholdCents *int64) Daily {
	d := Daily{OpenCount: len(open)}

	var ageSum float64
	var ageCount int
	for _, t := range open {
		if t.CustomerValueCents > 0 {
			d.OpenHighValueCount++
		}
		if t.LastUserMessageAt != nil {
			ageSum += now.Sub(*t.LastUserMessageAt).Seconds()
			ageCount++
		}
	}
	if ageCount > 0 {
		d.AvgOpenAgeSeconds = roundedAvg(ageSum, ageCount)
	}

	answered := make(map[int64]bool)
	answeredHighValue := make(map[int64]bool)
	var replySum, vipReplySum float64
	var replyCount, vipReplyCount int

	for _, r := range replies {
		answered[r.ConversationID] = true
		if r.CustomerValueCents > 0 {
			answeredHighValue[r.ConversationID] = true
		}

		if r.InResponseToUserAt == nil {
			continue
		}
		latency := r.RepliedAt.Sub(*r.InResponseToUserAt).Seconds()
		replySum += latency
		replyCount++
		if vipThresholdCents != nil && r.CustomerValueCents >= *vipThresholdCents {
			vipReplySum += latency
			vipReplyCount++
		}
	}

	d.AnsweredCount = len(answered)
	d.AnsweredHighValueCount = len(answeredHighValue)
	if replyCount > 0 {
		d.AvgReplySeconds = roundedAvg(replySum, replyCount)
	}
	if vipThresholdCents != nil && vipReplyCount > 0 {
		d.VipAvgReplySeconds = roundedAvg(vipReplySum, vipReplyCount)
	}

	return d
}

// Lines renders the digest as its bullet lines, omitting the optional
// metrics that produced no value.
func (d Daily) Lines() []string {
	lines := []string{
		fmt.Sprintf("• Open tickets: %s", FormatCount(d.OpenCount)),
		fmt.Sprintf("• Tickets answered: %s", FormatCount(d.AnsweredCount)),
	}
	if d.OpenHighValueCount > 0 {
		lines = append(lines, fmt.Sprintf("• Open tickets over $0: %s", FormatCount(d.OpenHighValueCount)))
	}
	if d.AnsweredHighValueCount > 0 {
		lines = append(lines, fmt.Sprintf("• Tickets answered over $0: %s", FormatCount(d.AnsweredHighValueCount)))
	}
	if d.AvgReplySeconds != nil {
		lines = append(lines, fmt.Sprintf("• Average reply time: %s", FormatClock(*d.AvgReplySeconds)))
	}
	if d.VipAvgReplySeconds != nil {
		lines = append(lines, fmt.Sprintf("• VIP average reply time: %s", FormatClock(*d.VipAvgReplySeconds)))
	}
	if d.AvgOpenAgeSeconds != nil {
		lines = append(lines, fmt.Sprintf("• Average time existing open tickets have been open: %s", FormatClock(*d.AvgOpenAgeSeconds)))
	}
	return lines
}

// FormatClock renders a second count as "Xh Ym".
func FormatClock(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// FormatCount renders an integer with thousands separators.
func FormatCount(n int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}

func roundedAvg(sum float64, count int) *int {
	v := int(sum/float64(count) + 0.5)
	return &v
}
