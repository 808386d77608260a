package escalation

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration renders the elapsed time between start and now as the
// non-zero day/hour/minute components, highest first, with singular/plural
// agreement. A zero (or negative) span renders as an empty string.
func FormatDuration(start, now time.Time) string {
	elapsed := now.Sub(start)
	if elapsed <= 0 {
		return ""
	}

	days := int(elapsed / (24 * time.Hour))
	hours := int(elapsed/time.Hour) % 24
	minutes := int(elapsed/time.Minute) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, pluralize(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, pluralize(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, pluralize(minutes, "minute"))
	}

	return strings.Join(parts, " ")
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
