package digest

import (
	"fmt"
	"time"
)

// LastWeekRange returns the previous calendar week (Sunday through
// Saturday) in the given location. start is the Sunday at midnight, end is
// the following Sunday at midnight (exclusive).
func LastWeekRange(now time.Time, loc *time.Location) (start, end time.Time) {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	thisSunday := midnight.AddDate(0, 0, -int(midnight.Weekday()))
	start = thisSunday.AddDate(0, 0, -7)
	end = thisSunday
	return start, end
}

// FormatDateRange renders the week label used as the chat fallback text,
// e.g. "Week of 2026-08-16 to 2026-08-22". end is exclusive.
func FormatDateRange(start, end time.Time) string {
	last := end.AddDate(0, 0, -1)
	return fmt.Sprintf("Week of %s to %s", start.Format("2006-01-02"), last.Format("2006-01-02"))
}
