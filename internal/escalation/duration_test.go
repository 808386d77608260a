package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    string
	}{
		{"zero", 0, ""},
		{"negative", -time.Hour, ""},
		{"minutes only", 45 * time.Minute, "45 minutes"},
		{"single minute", time.Minute, "1 minute"},
		{"single hour", time.Hour, "1 hour"},
		{"hours and minutes", 2*time.Hour + 5*time.Minute, "2 hours 5 minutes"},
		{"day hour minute", 26*time.Hour + 5*time.Minute, "1 day 2 hours 5 minutes"},
		{"exact day skips zero components", 48 * time.Hour, "2 days"},
		{"day and minutes no hours", 24*time.Hour + 10*time.Minute, "1 day 10 minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(now.Add(-tt.elapsed), now))
		})
	}
}
