package jobs

import (
	"strings"

	"github.com/voicetel/support-escalator/internal/config"
)

// Channels is the resolved delivery configuration for one mailbox. The two
// booleans are independent; email missing its transport secrets is a
// silent skip, not an error, since that reflects environment configuration
// rather than a data problem.
type Channels struct {
	Recipients   []string
	ChatEnabled  bool
	EmailEnabled bool
}

// ResolveChannels normalizes the raw mailbox configuration: the recipient
// list is split on commas, trimmed and stripped of empties (duplicates are
// kept as-is). Chat requires both a bot token and a channel id. Email
// requires at least one recipient plus the Resend API key and from address.
func ResolveChannels(botToken, channelID, recipientList string, resend config.ResendConfig) Channels {
	ch := Channels{
		Recipients:  SplitRecipients(recipientList),
		ChatEnabled: botToken != "" && channelID != "",
	}
	ch.EmailEnabled = len(ch.Recipients) > 0 && resend.APIKey != "" && resend.FromAddress != ""
	return ch
}

// SplitRecipients parses a comma-separated recipient string.
func SplitRecipients(s string) []string {
	if s == "" {
		return nil
	}
	var recipients []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			recipients = append(recipients, part)
		}
	}
	return recipients
}
