// Package slack wraps the Slack Web API for posting, updating and
// user-lookup calls. Bot tokens are per-mailbox, so every call takes the
// token rather than binding it at construction.
package slack

import (
	"fmt"
	"net/http"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/voicetel/support-escalator/internal/config"
)

// Block re-exports the Web API block type so callers can build renderings
// without importing the SDK directly.
type Block = slackapi.Block

type Client struct {
	httpClient    *http.Client
	retryAttempts int
}

func NewClient(cfg config.SlackConfig) *Client {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout.Duration,
		},
		retryAttempts: attempts,
	}
}

func (c *Client) api(token string) *slackapi.Client {
	return slackapi.New(token, slackapi.OptionHTTPClient(c.httpClient))
}

// PostMessage posts to a channel and returns the message timestamp, which
// serves as the thread handle for later updates.
func (c *Client) PostMessage(token, channel, fallback string, blocks []Block) (string, error) {
	api := c.api(token)

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}

		_, ts, err := api.PostMessage(channel,
			slackapi.MsgOptionText(fallback, false),
			slackapi.MsgOptionBlocks(blocks...),
		)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("failed after %d attempts: %w", c.retryAttempts, lastErr)
}

// UpdateMessage edits a previously posted message in place.
func (c *Client) UpdateMessage(token, channel, ts, fallback string, blocks []Block) error {
	api := c.api(token)

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}

		_, _, _, err := api.UpdateMessage(channel, ts,
			slackapi.MsgOptionText(fallback, false),
			slackapi.MsgOptionBlocks(blocks...),
		)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d attempts: %w", c.retryAttempts, lastErr)
}

// UsersByEmail maps workspace member emails to Slack user ids, used to
// @-mention agents when a mapping exists.
func (c *Client) UsersByEmail(token string) (map[string]string, error) {
	users, err := c.api(token).GetUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	byEmail := make(map[string]string, len(users))
	for _, u := range users {
		if u.Deleted || u.IsBot {
			continue
		}
		if u.Profile.Email != "" {
			byEmail[u.Profile.Email] = u.ID
		}
	}
	return byEmail, nil
}

// TestAuth verifies a bot token, used by the check-connections mode.
func (c *Client) TestAuth(token string) error {
	if _, err := c.api(token).AuthTest(); err != nil {
		return fmt.Errorf("auth test failed: %w", err)
	}
	return nil
}

// Section builds a mrkdwn section block.
func Section(markdown string) Block {
	return slackapi.NewSectionBlock(
		slackapi.NewTextBlockObject(slackapi.MarkdownType, markdown, false, false), nil, nil)
}

// PlainSection builds a plain-text section block.
func PlainSection(text string) Block {
	return slackapi.NewSectionBlock(
		slackapi.NewTextBlockObject(slackapi.PlainTextType, text, true, false), nil, nil)
}

// Divider builds a divider block.
func Divider() Block {
	return slackapi.NewDividerBlock()
}
