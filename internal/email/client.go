// Package email sends escalation and report emails through Resend and
// renders their HTML bodies.
package email

import (
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/voicetel/support-escalator/internal/config"
)

type Client struct {
	resend *resend.Client
	from   string
}

func NewClient(cfg config.ResendConfig) *Client {
	return &Client{
		resend: resend.NewClient(cfg.APIKey),
		from:   cfg.FromAddress,
	}
}

// Send delivers one HTML email to the recipient list.
func (c *Client) Send(to []string, subject, html string) error {
	params := &resend.SendEmailRequest{
		From:    c.from,
		To:      to,
		Subject: subject,
		Html:    html,
	}

	if _, err := c.resend.Emails.Send(params); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
