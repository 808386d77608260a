package jobs

import (
	"io"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/voicetel/support-escalator/internal/config"
	"github.com/voicetel/support-escalator/internal/database"
	"github.com/voicetel/support-escalator/internal/logging"
	"github.com/voicetel/support-escalator/internal/models"
	"github.com/voicetel/support-escalator/internal/slack"
)

type threadWrite struct {
	messageID int64
	channel   string
	ts        string
}

type fakeStore struct {
	mailbox       *models.Mailbox
	vipMailboxes  []models.Mailbox
	assigned      []models.Conversation
	vipCandidates []models.Conversation
	users         []models.User
	messages      map[int64]*models.Message
	conversations map[int64]*models.Conversation
	customers     map[string]*models.PlatformCustomer
	open          []models.OpenTicket
	replies       []models.StaffReply
	stats         []models.MemberStats

	assignedErr error
	vipErr      error
	vipErrAfter func() error
	statsErr    error

	queryCount     int
	threadWrites   []threadWrite
	threadsUpdated []int64
}

func (s *fakeStore) GetMailbox() (*models.Mailbox, error) {
	s.queryCount++
	if s.mailbox == nil {
		return nil, database.ErrNotFound
	}
	return s.mailbox, nil
}

func (s *fakeStore) ListVipMailboxes() ([]models.Mailbox, error) {
	s.queryCount++
	return s.vipMailboxes, nil
}

func (s *fakeStore) OpenAssignedConversations() ([]models.Conversation, error) {
	s.queryCount++
	if s.assignedErr != nil {
		return nil, s.assignedErr
	}
	return s.assigned, nil
}

func (s *fakeStore) OpenUnassignedVipCandidates() ([]models.Conversation, error) {
	s.queryCount++
	if s.vipErr != nil {
		return nil, s.vipErr
	}
	if s.vipErrAfter != nil {
		if err := s.vipErrAfter(); err != nil {
			return nil, err
		}
	}
	return s.vipCandidates, nil
}

func (s *fakeStore) GetConversation(id int64) (*models.Conversation, error) {
	s.queryCount++
	if c, ok := s.conversations[id]; ok {
		return c, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) GetMessage(id int64) (*models.Message, error) {
	s.queryCount++
	if m, ok := s.messages[id]; ok {
		return m, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) GetPlatformCustomer(email string) (*models.PlatformCustomer, error) {
	s.queryCount++
	return s.customers[email], nil
}

func (s *fakeStore) GetUser(id int64) (*models.User, error) {
	s.queryCount++
	for _, u := range s.users {
		if u.ID == id {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListUsers() ([]models.User, error) {
	s.queryCount++
	return s.users, nil
}

func (s *fakeStore) SetMessageThread(messageID int64, channel, ts string) error {
	s.threadWrites = append(s.threadWrites, threadWrite{messageID: messageID, channel: channel, ts: ts})
	if m, ok := s.messages[messageID]; ok {
		m.SlackChannel = channel
		m.SlackMessageTs = ts
		m.ThreadState = models.ThreadPosted
	}
	return nil
}

func (s *fakeStore) MarkThreadUpdated(messageID int64) error {
	s.threadsUpdated = append(s.threadsUpdated, messageID)
	if m, ok := s.messages[messageID]; ok {
		m.ThreadState = models.ThreadUpdated
	}
	return nil
}

func (s *fakeStore) OpenConversationSnapshots() ([]models.OpenTicket, error) {
	s.queryCount++
	return s.open, nil
}

func (s *fakeStore) StaffRepliesInWindow(start, end time.Time) ([]models.StaffReply, error) {
	s.queryCount++
	return s.replies, nil
}

func (s *fakeStore) MemberStats(start, end time.Time) ([]models.MemberStats, error) {
	s.queryCount++
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return s.stats, nil
}

type postedMessage struct {
	token    string
	channel  string
	fallback string
	blocks   []slack.Block
}

type updatedMessage struct {
	token    string
	channel  string
	ts       string
	fallback string
	blocks   []slack.Block
}

type fakeChat struct {
	postTs       string
	usersByEmail map[string]string

	postErr   error
	updateErr error
	usersErr  error

	posted  []postedMessage
	updated []updatedMessage
}

func (c *fakeChat) PostMessage(token, channel, fallback string, blocks []slack.Block) (string, error) {
	if c.postErr != nil {
		return "", c.postErr
	}
	c.posted = append(c.posted, postedMessage{token: token, channel: channel, fallback: fallback, blocks: blocks})
	if c.postTs == "" {
		return "1712000000.000100", nil
	}
	return c.postTs, nil
}

func (c *fakeChat) UpdateMessage(token, channel, ts, fallback string, blocks []slack.Block) error {
	if c.updateErr != nil {
		return c.updateErr
	}
	c.updated = append(c.updated, updatedMessage{token: token, channel: channel, ts: ts, fallback: fallback, blocks: blocks})
	return nil
}

func (c *fakeChat) UsersByEmail(token string) (map[string]string, error) {
	if c.usersErr != nil {
		return nil, c.usersErr
	}
	if c.usersByEmail == nil {
		return map[string]string{}, nil
	}
	return c.usersByEmail, nil
}

type sentEmail struct {
	to      []string
	subject string
	html    string
}

type fakeEmail struct {
	sendErr error
	sent    []sentEmail
}

func (e *fakeEmail) Send(to []string, subject, html string) error {
	if e.sendErr != nil {
		return e.sendErr
	}
	e.sent = append(e.sent, sentEmail{to: to, subject: subject, html: html})
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Helpdesk: config.HelpdeskConfig{URL: "https://support.example.com"},
		Resend: config.ResendConfig{
			APIKey:      "re_test_key",
			FromAddress: "alerts@example.com",
		},
		ReportTimezone: "UTC",
		Slack:          config.SlackConfig{RetryAttempts: 1},
	}
}

func newTestEngine(store *fakeStore, chat *fakeChat, mail *fakeEmail, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = testConfig()
	}
	logger := logging.NewLogger("text", false, io.Discard)
	return New(store, chat, mail, nil, cfg, logger)
}

// blocksText flattens the text of every section block so tests can assert
// on rendered content without caring about block boundaries.
func blocksText(blocks []slack.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if section, ok := b.(*slackapi.SectionBlock); ok && section.Text != nil {
			sb.WriteString(section.Text.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func ptrInt64(v int64) *int64       { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrTime(t time.Time) *time.Time {
	return &t
}
