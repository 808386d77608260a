package jobs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/voicetel/support-escalator/internal/database"
	"github.com/voicetel/support-escalator/internal/email"
	"github.com/voicetel/support-escalator/internal/models"
	"github.com/voicetel/support-escalator/internal/slack"
)

const jobVipMessage = "vip_message"

// Sender fallbacks for reply notifications when the replying agent has no
// profile.
const (
	assistantSenderName = "AI Assistant"
	teamSenderName      = "Helper Team"
)

type vipEmailKind string

const (
	vipEmailNewMessage vipEmailKind = "user"
	vipEmailReply      vipEmailKind = "reply"
)

type vipEmailContext struct {
	kind       vipEmailKind
	body       string
	senderName string
	title      string
}

// NotifyVipMessage reacts to one created message: a customer message from a
// VIP posts a new chat thread (persisting its handle), a staff or assistant
// reply to an already-threaded message updates that thread in place, and
// the email channel independently notifies the escalation recipients.
//
// The message and conversation lookups are the only steps allowed to fail
// permanently; an unknown id wraps into a NonRetriableError so the caller's
// retry policy can stop. Concurrent invocations for the same message are
// not locked against; last writer wins on the thread handle.
func (e *Engine) NotifyVipMessage(messageID int64) (models.VipNotifyResult, error) {
	result := models.VipNotifyResult{Chat: models.ChatSkipped, Email: models.EmailSkipped}

	message, err := e.store.GetMessage(messageID)
	if errors.Is(err, database.ErrNotFound) {
		return result, nonRetriable(fmt.Errorf("message %d: %w", messageID, err))
	}
	if err != nil {
		return result, err
	}

	conversation, err := e.store.GetConversation(message.ConversationID)
	if errors.Is(err, database.ErrNotFound) {
		return result, nonRetriable(fmt.Errorf("conversation %d: %w", message.ConversationID, err))
	}
	if err != nil {
		return result, err
	}

	// A merged conversation is never the notification target; subject,
	// slug and status all come from the merge target.
	if conversation.MergedIntoID != nil {
		conversation, err = e.store.GetConversation(*conversation.MergedIntoID)
		if errors.Is(err, database.ErrNotFound) {
			return result, nonRetriable(fmt.Errorf("merge target: %w", err))
		}
		if err != nil {
			return result, err
		}
	}

	mailbox, err := e.store.GetMailbox()
	if errors.Is(err, database.ErrNotFound) {
		return result, nonRetriable(fmt.Errorf("mailbox: %w", err))
	}
	if err != nil {
		return result, err
	}

	if conversation.IsPrompt {
		result.Reason = "prompt conversation"
		return result, nil
	}
	if conversation.EmailFrom == "" {
		result.Reason = "anonymous conversation"
		return result, nil
	}

	customer, err := e.store.GetPlatformCustomer(conversation.EmailFrom)
	if err != nil {
		return result, err
	}

	thresholdCents := vipThresholdCents(mailbox)
	if thresholdCents == nil || customer == nil || customer.ValueCents < *thresholdCents {
		result.Reason = "not a VIP customer"
		return result, nil
	}

	customerName := customer.Name
	if customerName == "" {
		customerName = conversation.EmailFrom
	}

	channels := ResolveChannels(mailbox.SlackBotToken, mailbox.VipChannelID, mailbox.EscalationEmails, e.cfg.Resend)

	var emailCtx *vipEmailContext

	if channels.ChatEnabled {
		result.Chat, emailCtx, err = e.handleVipChat(mailbox, conversation, message, customerName)
		if err != nil {
			return result, err
		}
	} else if message.Role == models.RoleUser {
		// No chat configured, but a customer message still notifies the
		// escalation recipients by email.
		emailCtx = &vipEmailContext{kind: vipEmailNewMessage, body: message.Body, senderName: customerName}
	}

	if emailCtx != nil && channels.EmailEnabled {
		result.Email = e.sendVipEmail(mailbox, conversation, channels.Recipients, customerName, emailCtx)
	}

	return result, nil
}

// handleVipChat runs the chat branch of the state machine and returns the
// chat status plus the email context the branch produced, if any. Slack
// transport errors stay inside this boundary.
func (e *Engine) handleVipChat(mailbox *models.Mailbox, conversation *models.Conversation, message *models.Message, customerName string) (string, *vipEmailContext, error) {
	if message.Role != models.RoleUser && message.ResponseToID != nil {
		original, err := e.store.GetMessage(*message.ResponseToID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return models.ChatSkipped, nil, err
		}

		// Only a reply to an already-threaded message updates a thread; a
		// reply to an unthreaded message produces no chat action.
		if original == nil || original.SlackMessageTs == "" {
			return models.ChatNotPosted, nil, nil
		}

		senderName := e.resolveSenderName(message)
		emailCtx := &vipEmailContext{
			kind:       vipEmailReply,
			body:       message.Body,
			senderName: senderName,
			title:      fmt.Sprintf("VIP Conversation Update for %s", mailbox.Name),
		}

		channel := original.SlackChannel
		if channel == "" {
			channel = mailbox.VipChannelID
		}

		blocks := e.vipThreadBlocks(conversation, customerName, original.Body, message.Body, senderName)
		fallback := fmt.Sprintf("VIP conversation update: %s", subjectLabel(conversation.Subject))

		if e.cfg.DryRun {
			e.log.Info("dry run: would update vip thread", "message_id", original.ID, "channel", channel)
			e.recordDelivery(jobVipMessage, mailbox.ID, "slack", channel, "skipped", "dry run")
			return models.ChatUpdated, emailCtx, nil
		}

		if err := e.chat.UpdateMessage(mailbox.SlackBotToken, channel, original.SlackMessageTs, fallback, blocks); err != nil {
			e.log.LogError("failed to update vip thread", err, "message_id", original.ID)
			e.recordDelivery(jobVipMessage, mailbox.ID, "slack", channel, "failed", err.Error())
			return models.ChatNotPosted, emailCtx, nil
		}

		if err := e.store.MarkThreadUpdated(original.ID); err != nil {
			e.log.Warn("failed to mark thread updated", "error", err.Error(), "message_id", original.ID)
		}

		e.recordDelivery(jobVipMessage, mailbox.ID, "slack", channel, "sent", "thread updated")
		return models.ChatUpdated, emailCtx, nil
	}

	if message.Role == models.RoleUser {
		emailCtx := &vipEmailContext{kind: vipEmailNewMessage, body: message.Body, senderName: customerName}

		blocks := e.vipThreadBlocks(conversation, customerName, message.Body, "", "")
		fallback := fmt.Sprintf("New VIP message from %s", customerName)

		if e.cfg.DryRun {
			e.log.Info("dry run: would post vip message", "message_id", message.ID, "channel", mailbox.VipChannelID)
			e.recordDelivery(jobVipMessage, mailbox.ID, "slack", mailbox.VipChannelID, "skipped", "dry run")
			return models.ChatPosted, emailCtx, nil
		}

		ts, err := e.chat.PostMessage(mailbox.SlackBotToken, mailbox.VipChannelID, fallback, blocks)
		if err != nil {
			e.log.LogError("failed to post vip message", err, "message_id", message.ID)
			e.recordDelivery(jobVipMessage, mailbox.ID, "slack", mailbox.VipChannelID, "failed", err.Error())
			return models.ChatNotPosted, emailCtx, nil
		}

		if err := e.store.SetMessageThread(message.ID, mailbox.VipChannelID, ts); err != nil {
			e.log.LogError("failed to persist thread handle", err, "message_id", message.ID)
		}

		e.recordDelivery(jobVipMessage, mailbox.ID, "slack", mailbox.VipChannelID, "sent", "thread posted")
		return models.ChatPosted, emailCtx, nil
	}

	return models.ChatNotPosted, nil, nil
}

func (e *Engine) resolveSenderName(message *models.Message) string {
	if message.UserID != nil {
		user, err := e.store.GetUser(*message.UserID)
		if err != nil {
			e.log.Warn("failed to load replying user", "error", err.Error(), "user_id", *message.UserID)
		}
		if user != nil {
			if user.DisplayName != "" {
				return user.DisplayName
			}
			if user.Email != "" {
				return user.Email
			}
		}
	}
	if message.Role == models.RoleAIAssistant {
		return assistantSenderName
	}
	return teamSenderName
}

// vipThreadBlocks renders the running VIP thread message. The same layout
// serves the initial post and later in-place updates, which append the
// reply section.
func (e *Engine) vipThreadBlocks(conversation *models.Conversation, customerName, originalBody, replyBody, senderName string) []slack.Block {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*New message from %s*\n", customerName)
	fmt.Fprintf(&sb, "*Subject:* %s\n", subjectLabel(conversation.Subject))
	if originalBody != "" {
		fmt.Fprintf(&sb, ">%s\n", strings.ReplaceAll(originalBody, "\n", "\n>"))
	}
	if replyBody != "" {
		fmt.Fprintf(&sb, "\n*Reply from %s*\n>%s\n", senderName, strings.ReplaceAll(replyBody, "\n", "\n>"))
	}
	if conversation.Status == models.StatusClosed {
		sb.WriteString("\n✅ Closed\n")
	}
	fmt.Fprintf(&sb, "<%s|View conversation>", e.conversationURL(conversation.Slug))

	return []slack.Block{slack.Section(sb.String())}
}

func (e *Engine) sendVipEmail(mailbox *models.Mailbox, conversation *models.Conversation, recipients []string, customerName string, ctx *vipEmailContext) string {
	recipientList := strings.Join(recipients, ",")

	heading := ctx.title
	if heading == "" {
		heading = fmt.Sprintf("New VIP Message for %s", mailbox.Name)
	}
	author := ctx.senderName
	if author == "" {
		author = customerName
	}

	var subject string
	if ctx.kind == vipEmailReply {
		sender := ctx.senderName
		if sender == "" {
			sender = "Your teammate"
		}
		subject = fmt.Sprintf("%s replied to %s", sender, customerName)
	} else {
		subject = fmt.Sprintf("New VIP Message from %s", customerName)
	}

	html, err := email.RenderMessage(email.MessageData{
		Heading:         heading,
		Author:          author,
		Subject:         subjectLabel(conversation.Subject),
		MessagePreview:  ctx.body,
		ConversationURL: e.conversationURL(conversation.Slug),
	})
	if err != nil {
		e.log.LogError("failed to render vip message email", err, "mailbox", mailbox.Slug)
		e.recordDelivery(jobVipMessage, mailbox.ID, "email", recipientList, "failed", err.Error())
		return models.EmailFailed
	}

	if e.cfg.DryRun {
		e.log.Info("dry run: would send vip message email", "mailbox", mailbox.Slug, "recipients", len(recipients))
		e.recordDelivery(jobVipMessage, mailbox.ID, "email", recipientList, "skipped", "dry run")
		return models.EmailSent
	}

	if err := e.email.Send(recipients, subject, html); err != nil {
		e.log.LogError("failed to send vip message email", err, "mailbox", mailbox.Slug)
		e.recordDelivery(jobVipMessage, mailbox.ID, "email", recipientList, "failed", err.Error())
		return models.EmailFailed
	}

	e.recordDelivery(jobVipMessage, mailbox.ID, "email", recipientList, "sent", subject)
	return models.EmailSent
}
