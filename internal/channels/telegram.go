package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/bus"
	"github.com/gongchyu-collab/Ai-Chat-HITL/internal/dialog"
)

// Registry is the slice of the dialog registry the channel needs.
type Registry interface {
	ListPending(filter []string) []dialog.Request
	Resolve(ctx context.Context, id string, res dialog.Resolution) bool
}

// messageRef locates one announcement message so it can be edited once the
// dialog settles.
type messageRef struct {
	chatID    int64
	messageID int
}

// TelegramChannel mirrors every pending dialog to the allowed Telegram
// accounts as a message with Continue/Stop buttons. A button press resolves
// the dialog; replying to the announcement with text resolves it as continue
// with that text as the user input. Races with the local prompt are settled
// by the registry's at-most-once resolution.
type TelegramChannel struct {
	token      string
	allowedIDs map[int64]struct{}
	registry   Registry
	eventBus   *bus.Bus
	logger     *slog.Logger
	bot        *tgbotapi.BotAPI

	announceMu sync.Mutex
	announced  map[string][]messageRef // dialogID -> announcement messages
	byMessage  map[messageRef]string   // announcement message -> dialogID
}

// NewTelegramChannel creates a new Telegram channel.
func NewTelegramChannel(token string, allowedIDs []int64, reg Registry, eventBus *bus.Bus, logger *slog.Logger) *TelegramChannel {
	allowed := make(map[int64]struct{})
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramChannel{
		token:      token,
		allowedIDs: allowed,
		registry:   reg,
		eventBus:   eventBus,
		logger:     logger,
		announced:  make(map[string][]messageRef),
		byMessage:  make(map[messageRef]string),
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}

	t.logger.Info("telegram channel started", "user", t.bot.Self.UserName)

	go t.watchDialogs(ctx)

	// Reconnection loop with exponential backoff.
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)

		// Always clean up the old polling goroutine before reconnecting.
		t.bot.StopReceivingUpdates()

		if pollErr != nil {
			t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// pollUpdates returned nil means ctx was cancelled.
		return nil
	}
}

// pollUpdates reads from the update channel until ctx is done, the channel
// closes, or no updates arrive within 2x the long-poll timeout (stall
// detection). Returns nil on context cancellation, or an error to trigger
// reconnection.
func (t *TelegramChannel) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	// tgbotapi uses a 60s long-poll timeout. If we see nothing for 2.5
	// minutes the connection is likely dead (the library blocks rather
	// than closing the channel).
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}

			// Reset stall timer on every received update, including
			// empty long-poll returns.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message != nil {
				if _, ok := t.allowedIDs[update.Message.From.ID]; !ok {
					t.logger.Warn("telegram access denied", "user_id", update.Message.From.ID, "user_name", update.Message.From.UserName)
					continue
				}
				t.handleMessage(ctx, update.Message)
				continue
			}

			if update.CallbackQuery != nil {
				if _, ok := t.allowedIDs[update.CallbackQuery.From.ID]; !ok {
					t.logger.Warn("telegram callback access denied", "user_id", update.CallbackQuery.From.ID)
					continue
				}
				t.handleCallbackQuery(ctx, update.CallbackQuery)
				continue
			}

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

// watchDialogs announces the current backlog, then keeps announcements in
// step with the registry: new submissions get a decision message, settled
// dialogs get their messages edited to the outcome.
func (t *TelegramChannel) watchDialogs(ctx context.Context) {
	if t.eventBus == nil {
		return
	}
	sub := t.eventBus.Subscribe("dialog.")
	defer t.eventBus.Unsubscribe(sub)

	if t.registry != nil {
		for _, req := range t.registry.ListPending(nil) {
			t.announceDialog(req)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			switch ev.Topic {
			case bus.TopicDialogSubmitted:
				submitted, ok := ev.Payload.(bus.DialogSubmittedEvent)
				if !ok {
					continue
				}
				t.announceDialog(dialog.Request{
					ID:             submitted.ID,
					Reason:         submitted.Reason,
					Workspace:      submitted.Workspace,
					SequenceNumber: submitted.SequenceNumber,
					CreatedAt:      submitted.CreatedAt,
				})
			case bus.TopicDialogResolved:
				resolved, ok := ev.Payload.(bus.DialogResolvedEvent)
				if !ok {
					continue
				}
				t.settleAnnouncements(resolved.ID, resolved.ShouldContinue)
			}
		}
	}
}

// announceDialog sends the decision message to every allowed chat and
// records the message ids for later settlement edits.
func (t *TelegramChannel) announceDialog(req dialog.Request) {
	keyboard := decisionKeyboard(req.ID)
	text := formatAnnouncement(req)

	for chatID := range t.allowedIDs {
		sent, err := t.sendMarkdownWithKeyboard(chatID, text, &keyboard)
		if err != nil {
			t.logger.Warn("failed to announce dialog", "dialog_id", req.ID, "chat_id", chatID, "error", err)
			continue
		}
		ref := messageRef{chatID: chatID, messageID: sent.MessageID}
		t.announceMu.Lock()
		t.announced[req.ID] = append(t.announced[req.ID], ref)
		t.byMessage[ref] = req.ID
		t.announceMu.Unlock()
	}
}

// settleAnnouncements rewrites every announcement for a settled dialog so
// stale buttons disappear from chat history.
func (t *TelegramChannel) settleAnnouncements(dialogID string, shouldContinue bool) {
	t.announceMu.Lock()
	refs := t.announced[dialogID]
	delete(t.announced, dialogID)
	for _, ref := range refs {
		delete(t.byMessage, ref)
	}
	t.announceMu.Unlock()

	outcome := formatOutcome(shouldContinue)
	for _, ref := range refs {
		t.editMessageText(ref.chatID, ref.messageID, outcome)
	}
}

func (t *TelegramChannel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	content := strings.TrimSpace(msg.Text)
	if content == "" {
		return
	}

	// A reply to an announcement resolves that dialog as continue with the
	// reply text as the user input.
	if msg.ReplyToMessage != nil {
		ref := messageRef{chatID: msg.Chat.ID, messageID: msg.ReplyToMessage.MessageID}
		if ack, ok := t.resolveFromReply(ctx, ref, content); ok {
			t.reply(msg.Chat.ID, ack)
			return
		}
	}

	switch content {
	case "/pending", "/start":
		t.reply(msg.Chat.ID, t.pendingSummary())
	}
}

// resolveFromReply maps a reply message back to its dialog and resolves it.
// The boolean reports whether the message was a reply to a known
// announcement at all.
func (t *TelegramChannel) resolveFromReply(ctx context.Context, ref messageRef, text string) (string, bool) {
	t.announceMu.Lock()
	dialogID, ok := t.byMessage[ref]
	t.announceMu.Unlock()
	if !ok {
		return "", false
	}

	res := dialog.Resolution{ShouldContinue: true, UserInput: text}
	if !t.registry.Resolve(ctx, dialogID, res) {
		return "Already settled elsewhere.", true
	}
	t.logger.Info("dialog resolved via telegram reply", "dialog_id", dialogID)
	return "Continuing with your response.", true
}

// handleCallbackQuery handles the Continue/Stop button presses.
func (t *TelegramChannel) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	ack, err := t.decideFromCallback(ctx, query.Data, query.From.UserName)
	if err != nil {
		// Not a decision callback, ignore.
		return
	}

	notification := tgbotapi.NewCallbackWithAlert(query.ID, ack)
	if _, err := t.bot.Request(notification); err != nil {
		t.logger.Warn("failed to send callback notification", "error", err)
	}
}

// decideFromCallback parses the callback payload, resolves the dialog, and
// returns the acknowledgement text for the button press.
func (t *TelegramChannel) decideFromCallback(ctx context.Context, data, userName string) (string, error) {
	dialogID, action, err := parseDecisionCallback(data)
	if err != nil {
		return "", err
	}

	res := dialog.Resolution{ShouldContinue: action == "continue"}
	if !t.registry.Resolve(ctx, dialogID, res) {
		return "Already settled elsewhere.", nil
	}
	t.logger.Info("dialog resolved via telegram",
		"dialog_id", dialogID, "continue", res.ShouldContinue, "user_name", userName)
	if res.ShouldContinue {
		return "Continuing.", nil
	}
	return "Stopped.", nil
}

// pendingSummary renders the current backlog for the /pending command.
func (t *TelegramChannel) pendingSummary() string {
	if t.registry == nil {
		return "No pending dialogs."
	}
	pending := t.registry.ListPending(nil)
	if len(pending) == 0 {
		return "No pending dialogs."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pending dialog(s):\n", len(pending))
	for _, req := range pending {
		fmt.Fprintf(&b, "\n#%d", req.SequenceNumber)
		if req.Workspace != "" {
			fmt.Fprintf(&b, " %s", req.Workspace)
		}
		fmt.Fprintf(&b, "\n%s\n", req.Reason)
	}
	return b.String()
}

func (t *TelegramChannel) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram reply", "error", err)
	}
}

// sendMarkdownWithKeyboard sends a markdown-formatted message with an inline
// keyboard and returns the sent message for later edits.
func (t *TelegramChannel) sendMarkdownWithKeyboard(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "MarkdownV2"
	msg.ReplyMarkup = keyboard
	return t.bot.Send(msg)
}

// editMessageText rewrites an announcement in place once its dialog settles.
func (t *TelegramChannel) editMessageText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := t.bot.Send(edit); err != nil {
		t.logger.Warn("failed to edit telegram message", "error", err)
	}
}

// decisionKeyboard builds the Continue/Stop buttons for one dialog.
func decisionKeyboard(dialogID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				"✅ Continue",
				fmt.Sprintf("dlg:%s:continue", dialogID),
			),
			tgbotapi.NewInlineKeyboardButtonData(
				"⛔ Stop",
				fmt.Sprintf("dlg:%s:stop", dialogID),
			),
		),
	)
}

// formatAnnouncement renders the decision message for one dialog.
func formatAnnouncement(req dialog.Request) string {
	var b strings.Builder
	b.WriteString("🔔 *Agent awaiting decision*\n\n")
	fmt.Fprintf(&b, "Dialog \\#%d", req.SequenceNumber)
	if req.Workspace != "" {
		fmt.Fprintf(&b, " in `%s`", escapeMarkdownV2(req.Workspace))
	}
	b.WriteString("\n\n```\n")
	b.WriteString(escapeMarkdownV2(req.Reason))
	b.WriteString("\n```\n\nPress a button, or reply with text to continue with input\\.")
	return b.String()
}

// formatOutcome is the settlement edit applied to stale announcements.
func formatOutcome(shouldContinue bool) string {
	if shouldContinue {
		return "✅ Settled: continue"
	}
	return "⛔ Settled: stop"
}

// parseDecisionCallback parses decision callback data.
// Format: dlg:dialogID:action
func parseDecisionCallback(data string) (dialogID, action string, err error) {
	data = strings.TrimSpace(data)

	if !strings.HasPrefix(data, "dlg:") {
		return "", "", fmt.Errorf("not a decision callback")
	}

	remaining := data[4:]

	parts := strings.SplitN(remaining, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid decision callback format")
	}

	dialogID = parts[0]
	action = parts[1]

	if dialogID == "" {
		return "", "", fmt.Errorf("dialog id required")
	}
	if action != "continue" && action != "stop" {
		return "", "", fmt.Errorf("unknown decision action %q", action)
	}

	return dialogID, action, nil
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
// Must escape: _ * [ ] ( ) ~ > # + - = | { } . !
func escapeMarkdownV2(s string) string {
	specialChars := "_*[]()~>#+-=|{}.!"

	result := make([]byte, 0, len(s)*2)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.ContainsAny(string(c), specialChars) {
			result = append(result, '\\')
		}
		result = append(result, c)
	}

	return string(result)
}
