// Package notify pushes engine state transitions to Telegram so a dead
// session or a degraded cloud connection is seen without watching logs.
package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pointtbridge/internal/engine"
)

// sender is the slice of tgbotapi.BotAPI used here.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config contains Telegram notifier settings.
type Config struct {
	Token  string
	ChatID int64
}

// Notifier implements engine.Listener and reports state transitions to a
// Telegram chat. Snapshot updates are intentionally silent; only transitions
// are worth a push.
type Notifier struct {
	api    sender
	chatID int64
	logger *slog.Logger
}

// NewNotifier creates a Telegram notifier.
func NewNotifier(cfg Config, logger *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		api:    api,
		chatID: cfg.ChatID,
		logger: logger,
	}, nil
}

// SnapshotUpdated implements engine.Listener. Routine cycle completions are
// not pushed.
func (n *Notifier) SnapshotUpdated(snapshot *engine.Snapshot) {}

// StateChanged implements engine.Listener.
func (n *Notifier) StateChanged(old, new engine.State) {
	text := transitionMessage(old, new)
	if text == "" {
		return
	}
	n.send(text)
}

// transitionMessage maps a state transition to the message to push, or ""
// for transitions not worth reporting.
func transitionMessage(old, new engine.State) string {
	switch new {
	case engine.StateDegraded:
		return "⚠️ *Heating bridge degraded*\nRepeated poll failures, serving stale data. Check the cloud connection."
	case engine.StateAuthFailed:
		return "🔒 *Heating bridge signed out*\nThe session is no longer valid. Re-run the login flow to resume polling."
	case engine.StateIdle:
		if old == engine.StateDegraded || old == engine.StateAuthFailed {
			return "✅ *Heating bridge recovered*\nPolling resumed, serving fresh data."
		}
	}
	return ""
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"

	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("Failed to send notification",
			"component", "notify",
			"chat_id", n.chatID,
			"error", err,
		)
	}
}
