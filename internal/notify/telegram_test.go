package notify

import (
	"errors"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointtbridge/internal/engine"
)

// fakeSender records sent messages.
type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func newTestNotifier(api sender) *Notifier {
	return &Notifier{
		api:    api,
		chatID: 42,
		logger: slog.Default(),
	}
}

func TestNotifier_DegradedTransition(t *testing.T) {
	api := &fakeSender{}
	n := newTestNotifier(api)

	n.StateChanged(engine.StateIdle, engine.StateDegraded)

	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(42), api.sent[0].ChatID)
	assert.Contains(t, api.sent[0].Text, "degraded")
}

func TestNotifier_AuthFailedTransition(t *testing.T) {
	api := &fakeSender{}
	n := newTestNotifier(api)

	n.StateChanged(engine.StateIdle, engine.StateAuthFailed)

	require.Len(t, api.sent, 1)
	assert.Contains(t, api.sent[0].Text, "signed out")
}

func TestNotifier_RecoveryTransitions(t *testing.T) {
	api := &fakeSender{}
	n := newTestNotifier(api)

	n.StateChanged(engine.StateDegraded, engine.StateIdle)
	n.StateChanged(engine.StateAuthFailed, engine.StateIdle)

	require.Len(t, api.sent, 2)
	assert.Contains(t, api.sent[0].Text, "recovered")
	assert.Contains(t, api.sent[1].Text, "recovered")
}

func TestNotifier_SilentEvents(t *testing.T) {
	api := &fakeSender{}
	n := newTestNotifier(api)

	// Routine transitions and snapshot publications are not pushed.
	n.StateChanged(engine.StateIdle, engine.StatePolling)
	n.StateChanged(engine.StatePolling, engine.StateIdle)
	n.SnapshotUpdated(&engine.Snapshot{})

	assert.Empty(t, api.sent)
}

func TestNotifier_SendFailureIsSwallowed(t *testing.T) {
	api := &fakeSender{err: errors.New("telegram down")}
	n := newTestNotifier(api)

	// Must not panic or propagate; the engine keeps running either way.
	n.StateChanged(engine.StateIdle, engine.StateDegraded)
	require.Len(t, api.sent, 1)
}
