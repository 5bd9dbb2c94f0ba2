package alerting

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/domain"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestSend_FormatsSeverityAndPair(t *testing.T) {
	fs := &fakeSender{}
	sink := NewTelegramSinkWithSender(fs, 12345)
	pair := domain.PairID{ChainID: 1, Token0: "A", Token1: "B"}
	err := sink.Send(domain.AlertEvent{Severity: domain.AlertCritical, Source: "circuit_breaker", Message: "daily loss limit breached", PairID: &pair})
	require.NoError(t, err)
	require.Len(t, fs.sent, 1)

	msg, ok := fs.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.Contains(t, msg.Text, "CRITICAL")
	require.Contains(t, msg.Text, "circuit_breaker")
	require.Contains(t, msg.Text, pair.String())
}

func TestSend_WithoutPairOmitsPairSuffix(t *testing.T) {
	fs := &fakeSender{}
	sink := NewTelegramSinkWithSender(fs, 12345)
	err := sink.Send(domain.AlertEvent{Severity: domain.AlertWarning, Source: "nonce_manager", Message: "nonce stuck"})
	require.NoError(t, err)
	msg := fs.sent[0].(tgbotapi.MessageConfig)
	require.NotContains(t, msg.Text, "pair")
}

func TestSend_PropagatesSenderError(t *testing.T) {
	fs := &fakeSender{err: require.AnError}
	sink := NewTelegramSinkWithSender(fs, 12345)
	err := sink.Send(domain.AlertEvent{Severity: domain.AlertInfo, Source: "test", Message: "hello"})
	require.Error(t, err)
}
