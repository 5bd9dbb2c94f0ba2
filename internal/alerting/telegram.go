// Package alerting implements the alerts.triggered notification sink
//.
package alerting

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/eventbus"
)

// sender is the slice of *tgbotapi.BotAPI the sink actually calls, narrowed
// so tests can substitute a fake instead of hitting Telegram's API.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink subscribes to alerts.triggered and forwards every AlertEvent
// to a configured Telegram chat.
type TelegramSink struct {
	mu sync.Mutex
	api sender
	chatID int64
	log zerolog.Logger
}

// NewTelegramSink builds a sink bound to botToken/chatID. A nil-returning
// api (e.g. an invalid token) is treated as a hard error since alerting
// without a working transport is worse than failing fast at startup.
func NewTelegramSink(botToken string, chatID int64) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("alerting: new telegram bot: %w", err)
	}
	return &TelegramSink{api: api, chatID: chatID, log: log.With().Str("component", "alerting").Logger()}, nil
}

// NewTelegramSinkWithSender builds a sink around an already-constructed
// sender, used in tests to avoid a real Telegram API call.
func NewTelegramSinkWithSender(api sender, chatID int64) *TelegramSink {
	return &TelegramSink{api: api, chatID: chatID, log: log.With().Str("component", "alerting").Logger()}
}

// Subscribe registers the sink's handler on the event bus's
// TopicAlertTriggered.
func (s *TelegramSink) Subscribe(bus *eventbus.Bus) error {
	return bus.Subscribe(eventbus.TopicAlertTriggered, s.handle)
}

func (s *TelegramSink) handle(ctx context.Context, env eventbus.Envelope) error {
	alert, err := eventbus.Decode[domain.AlertEvent](env)
	if err != nil {
		return fmt.Errorf("alerting: decode alert envelope: %w", err)
	}
	return s.Send(alert)
}

// Send formats and delivers one alert, prefixed by severity so an operator
// can triage a busy channel at a glance.
func (s *TelegramSink) Send(alert domain.AlertEvent) error {
	text := fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.Source, alert.Message)
	if alert.PairID != nil {
		text += fmt.Sprintf(" (pair %s)", alert.PairID.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msg := tgbotapi.NewMessage(s.chatID, text)
	if _, err := s.api.Send(msg); err != nil {
		s.log.Error().Err(err).Str("severity", string(alert.Severity)).Msg("failed to deliver telegram alert")
		return err
	}
	return nil
}
