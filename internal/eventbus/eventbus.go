// Package eventbus implements the Event Bus: ordered,
// at-least-once in-process pub/sub carrying a correlation id on every
// message.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Topic names fixed by
const (
	TopicNewPair = "pairs.new"
	TopicRiskAssessment = "risk.assessment"
	TopicTradingDecision = "decisions.trading"
	TopicExecutionResult = "executions.result"
	TopicEngineStatus = "engine.status"
	TopicAlertTriggered = "alerts.triggered"
)

// schemaVersion is bumped whenever an Envelope payload's shape changes.
const schemaVersion = 1

// Envelope wraps every event bus payload with the self-describing metadata
// requires: correlation id, produced_at, and a schema id.
// Subscribers use CorrelationID for idempotency.
type Envelope struct {
	Topic string `json:"topic"`
	CorrelationID string `json:"correlation_id"`
	ProducedAt time.Time `json:"produced_at"`
	SchemaVersion int `json:"schema_version"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes one delivered envelope. Returning an error causes the
// underlying gochannel subscription to redeliver per watermill's no-ack
// semantics, giving the bus its at-least-once guarantee.
type Handler func(ctx context.Context, env Envelope) error

// Bus is a typed façade over a watermill gochannel Pub/Sub so callers never
// touch raw message.Message.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router

	mu sync.Mutex
	consumers int
}

// Config controls the buffering/persistence characteristics of the
// underlying gochannel.
type Config struct {
	OutputChannelBuffer int64
	Persistent bool
}

// DefaultConfig matches the buffer size the corpus uses for its in-process
// event bus (abdoElHodaky-tradSys's WatermillEventBus default).
func DefaultConfig() Config {
	return Config{OutputChannelBuffer: 1000, Persistent: true}
}

// New constructs a Bus. Call Run to start dispatching to subscribers.
func New(cfg Config) (*Bus, error) {
	wlogger := watermill.NewStdLogger(false, false)
	pubsub := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.OutputChannelBuffer,
			Persistent: cfg.Persistent,
		}, wlogger)

	router, err := message.NewRouter(message.RouterConfig{}, wlogger)
	if err != nil {
		return nil, fmt.Errorf("eventbus: new router: %w", err)
	}
	return &Bus{pubsub: pubsub, router: router}, nil
}

// Run blocks dispatching messages to subscribers until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Close shuts down the router and the underlying pub/sub.
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubsub.Close()
}

// Publish serializes payload and publishes it on topic with a freshly
// generated correlation id, returning that id. Use PublishCorrelated to
// propagate an existing id across a causal chain of events.
func Publish[T any](ctx context.Context, b *Bus, topic string, payload T) (string, error) {
	return PublishCorrelated(ctx, b, topic, uuid.NewString(), payload)
}

// PublishCorrelated publishes payload on topic carrying an explicit
// correlation id, used when a downstream event is caused by an upstream one
// (e.g. a TradingDecision produced from a RiskAssessment keeps the same id).
func PublishCorrelated[T any](ctx context.Context, b *Bus, topic, correlationID string, payload T) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("eventbus: marshal payload for %s: %w", topic, err)
	}
	env := Envelope{
		Topic: topic,
		CorrelationID: correlationID,
		ProducedAt: time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload: raw,
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("eventbus: marshal envelope for %s: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), envBytes)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return "", fmt.Errorf("eventbus: publish %s: %w", topic, err)
	}
	return correlationID, nil
}

// Subscribe registers handler on topic. Each topic gets its own named
// router handler so one slow/failing subscriber cannot block delivery to
// another topic's subscribers (per-partition ordering,).
func (b *Bus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	name := fmt.Sprintf("handler-%s-%d", topic, b.consumers)
	b.consumers++
	b.mu.Unlock()

	b.router.AddNoPublisherHandler(name, topic, b.pubsub, func(msg *message.Message) error {
			var env Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("eventbus: malformed envelope, dropping")
				return nil // poison message, do not redeliver forever
			}
			if err := handler(msg.Context(), env); err != nil {
				log.Warn().Err(err).Str("topic", topic).Str("correlation_id", env.CorrelationID).Msg("eventbus: handler error, message will be redelivered")
				return err
			}
			return nil
		})
	return nil
}

// Decode unmarshals an Envelope's payload into T.
func Decode[T any](env Envelope) (T, error) {
	var out T
	err := json.Unmarshal(env.Payload, &out)
	return out, err
}
