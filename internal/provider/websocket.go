package provider

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Subscription is the minimal shape the discovery service needs regardless
// of whether it is a newHeads or logs subscription.
type Subscription interface {
	Err() <-chan error
	Unsubscribe()
}

// WebSocketConnect dials the best provider's WSURL via ethclient and hands
// the caller a connected client plus a reconnect-aware run loop. subscribe is
// called once per (re)connection to (re)establish whatever eth_subscribe
// filters the caller needs; it must return the last-known block so
// reconnection can resume log filters from there.
//
// WebSocketConnect blocks until ctx is cancelled, reconnecting on every
// subscription error after WebsocketReconnectDelay.
func (m *Manager) WebSocketConnect(
	ctx context.Context,
	reconnectDelay time.Duration,
	subscribe func(ctx context.Context, client *ethclient.Client) (Subscription, error),
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		e, err := m.selectBest(time.Now())
		if err != nil {
			m.sleep(ctx, reconnectDelay)
			continue
		}
		if e.cfg.WSURL == "" {
			m.sleep(ctx, reconnectDelay)
			continue
		}

		client, err := ethclient.DialContext(ctx, e.cfg.WSURL)
		if err != nil {
			e.health.RecordFailure()
			m.log.Warn().Str("provider", e.cfg.Name).Err(err).Msg("websocket dial failed")
			m.sleep(ctx, reconnectDelay)
			continue
		}

		sub, err := subscribe(ctx, client)
		if err != nil {
			client.Close()
			e.health.RecordFailure()
			m.log.Warn().Str("provider", e.cfg.Name).Err(err).Msg("websocket subscribe failed")
			m.sleep(ctx, reconnectDelay)
			continue
		}

		m.log.Info().Str("provider", e.cfg.Name).Msg("websocket connected and subscribed")

		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			client.Close()
			return ctx.Err()
		case subErr := <-sub.Err():
			sub.Unsubscribe()
			client.Close()
			if subErr != nil {
				e.health.RecordFailure()
				m.log.Warn().Str("provider", e.cfg.Name).Err(subErr).Msg("websocket subscription dropped, reconnecting")
			}
			m.sleep(ctx, reconnectDelay)
		}
	}
}
