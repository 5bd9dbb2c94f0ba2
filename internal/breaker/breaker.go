// Package breaker implements the global Circuit Breaker: five typed
// triggers that halt new position-opening decisions, with auto-recovery
// timers and a manual override, generalized from a simpler
// trip/cooldown/consecutive-losses circuit breaker into a full trigger
// table.
package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/domain"
)

// consecutiveLossLimit and the two auto-recovery windows back the trigger
// table below; DAILY_LOSS and CONSECUTIVE_LOSSES auto-recover,
// PORTFOLIO_LOSS/VOLATILITY/EXTERNAL require a manual Clear.
const (
	consecutiveLossLimit = 5
	dailyLossRecovery = 24 * time.Hour
	consecutiveLossRecovery = 4 * time.Hour
)

// Config carries the portfolio-sized thresholds the breaker checks against.
type Config struct {
	MaxPortfolioSizeUSD decimal.Decimal
	DailyLossLimitPercent decimal.Decimal
	CircuitBreakerLossPercent decimal.Decimal
	VolatilitySpikeThreshold decimal.Decimal
}

// Breaker is the global trading halt. An active event of any type blocks
// every new position-opening decision until cleared.
type Breaker struct {
	mu sync.RWMutex
	cfg Config
	log zerolog.Logger
	active map[domain.BreakerType]domain.CircuitBreakerEvent

	consecutiveLosses int
}

// New builds a Breaker with no active events.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg: cfg,
		log: log.With().Str("component", "circuit_breaker").Logger(),
		active: make(map[domain.BreakerType]domain.CircuitBreakerEvent),
	}
}

// IsTripped reports whether any active breaker currently forbids opens,
// clearing auto-recovered events as a side effect of the check.
func (b *Breaker) IsTripped() (bool, []domain.CircuitBreakerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireAutoRecovered(time.Now())

	if len(b.active) == 0 {
		return false, nil
	}
	events := make([]domain.CircuitBreakerEvent, 0, len(b.active))
	for _, e := range b.active {
		events = append(events, e)
	}
	return true, events
}

func (b *Breaker) expireAutoRecovered(now time.Time) {
	for t, e := range b.active {
		if e.AutoRecoveryAt != nil && !now.Before(*e.AutoRecoveryAt) {
			delete(b.active, t)
			b.log.Info().Str("type", string(t)).Msg("circuit breaker auto-recovered")
		}
	}
}

// CheckDailyLoss trips DAILY_LOSS when dailyPnL breaches
// -daily_loss_limit_percent * max_portfolio_size.
func (b *Breaker) CheckDailyLoss(dailyPnL decimal.Decimal) {
	threshold := b.cfg.DailyLossLimitPercent.Mul(b.cfg.MaxPortfolioSizeUSD).Neg()
	if dailyPnL.GreaterThan(threshold) {
		return
	}
	b.trip(domain.BreakerDailyLoss, dailyPnL.Abs(), threshold.Abs(), "daily P&L breached daily_loss_limit_percent", durPtr(dailyLossRecovery))
}

// CheckPortfolioLoss trips PORTFOLIO_LOSS when cumulativePnL breaches
// -circuit_breaker_loss_percent * max_portfolio_size. Recovery is manual.
func (b *Breaker) CheckPortfolioLoss(cumulativePnL decimal.Decimal) {
	threshold := b.cfg.CircuitBreakerLossPercent.Mul(b.cfg.MaxPortfolioSizeUSD).Neg()
	if cumulativePnL.GreaterThan(threshold) {
		return
	}
	b.trip(domain.BreakerPortfolioLoss, cumulativePnL.Abs(), threshold.Abs(), "cumulative P&L breached circuit_breaker_loss_percent", nil)
}

// RecordTradeOutcome updates the consecutive-loss counter and trips
// CONSECUTIVE_LOSSES once the streak reaches the limit.
func (b *Breaker) RecordTradeOutcome(won bool) {
	b.mu.Lock()
	if won {
		b.consecutiveLosses = 0
		b.mu.Unlock()
		return
	}
	b.consecutiveLosses++
	streak := b.consecutiveLosses
	b.mu.Unlock()

	if streak >= consecutiveLossLimit {
		b.trip(domain.BreakerConsecutiveLosses, decimal.NewFromInt(int64(streak)), decimal.NewFromInt(consecutiveLossLimit),
			"consecutive losing trades reached limit", durPtr(consecutiveLossRecovery))
	}
}

// CheckVolatility trips VOLATILITY when observed portfolio volatility
// exceeds the configured spike threshold. Recovery is manual.
func (b *Breaker) CheckVolatility(observed decimal.Decimal) {
	if observed.LessThan(b.cfg.VolatilitySpikeThreshold) {
		return
	}
	b.trip(domain.BreakerVolatility, observed, b.cfg.VolatilitySpikeThreshold, "portfolio volatility spike threshold exceeded", nil)
}

// TripExternal records an operator-initiated halt. Recovery is manual.
func (b *Breaker) TripExternal(reason string) {
	b.trip(domain.BreakerExternal, decimal.Zero, decimal.Zero, reason, nil)
}

// Clear manually clears one breaker type (the manual override path for
// operator intervention).
func (b *Breaker) Clear(t domain.BreakerType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, t)
	b.log.Info().Str("type", string(t)).Msg("circuit breaker manually cleared")
}

// EmergencyStop trips the external breaker type, closing the gate entirely
// and forbidding new opens. It does not itself touch open positions —
// portfolio.Manager.EmergencyStop calls this and then submits every open
// position for immediate closure.
func (b *Breaker) EmergencyStop(reason string) {
	b.trip(domain.BreakerExternal, decimal.Zero, decimal.Zero, "emergency stop: "+reason, nil)
}

func (b *Breaker) trip(t domain.BreakerType, value, threshold decimal.Decimal, reason string, recoverAfter *time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, already := b.active[t]; already {
		return
	}
	event := domain.CircuitBreakerEvent{
		Type: t,
		TriggerValue: value,
		ThresholdValue: threshold,
		TriggeredAt: time.Now(),
		Reason: reason,
	}
	if recoverAfter != nil {
		at := event.TriggeredAt.Add(*recoverAfter)
		event.AutoRecoveryAt = &at
	}
	b.active[t] = event
	b.log.Warn().
	Str("type", string(t)).
	Str("trigger_value", value.StringFixed(4)).
	Str("threshold", threshold.StringFixed(4)).
	Str("reason", reason).
	Msg("circuit breaker tripped")
}

func durPtr(d time.Duration) *time.Duration { return &d }
