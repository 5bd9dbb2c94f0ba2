// Package portfolio implements the Portfolio Manager:
// per-chain shards aggregated into a consistent global view, the
// can_open_position pre-trade gate, and price-update fan-out that
// re-evaluates stop-loss/take-profit on every mark.
package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/breaker"
	"github.com/dexsentinel/engine/internal/domain"
)

// concentrationCap is the single-position concentration limit:
// size / total_portfolio_value ≤ 0.15.
var concentrationCap = decimal.NewFromFloat(0.15)

// shard is one chain's slice of the portfolio.
type shard struct {
	chainID int64
	availableCapital decimal.Decimal
	positions map[string]domain.Position // keyed by PositionID
}

// Config carries the sizing limits the pre-trade gate checks against.
type Config struct {
	MaxPositionSizeUSD decimal.Decimal
	MaxPortfolioSize int
}

// Manager tracks positions across chains, answers the pre-trade gate, and
// fans price updates out to stop-loss/take-profit re-evaluation.
type Manager struct {
	mu sync.RWMutex
	cfg Config
	log zerolog.Logger
	cb *breaker.Breaker
	shards map[int64]*shard

	onExit func(position domain.Position, reason string)
}

// New builds a Manager. onExit is called (outside the manager's lock) when a
// price update trips a position's stop-loss or take-profit; wire it to the
// executor to actually submit the closing trade.
func New(cfg Config, cb *breaker.Breaker, onExit func(domain.Position, string)) *Manager {
	return &Manager{
		cfg: cfg,
		log: log.With().Str("component", "portfolio_manager").Logger(),
		cb: cb,
		shards: make(map[int64]*shard),
		onExit: onExit,
	}
}

func (m *Manager) shardFor(chainID int64) *shard {
	s, ok := m.shards[chainID]
	if !ok {
		s = &shard{chainID: chainID, positions: make(map[string]domain.Position)}
		m.shards[chainID] = s
	}
	return s
}

// SeedCapital sets a chain shard's starting available capital.
func (m *Manager) SeedCapital(chainID int64, amountUSD decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shardFor(chainID).availableCapital = amountUSD
}

// TotalValueUSD aggregates every shard's available capital plus the
// mark-to-market value of every open position, per the PortfolioState
// invariant Σ position_value + available_capital = total_value.
func (m *Manager) TotalValueUSD() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalValueLocked()
}

func (m *Manager) totalValueLocked() decimal.Decimal {
	total := decimal.Zero
	for _, s := range m.shards {
		total = total.Add(s.availableCapital)
		for _, p := range s.positions {
			if p.ClosedAt == nil {
				total = total.Add(p.CurrentValueUSD())
			}
		}
	}
	return total
}

func (m *Manager) openPositionCount() int {
	n := 0
	for _, s := range m.shards {
		for _, p := range s.positions {
			if p.ClosedAt == nil {
				n++
			}
		}
	}
	return n
}

// CanOpenPosition implements the 5-check pre-trade gate: breaker state, open
// position count, max position size, available capital, concentration cap.
func (m *Manager) CanOpenPosition(sizeUSD decimal.Decimal, chainID int64) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cb != nil {
		if tripped, events := m.cb.IsTripped(); tripped {
			return false, fmt.Sprintf("circuit breaker active: %s", events[0].Type)
		}
	}
	if m.cfg.MaxPortfolioSize > 0 && m.openPositionCount() >= m.cfg.MaxPortfolioSize {
		return false, "max_portfolio_size reached"
	}
	if m.cfg.MaxPositionSizeUSD.GreaterThan(decimal.Zero) && sizeUSD.GreaterThan(m.cfg.MaxPositionSizeUSD) {
		return false, "size exceeds max_position_size_usd"
	}

	s := m.shards[chainID]
	available := decimal.Zero
	if s != nil {
		available = s.availableCapital
	}
	if sizeUSD.GreaterThan(available) {
		return false, "size exceeds available_capital"
	}

	total := m.totalValueLocked()
	if total.GreaterThan(decimal.Zero) && sizeUSD.Div(total).GreaterThan(concentrationCap) {
		return false, "size exceeds single-position concentration cap"
	}

	return true, ""
}

// Open records a newly-opened position and debits the chain shard's
// available capital.
func (m *Manager) Open(chainID int64, p domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.shardFor(chainID)
	s.availableCapital = s.availableCapital.Sub(p.InitialValueUSD)
	s.positions[p.PositionID] = p
}

// Close marks a position closed and credits its mark-to-market value back
// to available capital.
func (m *Manager) Close(chainID int64, positionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.shardFor(chainID)
	p, ok := s.positions[positionID]
	if !ok {
		return
	}
	now := time.Now()
	p.ClosedAt = &now
	s.availableCapital = s.availableCapital.Add(p.CurrentValueUSD())
	s.positions[positionID] = p
}

// UpdatePrice marks every open position on chainID for tokenAddress to the
// new price, then re-evaluates stop-loss/take-profit, invoking onExit for
// any position that crosses its exit levels.
func (m *Manager) UpdatePrice(chainID int64, tokenAddress string, priceUSD decimal.Decimal) {
	m.mu.Lock()
	s := m.shardFor(chainID)
	var toExit []struct {
		position domain.Position
		reason string
	}
	for id, p := range s.positions {
		if p.ClosedAt != nil || p.TokenAddress != tokenAddress {
			continue
		}
		p.CurrentPriceUSD = priceUSD
		if p.CurrentValueUSD().GreaterThan(p.HighWaterMark) {
			p.HighWaterMark = p.CurrentValueUSD()
		}
		s.positions[id] = p

		if p.StopLossPrice != nil && priceUSD.LessThanOrEqual(*p.StopLossPrice) {
			toExit = append(toExit, struct {
					position domain.Position
					reason string
				}{p, "stop_loss"})
		} else if p.TakeProfitPrice != nil && priceUSD.GreaterThanOrEqual(*p.TakeProfitPrice) {
			toExit = append(toExit, struct {
					position domain.Position
					reason string
				}{p, "take_profit"})
		}
	}
	m.mu.Unlock()

	for _, e := range toExit {
		if m.onExit != nil {
			m.onExit(e.position, e.reason)
		}
	}
}

// EmergencyStop trips the circuit breaker's manual external gate (forbidding
// new opens) and immediately submits every open position for closure via
// onExit, the same path UpdatePrice uses for a stop-loss/take-profit
// crossing. Bookkeeping closure (Close) waits for the exit fill to confirm,
// same as any other exit.
func (m *Manager) EmergencyStop(reason string) {
	if m.cb != nil {
		m.cb.EmergencyStop(reason)
	}

	m.mu.RLock()
	var open []domain.Position
	for _, s := range m.shards {
		for _, p := range s.positions {
			if p.ClosedAt == nil {
				open = append(open, p)
			}
		}
	}
	m.mu.RUnlock()

	m.log.Warn().Int("open_positions", len(open)).Str("reason", reason).Msg("emergency stop: closing all open positions")
	for _, p := range open {
		if m.onExit != nil {
			m.onExit(p, "emergency_stop: "+reason)
		}
	}
}

// Positions returns a snapshot of every open position across all chains.
func (m *Manager) Positions() []domain.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Position
	for _, s := range m.shards {
		for _, p := range s.positions {
			if p.ClosedAt == nil {
				out = append(out, p)
			}
		}
	}
	return out
}
