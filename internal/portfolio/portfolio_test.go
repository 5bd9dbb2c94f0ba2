package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/breaker"
	"github.com/dexsentinel/engine/internal/domain"
)

func testConfig() Config {
	return Config{MaxPositionSizeUSD: decimal.NewFromInt(2000), MaxPortfolioSize: 10}
}

func TestCanOpenPosition_WithinAllLimitsAllowed(t *testing.T) {
	m := New(testConfig(), nil, nil)
	m.SeedCapital(1, decimal.NewFromInt(10000))
	ok, reason := m.CanOpenPosition(decimal.NewFromInt(500), 1)
	require.True(t, ok, reason)
}

func TestCanOpenPosition_ExceedsMaxPositionSize(t *testing.T) {
	m := New(testConfig(), nil, nil)
	m.SeedCapital(1, decimal.NewFromInt(10000))
	ok, reason := m.CanOpenPosition(decimal.NewFromInt(5000), 1)
	require.False(t, ok)
	require.Contains(t, reason, "max_position_size_usd")
}

func TestCanOpenPosition_ExceedsAvailableCapital(t *testing.T) {
	m := New(testConfig(), nil, nil)
	m.SeedCapital(1, decimal.NewFromInt(100))
	ok, reason := m.CanOpenPosition(decimal.NewFromInt(500), 1)
	require.False(t, ok)
	require.Contains(t, reason, "available_capital")
}

func TestCanOpenPosition_ExceedsConcentrationCap(t *testing.T) {
	m := New(testConfig(), nil, nil)
	m.SeedCapital(1, decimal.NewFromInt(10000))
	// 15% cap of a $10,000 total means anything over $1,500 trips it, even
	// though it's under max_position_size_usd and available_capital.
	ok, reason := m.CanOpenPosition(decimal.NewFromInt(1800), 1)
	require.False(t, ok)
	require.Contains(t, reason, "concentration")
}

func TestCanOpenPosition_BlockedByActiveBreaker(t *testing.T) {
	cb := breaker.New(breaker.Config{
		MaxPortfolioSizeUSD:       decimal.NewFromInt(10000),
		DailyLossLimitPercent:     decimal.NewFromFloat(0.05),
		CircuitBreakerLossPercent: decimal.NewFromFloat(0.2),
	})
	cb.TripExternal("manual halt")
	m := New(testConfig(), cb, nil)
	m.SeedCapital(1, decimal.NewFromInt(10000))
	ok, reason := m.CanOpenPosition(decimal.NewFromInt(100), 1)
	require.False(t, ok)
	require.Contains(t, reason, "circuit breaker")
}

func TestOpenAndClose_AdjustsAvailableCapital(t *testing.T) {
	m := New(testConfig(), nil, nil)
	m.SeedCapital(1, decimal.NewFromInt(10000))
	pos := domain.Position{PositionID: "p1", TokenAddress: "0xabc", ChainID: 1,
		Quantity: decimal.NewFromInt(100), EntryPriceUSD: decimal.NewFromInt(1),
		CurrentPriceUSD: decimal.NewFromInt(1), InitialValueUSD: decimal.NewFromInt(100), OpenedAt: time.Now()}
	m.Open(1, pos)
	require.Len(t, m.Positions(), 1)

	m.Close(1, "p1")
	require.Len(t, m.Positions(), 0)
}

func TestUpdatePrice_TriggersStopLoss(t *testing.T) {
	var exited domain.Position
	var reason string
	m := New(testConfig(), nil, func(p domain.Position, r string) { exited = p; reason = r })
	m.SeedCapital(1, decimal.NewFromInt(10000))
	stopLoss := decimal.NewFromFloat(0.8)
	pos := domain.Position{PositionID: "p1", TokenAddress: "0xabc", ChainID: 1,
		Quantity: decimal.NewFromInt(100), EntryPriceUSD: decimal.NewFromInt(1),
		CurrentPriceUSD: decimal.NewFromInt(1), InitialValueUSD: decimal.NewFromInt(100),
		StopLossPrice: &stopLoss, OpenedAt: time.Now()}
	m.Open(1, pos)

	m.UpdatePrice(1, "0xabc", decimal.NewFromFloat(0.75))
	require.Equal(t, "p1", exited.PositionID)
	require.Equal(t, "stop_loss", reason)
}

func TestUpdatePrice_TriggersTakeProfit(t *testing.T) {
	var reason string
	m := New(testConfig(), nil, func(p domain.Position, r string) { reason = r })
	m.SeedCapital(1, decimal.NewFromInt(10000))
	takeProfit := decimal.NewFromFloat(1.5)
	pos := domain.Position{PositionID: "p1", TokenAddress: "0xabc", ChainID: 1,
		Quantity: decimal.NewFromInt(100), EntryPriceUSD: decimal.NewFromInt(1),
		CurrentPriceUSD: decimal.NewFromInt(1), InitialValueUSD: decimal.NewFromInt(100),
		TakeProfitPrice: &takeProfit, OpenedAt: time.Now()}
	m.Open(1, pos)

	m.UpdatePrice(1, "0xabc", decimal.NewFromFloat(1.6))
	require.Equal(t, "take_profit", reason)
}

func TestTotalValueUSD_SumsCapitalAndPositions(t *testing.T) {
	m := New(testConfig(), nil, nil)
	m.SeedCapital(1, decimal.NewFromInt(9900))
	pos := domain.Position{PositionID: "p1", TokenAddress: "0xabc", ChainID: 1,
		Quantity: decimal.NewFromInt(100), EntryPriceUSD: decimal.NewFromInt(1),
		CurrentPriceUSD: decimal.NewFromInt(1), InitialValueUSD: decimal.NewFromInt(100), OpenedAt: time.Now()}
	m.Open(1, pos)
	require.True(t, m.TotalValueUSD().Equal(decimal.NewFromInt(9900)))
}
