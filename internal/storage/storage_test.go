package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAndClosePosition_RoundTrips(t *testing.T) {
	s := testStore(t)
	pos := domain.Position{
		PositionID: "p1", TokenAddress: "0xabc", ChainID: 1,
		Quantity: decimal.NewFromInt(100), EntryPriceUSD: decimal.NewFromInt(1),
		InitialValueUSD: decimal.NewFromInt(100), OpenedAt: time.Now(),
	}
	require.NoError(t, s.OpenPosition(pos))

	open, err := s.OpenPositions()
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "p1", open[0].PositionID)

	require.NoError(t, s.ClosePosition("p1", decimal.NewFromFloat(1.2)))
	open, err = s.OpenPositions()
	require.NoError(t, err)
	require.Len(t, open, 0)
}

func TestRecordTrade_Persists(t *testing.T) {
	s := testStore(t)
	exec := domain.TradeExecution{
		TradeID: "t1",
		Decision: domain.TradeDecision{
			PairID: domain.PairID{ChainID: 1, Token0: "A", Token1: "B"},
			Action: domain.ActionBuy,
		},
		Status:        domain.ExecCompleted,
		CorrelationID: "corr-1",
	}
	require.NoError(t, s.RecordTrade(exec))
}

func TestRecordCircuitBreakerEvent_Persists(t *testing.T) {
	s := testStore(t)
	event := domain.CircuitBreakerEvent{
		Type:           domain.BreakerDailyLoss,
		TriggerValue:   decimal.NewFromInt(500),
		ThresholdValue: decimal.NewFromInt(500),
		TriggeredAt:    time.Now(),
		Reason:         "daily loss limit",
	}
	require.NoError(t, s.RecordCircuitBreakerEvent(event))
}

func TestRecordRiskAssessment_Persists(t *testing.T) {
	s := testStore(t)
	a := domain.RiskAssessment{
		PairID:       domain.PairID{ChainID: 1, Token0: "A", Token1: "B"},
		OverallScore: decimal.NewFromFloat(0.3),
		Confidence:   decimal.NewFromFloat(0.9),
		IsTradeable:  true,
		AssessedAt:   time.Now(),
	}
	require.NoError(t, s.RecordRiskAssessment(a))
}
