package breaker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/domain"
)

func testConfig() Config {
	return Config{
		MaxPortfolioSizeUSD:       decimal.NewFromInt(10000),
		DailyLossLimitPercent:     decimal.NewFromFloat(0.05),
		CircuitBreakerLossPercent: decimal.NewFromFloat(0.20),
		VolatilitySpikeThreshold:  decimal.NewFromFloat(0.5),
	}
}

func TestCheckDailyLoss_TripsAtLimit(t *testing.T) {
	b := New(testConfig())
	b.CheckDailyLoss(decimal.NewFromInt(-500))
	tripped, events := b.IsTripped()
	require.True(t, tripped)
	require.Len(t, events, 1)
	require.Equal(t, domain.BreakerDailyLoss, events[0].Type)
	require.NotNil(t, events[0].AutoRecoveryAt)
}

func TestCheckDailyLoss_BelowLimitDoesNotTrip(t *testing.T) {
	b := New(testConfig())
	b.CheckDailyLoss(decimal.NewFromInt(-100))
	tripped, _ := b.IsTripped()
	require.False(t, tripped)
}

func TestCheckPortfolioLoss_ManualRecoveryOnly(t *testing.T) {
	b := New(testConfig())
	b.CheckPortfolioLoss(decimal.NewFromInt(-3000))
	_, events := b.IsTripped()
	require.Len(t, events, 1)
	require.Nil(t, events[0].AutoRecoveryAt)
}

func TestRecordTradeOutcome_TripsAtFiveConsecutiveLosses(t *testing.T) {
	b := New(testConfig())
	for i := 0; i < 4; i++ {
		b.RecordTradeOutcome(false)
	}
	tripped, _ := b.IsTripped()
	require.False(t, tripped)

	b.RecordTradeOutcome(false)
	tripped, events := b.IsTripped()
	require.True(t, tripped)
	require.Equal(t, domain.BreakerConsecutiveLosses, events[0].Type)
}

func TestRecordTradeOutcome_WinResetsStreak(t *testing.T) {
	b := New(testConfig())
	for i := 0; i < 4; i++ {
		b.RecordTradeOutcome(false)
	}
	b.RecordTradeOutcome(true)
	b.RecordTradeOutcome(false)
	tripped, _ := b.IsTripped()
	require.False(t, tripped, "win should reset the consecutive-loss streak")
}

func TestClear_RemovesActiveBreaker(t *testing.T) {
	b := New(testConfig())
	b.TripExternal("operator halt")
	b.Clear(domain.BreakerExternal)
	tripped, _ := b.IsTripped()
	require.False(t, tripped)
}

func TestIsTripped_AutoRecoversPastDeadline(t *testing.T) {
	b := New(testConfig())
	b.trip(domain.BreakerDailyLoss, decimal.NewFromInt(1), decimal.NewFromInt(1), "test", durPtr(-time.Second))
	tripped, _ := b.IsTripped()
	require.False(t, tripped, "an auto-recovery deadline already in the past should self-clear")
}

func TestEmergencyStop_TripsExternal(t *testing.T) {
	b := New(testConfig())
	b.EmergencyStop("operator kill switch")
	tripped, events := b.IsTripped()
	require.True(t, tripped)
	require.Equal(t, domain.BreakerExternal, events[0].Type)
}
