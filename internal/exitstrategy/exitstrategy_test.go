package exitstrategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBuild_TakeProfitTiersSumToOneHundredPercent(t *testing.T) {
	for _, st := range []StrategyType{StrategyConservative, StrategyBalanced, StrategyAggressive, StrategyScaled} {
		strat, err := Build(Input{
			StrategyType:      st,
			RiskScore:         decimal.NewFromFloat(0.2),
			VolatilityPercent: decimal.NewFromFloat(0.1),
		})
		require.NoError(t, err)
		require.True(t, TakeProfitSumOK(strat.Levels), "strategy %s take-profit tiers must sum to ~100%%", st)
	}
}

func TestBuild_AlwaysHasAtLeastOneStopLoss(t *testing.T) {
	strat, err := Build(Input{StrategyType: StrategyBalanced})
	require.NoError(t, err)

	var stopLosses int
	for _, l := range strat.Levels {
		if l.Kind == LevelStopLoss {
			stopLosses++
			require.True(t, l.PercentGain.LessThan(decimal.Zero))
		}
	}
	require.GreaterOrEqual(t, stopLosses, 1)
}

func TestStopLossPercent_ClampedToInvariantRange(t *testing.T) {
	strat, err := Build(Input{
		StrategyType:      StrategyBalanced,
		RiskScore:         decimal.NewFromFloat(1.0),
		VolatilityPercent: decimal.NewFromFloat(1.0),
		MarketStress:      decimal.NewFromFloat(1.0),
	})
	require.NoError(t, err)

	sl := strat.Levels[0].PercentGain
	require.True(t, sl.GreaterThanOrEqual(decimal.NewFromFloat(-0.50)))
	require.True(t, sl.LessThanOrEqual(decimal.NewFromFloat(-0.02)))
}

func TestTrailingConfig_EnabledForLowRiskBullRegime(t *testing.T) {
	strat, err := Build(Input{
		StrategyType:      StrategyBalanced,
		RiskScore:         decimal.NewFromFloat(0.1),
		VolatilityPercent: decimal.NewFromFloat(0.3),
		Regime:            RegimeBull,
	})
	require.NoError(t, err)
	require.True(t, strat.Trailing.Enabled)
}

func TestTrailingConfig_DisabledByDefault(t *testing.T) {
	strat, err := Build(Input{
		StrategyType:      StrategyBalanced,
		RiskScore:         decimal.NewFromFloat(0.6),
		VolatilityPercent: decimal.NewFromFloat(0.4),
		MarketStress:      decimal.NewFromFloat(0.6),
		Regime:            RegimeBear,
	})
	require.NoError(t, err)
	require.False(t, strat.Trailing.Enabled)
}

func TestEmergencyConditions_AlwaysPresent(t *testing.T) {
	strat, err := Build(Input{StrategyType: StrategyAggressive})
	require.NoError(t, err)
	require.Len(t, strat.Emergencies, 3)
}
