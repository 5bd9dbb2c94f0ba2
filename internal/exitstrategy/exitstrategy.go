// Package exitstrategy implements the Exit Strategy Manager:
// a stop-loss/take-profit ladder, optional trailing-stop configuration, and
// emergency-exit conditions, all computed from the same risk/technical
// signals the Position Sizer consumes.
package exitstrategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StrategyType selects the take-profit tier shape.
type StrategyType string

const (
	StrategyConservative StrategyType = "CONSERVATIVE" // 1 tier
	StrategyBalanced StrategyType = "BALANCED" // 2 tiers
	StrategyAggressive StrategyType = "AGGRESSIVE" // 3 tiers
	StrategyScaled StrategyType = "SCALED" // 4 tiers
)

// MarketRegime is a coarse read of prevailing conditions, used only to gate
// the trailing-stop decision.
type MarketRegime string

const (
	RegimeBull MarketRegime = "BULL"
	RegimeBear MarketRegime = "BEAR"
	RegimeSideways MarketRegime = "SIDEWAYS"
)

// ExitLevelKind distinguishes the ladder's level types.
type ExitLevelKind string

const (
	LevelStopLoss ExitLevelKind = "STOP_LOSS"
	LevelTakeProfit ExitLevelKind = "TAKE_PROFIT"
	LevelTimeBased ExitLevelKind = "TIME_BASED"
	LevelVolatilitySpike ExitLevelKind = "VOLATILITY_SPIKE"
)

// ExitLevel is one rung of the ladder an open position is monitored against.
type ExitLevel struct {
	Kind ExitLevelKind
	PercentGain decimal.Decimal // negative for stop-loss, positive for take-profit
	PositionPercent decimal.Decimal // fraction of the position closed if triggered
	TriggerAfter *decimal.Decimal
}

// TrailingStopConfig describes if/how a trailing stop follows price once
// activated.
type TrailingStopConfig struct {
	Enabled bool
	ActivationPct decimal.Decimal // profit % that must be reached before trailing begins
	TrailDistancePct decimal.Decimal // distance kept behind the high-water mark
}

// EmergencyConditionKind enumerates the immediate-exit triggers checked
// independently of the take-profit/stop-loss ladder.
type EmergencyConditionKind string

const (
	EmergencyMarketCrash EmergencyConditionKind = "MARKET_CRASH"
	EmergencyLiquidityCrisis EmergencyConditionKind = "LIQUIDITY_CRISIS"
	EmergencyRiskDeterioration EmergencyConditionKind = "RISK_DETERIORATION"
)

// EmergencyCondition is one standing rule checked on every price/risk update,
// independent of the ladder.
type EmergencyCondition struct {
	Kind EmergencyConditionKind
	Threshold decimal.Decimal
	WindowMs int64
}

// ExitStrategy is the Exit Strategy Manager's complete output for one
// position: the ladder, the trailing-stop config, and the standing emergency
// conditions.
type ExitStrategy struct {
	StrategyType StrategyType
	Levels []ExitLevel
	Trailing TrailingStopConfig
	Emergencies []EmergencyCondition
}

// Input bundles the signals the strategy shape and stop-loss percentage
// depend on.
type Input struct {
	StrategyType StrategyType

	RiskScore decimal.Decimal // [0,1]
	VolatilityPercent decimal.Decimal
	MarketStress decimal.Decimal // [0,1], e.g. from the Market analyzer's coordinated-activity score
	LiquidityUSD decimal.Decimal
	PositionSizeUSD decimal.Decimal
	Regime MarketRegime

	MinStopLossPercent decimal.Decimal // e.g. -0.50
	MaxStopLossPercent decimal.Decimal // e.g. -0.02
	DefaultStopLossPercent decimal.Decimal // e.g. -0.10
}

var (
	defaultMinSL = decimal.NewFromFloat(-0.50)
	defaultMaxSL = decimal.NewFromFloat(-0.02)

	riskSLWeight = decimal.NewFromFloat(0.10)
	volSLWeight = decimal.NewFromFloat(0.20)
	stressSLWeight = decimal.NewFromFloat(0.05)

	liquidityTrailThreshold = decimal.NewFromInt(5000)
	trailLiquidityScoreMin = decimal.NewFromFloat(0.7)
	bullTrailRiskMax = decimal.NewFromFloat(0.3)
)

// Build computes a complete ExitStrategy
func Build(in Input) (ExitStrategy, error) {
	sl, err := stopLossPercent(in)
	if err != nil {
		return ExitStrategy{}, err
	}

	levels := []ExitLevel{{Kind: LevelStopLoss, PercentGain: sl, PositionPercent: decimal.NewFromInt(1)}}
	levels = append(levels, takeProfitLevels(in.StrategyType)...)

	return ExitStrategy{
		StrategyType: in.StrategyType,
		Levels: levels,
		Trailing: trailingConfig(in),
		Emergencies: emergencyConditions(),
	}, nil
}

// stopLossPercent computes clamp(min_sl, max_sl, default_sl + 10*risk +
// 20*volatility + 5*stress), All inputs are magnitudes;
// the result is always negative.
func stopLossPercent(in Input) (decimal.Decimal, error) {
	minSL := in.MinStopLossPercent
	if minSL.IsZero() {
		minSL = defaultMinSL
	}
	maxSL := in.MaxStopLossPercent
	if maxSL.IsZero() {
		maxSL = defaultMaxSL
	}
	defaultSL := in.DefaultStopLossPercent
	if defaultSL.IsZero() {
		defaultSL = decimal.NewFromFloat(-0.15)
	}

	deterioration := in.RiskScore.Mul(riskSLWeight).
	Add(in.VolatilityPercent.Mul(volSLWeight)).
	Add(in.MarketStress.Mul(stressSLWeight))
	// deterioration widens the stop (more negative) as risk/vol/stress rise.
	sl := defaultSL.Sub(deterioration)

	// clamp(min, max): min is the most negative allowed value, max is the
	// least negative (closest to zero).
	if sl.LessThan(minSL) {
		sl = minSL
	}
	if sl.GreaterThan(maxSL) {
		sl = maxSL
	}
	if sl.GreaterThan(decimal.NewFromFloat(-0.02)) || sl.LessThan(decimal.NewFromFloat(-0.50)) {
		return decimal.Zero, fmt.Errorf("exitstrategy: computed stop-loss %s out of the [-50%%,-2%%] invariant range", sl.StringFixed(4))
	}
	return sl, nil
}

// takeProfitLevels returns the tier ladder for a strategy type. Tier
// percentages always sum to exactly 100% of the position, enforced here by construction rather than a fix-up pass.
func takeProfitLevels(t StrategyType) []ExitLevel {
	switch t {
	case StrategyConservative:
		return []ExitLevel{
			{Kind: LevelTakeProfit, PercentGain: decimal.NewFromFloat(0.15), PositionPercent: decimal.NewFromInt(1)},
		}
	case StrategyAggressive:
		return []ExitLevel{
			{Kind: LevelTakeProfit, PercentGain: decimal.NewFromFloat(0.25), PositionPercent: decimal.NewFromFloat(0.40)},
			{Kind: LevelTakeProfit, PercentGain: decimal.NewFromFloat(0.75), PositionPercent: decimal.NewFromFloat(0.35)},
			{Kind: LevelTakeProfit, PercentGain: decimal.NewFromFloat(2.00), PositionPercent: decimal.NewFromFloat(0.25)},
		}
	case StrategyScaled:
		return []ExitLevel{
			{Kind: LevelTakeProfit, PercentGain: decimal.NewFromFloat(0.10), PositionPercent: decimal.NewFromFloat(0.25)},
			{Kind: LevelTakeProfit, PercentGain: decimal.NewFromFloat(0.25), PositionPercent: decimal.NewFromFloat(0.25)},
			{Kind: LevelTakeProfit, PercentGain: decimal.NewFromFloat(0.50), PositionPercent: decimal.NewFromFloat(0.25)},
			{Kind: LevelTakeProfit, PercentGain: decimal.NewFromFloat(1.00), PositionPercent: decimal.NewFromFloat(0.25)},
		}
	case StrategyBalanced:
		fallthrough
	default:
		return []ExitLevel{
			{Kind: LevelTakeProfit, PercentGain: decimal.NewFromFloat(0.20), PositionPercent: decimal.NewFromFloat(0.50)},
			{Kind: LevelTakeProfit, PercentGain: decimal.NewFromFloat(0.50), PositionPercent: decimal.NewFromFloat(0.50)},
		}
	}
}

// trailingConfig enables a trailing stop under three disjunctive
// conditions: low-risk bull regime, high liquidity with a meaningful
// position size, or low-vol/low-stress generally.
func trailingConfig(in Input) TrailingStopConfig {
	lowVolLowStress := in.VolatilityPercent.LessThan(decimal.NewFromFloat(0.10)) && in.MarketStress.LessThan(decimal.NewFromFloat(0.2))
	bullLowRisk := in.Regime == RegimeBull && in.RiskScore.LessThan(bullTrailRiskMax)
	liquidDeepPosition := in.LiquidityUSD.GreaterThan(decimal.Zero) &&
	trailLiquidityScoreMin.LessThanOrEqual(liquidityScore(in.LiquidityUSD)) &&
	in.PositionSizeUSD.GreaterThan(liquidityTrailThreshold)

	enabled := bullLowRisk || liquidDeepPosition || lowVolLowStress
	return TrailingStopConfig{
		Enabled: enabled,
		ActivationPct: decimal.NewFromFloat(0.10),
		TrailDistancePct: decimal.NewFromFloat(0.08),
	}
}

// liquidityScore maps raw USD liquidity onto [0,1] for the trailing-stop
// gate, saturating at $1M.
func liquidityScore(usd decimal.Decimal) decimal.Decimal {
	ceiling := decimal.NewFromInt(1_000_000)
	if usd.GreaterThanOrEqual(ceiling) {
		return decimal.NewFromInt(1)
	}
	return usd.Div(ceiling)
}

// emergencyConditions returns the standing, strategy-independent rules:
// a 20% drop in 15 minutes, a >2% spread, or a +0.2 risk-score jump each
// force an immediate market exit regardless of the ladder.
func emergencyConditions() []EmergencyCondition {
	return []EmergencyCondition{
		{Kind: EmergencyMarketCrash, Threshold: decimal.NewFromFloat(-0.20), WindowMs: 15 * 60 * 1000},
		{Kind: EmergencyLiquidityCrisis, Threshold: decimal.NewFromFloat(0.02)},
		{Kind: EmergencyRiskDeterioration, Threshold: decimal.NewFromFloat(0.20)},
	}
}

// TakeProfitSumOK verifies that take-profit tier PositionPercents sum to
// 100% within ±1%.
func TakeProfitSumOK(levels []ExitLevel) bool {
	sum := decimal.Zero
	for _, l := range levels {
		if l.Kind == LevelTakeProfit {
			sum = sum.Add(l.PositionPercent)
		}
	}
	diff := sum.Sub(decimal.NewFromInt(1)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(0.01))
}
