package relay

import (
	"github.com/shopspring/decimal"
)

// MEVRiskInput bundles the three signals the MEV risk estimator combines:
// sandwich-pattern density, pending-mempool same-pool activity, and the
// Market analyzer's coordinated-trading/volume-spike score.
type MEVRiskInput struct {
	// SandwichPatternCount is the number of same-pool trades in the last N
	// blocks with alternating buy/sell direction (a sandwich signature).
	SandwichPatternCount int
	// PendingSamePoolTxCount is how many pending mempool transactions touch
	// this pool right now.
	PendingSamePoolTxCount int
	// MarketCoordinationScore is the Market risk analyzer's [0,1]
	// volume-spike/coordinated-trading score for this pair.
	MarketCoordinationScore decimal.Decimal
}

// sandwichSaturation and pendingSaturation are the counts above which their
// respective signals are considered maximally risky; values beyond them
// don't push the estimate past 1.0.
const (
	sandwichSaturation = 5
	pendingSaturation = 10
)

// sandwichWeight, pendingWeight, marketWeight sum to 1 and set each
// signal's share of the combined MEV risk score.
var (
	sandwichWeight = decimal.NewFromFloat(0.45)
	pendingWeight = decimal.NewFromFloat(0.25)
	marketWeight = decimal.NewFromFloat(0.30)
)

// MEVRiskEstimator combines recent sandwich activity, mempool pressure and
// market-level coordination signals into a single [0,1] MEV risk score.
type MEVRiskEstimator struct{}

// NewMEVRiskEstimator constructs a stateless estimator.
func NewMEVRiskEstimator() MEVRiskEstimator { return MEVRiskEstimator{} }

// Estimate computes the combined MEV risk score.
func (MEVRiskEstimator) Estimate(in MEVRiskInput) decimal.Decimal {
	sandwich := saturate(in.SandwichPatternCount, sandwichSaturation)
	pending := saturate(in.PendingSamePoolTxCount, pendingSaturation)
	market := clamp01(in.MarketCoordinationScore)

	score := sandwich.Mul(sandwichWeight).
	Add(pending.Mul(pendingWeight)).
	Add(market.Mul(marketWeight))
	return clamp01(score)
}

func saturate(count, max int) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	if count >= max {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(count)).Div(decimal.NewFromInt(int64(max)))
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return d
}
