// Package sizing implements the Position Sizer: six base
// sizing methods plus a chain of multiplicative adjustment factors, clamped
// to the portfolio's configured position limits.
package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Method selects which base sizing formula to apply.
type Method string

const (
	MethodFixedPercent Method = "FIXED_PERCENT"
	MethodRiskBased Method = "RISK_BASED"
	MethodKelly Method = "KELLY"
	MethodVolatilityAdjusted Method = "VOLATILITY_ADJUSTED"
	MethodConfidenceWeighted Method = "CONFIDENCE_WEIGHTED"
	MethodPortfolioHeat Method = "PORTFOLIO_HEAT"
)

// kellyFractionScale is the conservative fraction of full Kelly actually
// used.
var kellyFractionScale = decimal.NewFromFloat(0.25)

// minKellyWinRate and minKellyTradeSample gate the Kelly method off until
// enough history exists to trust a win-rate estimate.
var minKellyWinRate = decimal.NewFromFloat(0.55)

const minKellyTradeSample = 10

// Input bundles every signal a sizing method or adjustment factor might
// need. Not every method reads every field.
type Input struct {
	Method Method

	PortfolioValueUSD decimal.Decimal
	RiskScore decimal.Decimal // [0,1], from the Risk Assessment Engine
	Confidence decimal.Decimal // [0,1], from Smart-Lane or risk confidence
	VolatilityPercent decimal.Decimal // recent realized volatility, e.g. 0.15 = 15%

	HistoricalWinRate decimal.Decimal
	HistoricalAvgWinPct decimal.Decimal // average winning trade return, e.g. 0.30
	HistoricalAvgLossPct decimal.Decimal // average losing trade return, e.g. 0.15 (positive magnitude)
	HistoricalTradeCount int

	CurrentPortfolioHeatPercent decimal.Decimal // fraction of portfolio already at risk across open positions
	MaxPortfolioHeatPercent decimal.Decimal

	BasePositionPercent decimal.Decimal // used by FIXED_PERCENT
	MaxPositionSizeUSD decimal.Decimal
	MinPositionSizeUSD decimal.Decimal

	// MinPositionPercent/MaxPositionPercent bound the final fraction per
	// the invariant: min ≤ size ≤ max, OR size = 0 when capacity is
	// exhausted (positions already at MaxPositions, handled by the caller
	// zeroing PositionSizeUSD before/after Size runs).
	MinPositionPercent decimal.Decimal
	MaxPositionPercent decimal.Decimal
}

// Result is the sizer's output: both the raw fraction and the final
// dollar amount after clamping.
type Result struct {
	Method Method
	PositionPercent decimal.Decimal
	PositionSizeUSD decimal.Decimal
	AppliedAdjustments []string
}

// Size computes a position size
func Size(in Input) (Result, error) {
	base, err := baseSize(in)
	if err != nil {
		return Result{}, err
	}

	adjusted, notes := applyAdjustments(base, in)

	if !adjusted.IsZero() {
		if in.MaxPositionPercent.GreaterThan(decimal.Zero) && adjusted.GreaterThan(in.MaxPositionPercent) {
			adjusted = in.MaxPositionPercent
			notes = append(notes, "clamped to max_position_percent")
		}
		if in.MinPositionPercent.GreaterThan(decimal.Zero) && adjusted.LessThan(in.MinPositionPercent) {
			adjusted = in.MinPositionPercent
			notes = append(notes, "raised to min_position_percent")
		}
	}

	amountUSD := adjusted.Mul(in.PortfolioValueUSD)
	if in.MaxPositionSizeUSD.GreaterThan(decimal.Zero) && amountUSD.GreaterThan(in.MaxPositionSizeUSD) {
		amountUSD = in.MaxPositionSizeUSD
		notes = append(notes, "clamped to max_position_size_usd")
	}
	if in.MinPositionSizeUSD.GreaterThan(decimal.Zero) && amountUSD.LessThan(in.MinPositionSizeUSD) {
		amountUSD = decimal.Zero // below minimum viable size, skip rather than round up risk
		notes = append(notes, "below min_position_size_usd, sized to zero")
	}

	return Result{
		Method: in.Method,
		PositionPercent: adjusted,
		PositionSizeUSD: amountUSD,
		AppliedAdjustments: notes,
	}, nil
}

func baseSize(in Input) (decimal.Decimal, error) {
	switch in.Method {
	case MethodFixedPercent:
		return in.BasePositionPercent, nil

	case MethodRiskBased:
		// Inverse of risk score: a 0.2 risk score sizes fuller than a 0.7 one.
		return decimal.NewFromInt(1).Sub(in.RiskScore).Mul(in.BasePositionPercent), nil

	case MethodKelly:
		return kellySize(in), nil

	case MethodVolatilityAdjusted:
		if in.VolatilityPercent.LessThanOrEqual(decimal.Zero) {
			return in.BasePositionPercent, nil
		}
		// Higher volatility shrinks the position proportionally; a 10%
		// reference volatility sizes at exactly BasePositionPercent.
		reference := decimal.NewFromFloat(0.10)
		return in.BasePositionPercent.Mul(reference).Div(in.VolatilityPercent), nil

	case MethodConfidenceWeighted:
		return in.BasePositionPercent.Mul(in.Confidence), nil

	case MethodPortfolioHeat:
		if in.MaxPortfolioHeatPercent.LessThanOrEqual(decimal.Zero) {
			return in.BasePositionPercent, nil
		}
		remaining := in.MaxPortfolioHeatPercent.Sub(in.CurrentPortfolioHeatPercent)
		if remaining.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, nil
		}
		if remaining.GreaterThan(in.BasePositionPercent) {
			return in.BasePositionPercent, nil
		}
		return remaining, nil

	default:
		return decimal.Zero, fmt.Errorf("sizing: unknown method %q", in.Method)
	}
}

// kellySize applies the classic Kelly criterion f* = W - (1-W)/R scaled to
// quarter-Kelly, gated off below the minimum win rate or trade sample per
//
func kellySize(in Input) decimal.Decimal {
	if in.HistoricalTradeCount < minKellyTradeSample || in.HistoricalWinRate.LessThan(minKellyWinRate) {
		return in.BasePositionPercent
	}
	if in.HistoricalAvgLossPct.LessThanOrEqual(decimal.Zero) {
		return in.BasePositionPercent
	}

	winLossRatio := in.HistoricalAvgWinPct.Div(in.HistoricalAvgLossPct)
	lossRate := decimal.NewFromInt(1).Sub(in.HistoricalWinRate)
	kelly := in.HistoricalWinRate.Sub(lossRate.Div(winLossRatio))
	if kelly.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return kelly.Mul(kellyFractionScale)
}

// applyAdjustments chains the multiplicative confidence and risk-score
// factors on top of whichever base method produced the
// initial fraction (skipping a factor the base method already consumed,
// to avoid double-counting). No volatility, portfolio-heat or technical
// factor is applied here.
func applyAdjustments(base decimal.Decimal, in Input) (decimal.Decimal, []string) {
	result := base
	var notes []string

	if in.Method != MethodConfidenceWeighted && in.Confidence.GreaterThan(decimal.Zero) {
		result = result.Mul(in.Confidence)
		notes = append(notes, "confidence-weighted")
	}
	if in.Method != MethodRiskBased && in.RiskScore.GreaterThan(decimal.Zero) {
		riskFactor := decimal.NewFromInt(1).Sub(in.RiskScore.Mul(decimal.NewFromFloat(0.5)))
		result = result.Mul(riskFactor)
		notes = append(notes, "risk-dampened")
	}
	if result.LessThan(decimal.Zero) {
		result = decimal.Zero
	}
	return result, notes
}
