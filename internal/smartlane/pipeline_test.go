package smartlane

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/domain"
)

func assessment(score, confidence float64, tradeable bool) domain.RiskAssessment {
	return domain.RiskAssessment{
		OverallScore: decimal.NewFromFloat(score),
		Confidence:   decimal.NewFromFloat(confidence),
		IsTradeable:  tradeable,
	}
}

func TestDecide_HighRiskAlwaysAvoids(t *testing.T) {
	rec, _, _ := decide(assessment(0.9, 0.9, true), TimeframeSignal{Direction: DirectionBuy, Strength: decimal.NewFromFloat(0.9)},
		decimal.NewFromFloat(0.1), decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.6))
	require.Equal(t, domain.RecommendationAvoid, rec)
}

func TestDecide_NotTradeableAvoidsRegardlessOfScore(t *testing.T) {
	rec, _, _ := decide(assessment(0.1, 0.9, false), TimeframeSignal{Direction: DirectionBuy, Strength: decimal.NewFromFloat(0.9)},
		decimal.NewFromFloat(0.1), decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.6))
	require.Equal(t, domain.RecommendationAvoid, rec)
}

func TestDecide_LowConfidenceWaits(t *testing.T) {
	rec, _, _ := decide(assessment(0.2, 0.3, true), TimeframeSignal{Direction: DirectionBuy, Strength: decimal.NewFromFloat(0.9)},
		decimal.NewFromFloat(0.1), decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.6))
	require.Equal(t, domain.RecommendationWait, rec)
}

func TestDecide_StrongBuySignalLargeSizeBuys(t *testing.T) {
	rec, _, _ := decide(assessment(0.2, 0.9, true), TimeframeSignal{Direction: DirectionBuy, Strength: decimal.NewFromFloat(0.7)},
		decimal.NewFromFloat(0.1), decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.6))
	require.Equal(t, domain.RecommendationBuy, rec)
}

func TestDecide_StrongBuySignalSmallSizePartialBuys(t *testing.T) {
	rec, _, _ := decide(assessment(0.2, 0.9, true), TimeframeSignal{Direction: DirectionBuy, Strength: decimal.NewFromFloat(0.7)},
		decimal.NewFromFloat(0.02), decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.6))
	require.Equal(t, domain.RecommendationPartialBuy, rec)
}

func TestDecide_StrongSellSignalSells(t *testing.T) {
	rec, _, _ := decide(assessment(0.2, 0.9, true), TimeframeSignal{Direction: DirectionSell, Strength: decimal.NewFromFloat(0.7)},
		decimal.NewFromFloat(0.1), decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.6))
	require.Equal(t, domain.RecommendationSell, rec)
}

func TestDecide_VeryLowRiskModerateSignalScalesIn(t *testing.T) {
	rec, _, _ := decide(assessment(0.1, 0.9, true), TimeframeSignal{Direction: DirectionBuy, Strength: decimal.NewFromFloat(0.5)},
		decimal.NewFromFloat(0.1), decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.6))
	require.Equal(t, domain.RecommendationScaleIn, rec)
}

func TestDecide_WeakSignalHolds(t *testing.T) {
	rec, _, _ := decide(assessment(0.5, 0.9, true), TimeframeSignal{Direction: DirectionNeutral, Strength: decimal.Zero},
		decimal.NewFromFloat(0.1), decimal.NewFromFloat(0.8), decimal.NewFromFloat(0.6))
	require.Equal(t, domain.RecommendationHold, rec)
}

func TestTally_MajorityDirectionWins(t *testing.T) {
	sig := tally("1h", []Direction{DirectionBuy, DirectionBuy, DirectionBuy, DirectionSell, DirectionNeutral})
	require.Equal(t, DirectionBuy, sig.Direction)
	require.True(t, sig.Strength.GreaterThan(decimal.Zero))
}

func TestTally_TiedVotesAreNeutral(t *testing.T) {
	sig := tally("1h", []Direction{DirectionBuy, DirectionSell})
	require.Equal(t, DirectionNeutral, sig.Direction)
}

func TestAnalyzeTechnical_ShortHistoryIsNeutral(t *testing.T) {
	out := AnalyzeTechnical([]PriceSeries{{Timeframe: "1h", Close: []float64{1, 2, 3}}})
	require.Equal(t, DirectionNeutral, out.PerTimeframe[0].Direction)
}
