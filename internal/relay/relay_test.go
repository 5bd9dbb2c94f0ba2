package relay

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/domain"
)

func testClient(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func TestShouldUseRelay_NoEndpointNeverUsesRelay(t *testing.T) {
	c := testClient(Config{SupportsRelay: true, MEVRiskThreshold: decimal.NewFromFloat(0.5)})
	require.False(t, c.ShouldUseRelay(domain.PriorityUrgent, decimal.NewFromFloat(0.9)))
}

func TestShouldUseRelay_UnsupportedChainNeverUsesRelay(t *testing.T) {
	c := testClient(Config{Endpoint: "https://relay.example", SupportsRelay: false, MEVRiskThreshold: decimal.NewFromFloat(0.5)})
	require.False(t, c.ShouldUseRelay(domain.PriorityUrgent, decimal.NewFromFloat(0.9)))
}

func TestShouldUseRelay_HighMEVRiskRoutesToRelay(t *testing.T) {
	c := testClient(Config{Endpoint: "https://relay.example", SupportsRelay: true, MEVRiskThreshold: decimal.NewFromFloat(0.5)})
	require.True(t, c.ShouldUseRelay(domain.PriorityStandard, decimal.NewFromFloat(0.6)))
}

func TestShouldUseRelay_UrgentPriorityRoutesToRelayRegardlessOfRisk(t *testing.T) {
	c := testClient(Config{Endpoint: "https://relay.example", SupportsRelay: true, MEVRiskThreshold: decimal.NewFromFloat(0.5)})
	require.True(t, c.ShouldUseRelay(domain.PriorityUrgent, decimal.Zero))
}

func TestShouldUseRelay_LowRiskStandardPriorityUsesPublicMempool(t *testing.T) {
	c := testClient(Config{Endpoint: "https://relay.example", SupportsRelay: true, MEVRiskThreshold: decimal.NewFromFloat(0.5)})
	require.False(t, c.ShouldUseRelay(domain.PriorityStandard, decimal.NewFromFloat(0.1)))
}

func TestMEVRiskEstimator_AllSignalsSaturatedScoresNearOne(t *testing.T) {
	est := NewMEVRiskEstimator()
	score := est.Estimate(MEVRiskInput{
		SandwichPatternCount:    50,
		PendingSamePoolTxCount:  50,
		MarketCoordinationScore: decimal.NewFromFloat(1),
	})
	require.True(t, score.Equal(decimal.NewFromInt(1)))
}

func TestMEVRiskEstimator_NoSignalsScoresZero(t *testing.T) {
	est := NewMEVRiskEstimator()
	score := est.Estimate(MEVRiskInput{})
	require.True(t, score.IsZero())
}

func TestMEVRiskEstimator_PartialSandwichSignalWeightsProportionally(t *testing.T) {
	est := NewMEVRiskEstimator()
	score := est.Estimate(MEVRiskInput{SandwichPatternCount: sandwichSaturation / 2})
	require.True(t, score.GreaterThan(decimal.Zero))
	require.True(t, score.LessThan(sandwichWeight))
}
