package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSize_FixedPercent(t *testing.T) {
	res, err := Size(Input{
		Method:             MethodFixedPercent,
		PortfolioValueUSD:  decimal.NewFromInt(10000),
		BasePositionPercent: decimal.NewFromFloat(0.1),
		MaxPositionSizeUSD: decimal.NewFromInt(5000),
	})
	require.NoError(t, err)
	require.True(t, res.PositionSizeUSD.GreaterThan(decimal.Zero))
}

func TestSize_ClampsToMaxPositionPercent(t *testing.T) {
	res, err := Size(Input{
		Method:              MethodFixedPercent,
		PortfolioValueUSD:   decimal.NewFromInt(10000),
		BasePositionPercent: decimal.NewFromFloat(0.5),
		Confidence:          decimal.NewFromFloat(1),
		MaxPositionPercent:  decimal.NewFromFloat(0.1),
		MaxPositionSizeUSD:  decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	require.True(t, res.PositionPercent.LessThanOrEqual(decimal.NewFromFloat(0.1)))
}

func TestSize_BelowMinUSDSizesToZero(t *testing.T) {
	res, err := Size(Input{
		Method:              MethodFixedPercent,
		PortfolioValueUSD:   decimal.NewFromInt(10000),
		BasePositionPercent: decimal.NewFromFloat(0.001),
		MinPositionSizeUSD:  decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	require.True(t, res.PositionSizeUSD.IsZero())
}

func TestKelly_GatedOffBelowMinTradeSample(t *testing.T) {
	res, err := Size(Input{
		Method:               MethodKelly,
		PortfolioValueUSD:    decimal.NewFromInt(10000),
		BasePositionPercent:  decimal.NewFromFloat(0.05),
		HistoricalWinRate:    decimal.NewFromFloat(0.9),
		HistoricalTradeCount: 3,
		MaxPositionSizeUSD:   decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	require.True(t, res.PositionPercent.LessThanOrEqual(decimal.NewFromFloat(0.05)))
}

func TestKelly_AppliesQuarterKellyWhenQualified(t *testing.T) {
	res, err := Size(Input{
		Method:               MethodKelly,
		PortfolioValueUSD:    decimal.NewFromInt(10000),
		BasePositionPercent:  decimal.NewFromFloat(0.05),
		HistoricalWinRate:    decimal.NewFromFloat(0.6),
		HistoricalAvgWinPct:  decimal.NewFromFloat(0.3),
		HistoricalAvgLossPct: decimal.NewFromFloat(0.15),
		HistoricalTradeCount: 20,
		MaxPositionSizeUSD:   decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	require.True(t, res.PositionPercent.GreaterThan(decimal.Zero))
}

func TestSize_UnknownMethodErrors(t *testing.T) {
	_, err := Size(Input{Method: "NOT_A_METHOD", PortfolioValueUSD: decimal.NewFromInt(1000)})
	require.Error(t, err)
}

func TestSize_PortfolioHeatExhaustedZeroesSize(t *testing.T) {
	res, err := Size(Input{
		Method:                      MethodPortfolioHeat,
		PortfolioValueUSD:           decimal.NewFromInt(10000),
		BasePositionPercent:         decimal.NewFromFloat(0.05),
		CurrentPortfolioHeatPercent: decimal.NewFromFloat(0.20),
		MaxPortfolioHeatPercent:     decimal.NewFromFloat(0.15),
	})
	require.NoError(t, err)
	require.True(t, res.PositionSizeUSD.IsZero())
}
