package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/riskcache"
)

func TestConfidenceScore_MapsAllThreeLevels(t *testing.T) {
	require.True(t, confidenceScore(domain.ConfidenceHigh).Equal(decimal.NewFromFloat(0.9)))
	require.True(t, confidenceScore(domain.ConfidenceMedium).Equal(decimal.NewFromFloat(0.65)))
	require.True(t, confidenceScore(domain.ConfidenceLow).Equal(decimal.NewFromFloat(0.4)))
}

func seedHoneypotScore(t *testing.T, cache *riskcache.Cache, chainID int64, token string, score decimal.Decimal) {
	t.Helper()
	_, err := cache.GetOrCompute(context.Background(), chainID, token, domain.CategoryHoneypot, func(ctx context.Context) (domain.RiskCategoryScore, error) {
		return domain.RiskCategoryScore{Category: domain.CategoryHoneypot, Score: score, Confidence: decimal.NewFromFloat(0.9)}, nil
	})
	require.NoError(t, err)
}

func TestQuickRiskChecker_NoCachedScoreRejects(t *testing.T) {
	cache := riskcache.New(time.Minute)
	q := quickRiskChecker{cache: cache, chainID: 1}

	tradeable, reason, err := q.QuickCheck(context.Background(), domain.PairID{ChainID: 1, Token0: "0xabc"})
	require.NoError(t, err)
	require.False(t, tradeable)
	require.Contains(t, reason, "no cached")
}

func TestQuickRiskChecker_LowScoreAllowsTrade(t *testing.T) {
	cache := riskcache.New(time.Minute)
	seedHoneypotScore(t, cache, 1, "0xabc", decimal.NewFromFloat(0.2))
	q := quickRiskChecker{cache: cache, chainID: 1}

	tradeable, reason, err := q.QuickCheck(context.Background(), domain.PairID{ChainID: 1, Token0: "0xabc"})
	require.NoError(t, err)
	require.True(t, tradeable)
	require.Empty(t, reason)
}

func TestQuickRiskChecker_HighScoreVetoes(t *testing.T) {
	cache := riskcache.New(time.Minute)
	seedHoneypotScore(t, cache, 1, "0xabc", decimal.NewFromFloat(0.95))
	q := quickRiskChecker{cache: cache, chainID: 1}

	tradeable, reason, err := q.QuickCheck(context.Background(), domain.PairID{ChainID: 1, Token0: "0xabc"})
	require.NoError(t, err)
	require.False(t, tradeable)
	require.Contains(t, reason, "exceeds fast-lane threshold")
}
