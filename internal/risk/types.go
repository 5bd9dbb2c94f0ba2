// Package risk implements the Risk Assessment Engine:
// a registry of independent category analyzers fanned out in parallel under
// a shared deadline, synthesized into one RiskAssessment per pair.
package risk

import (
	"context"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// Target is the subject of one risk assessment: the non-reference side of a
// newly discovered pair (the reference side is typically WETH or USDC).
type Target struct {
	ChainID int64
	PairID domain.PairID
	Token domain.TokenInfo
	Counterparty domain.TokenInfo
	PoolAddress string
	RouterV2 string
	IsWETHPair bool
	// BlockNumber is the block the pair was discovered in, bounding how far
	// back holder/market analyzers need to scan Transfer event history.
	BlockNumber uint64
}

// Analyzer produces one category's verdict for a Target. Implementations
// must never block past the context deadline the engine assigns them; a
// deadline overrun is treated the same as a returned error.
type Analyzer interface {
	Category() domain.RiskCategory
	Analyze(ctx context.Context, mgr *provider.Manager, target Target) (domain.RiskCategoryScore, error)
}

// fallbackScore is the synthetic high-risk verdict substituted when an
// analyzer times out, panics, or errors — : "a missing category
// must never be silently treated as safe."
func fallbackScore(category domain.RiskCategory, reason string) domain.RiskCategoryScore {
	return domain.RiskCategoryScore{
		Category: category,
		Score: highRiskFallbackScore,
		Confidence: lowConfidenceFallback,
		DataQuality: domain.DataQualityPoor,
		Warnings: []string{reason},
	}
}
