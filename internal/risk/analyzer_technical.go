package risk

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// TechnicalAnalyzer is deliberately thin at discovery time: a pair just
// created has no price history for the RSI/MACD/momentum indicators (those
// run later, with actual price history, in the Smart-Lane technical
// analysis phase). Here it only confirms the pool is readable and returns
// a neutral, low confidence score — Technical is weighted at 0.02, the smallest
// category, precisely because it carries little signal this early.
type TechnicalAnalyzer struct{}

func NewTechnicalAnalyzer() *TechnicalAnalyzer { return &TechnicalAnalyzer{} }

func (a *TechnicalAnalyzer) Category() domain.RiskCategory { return domain.CategoryTechnical }

func (a *TechnicalAnalyzer) Analyze(ctx context.Context, mgr *provider.Manager, target Target) (domain.RiskCategoryScore, error) {
	if _, err := FetchReserves(ctx, mgr, target.PoolAddress); err != nil {
		return domain.RiskCategoryScore{}, err
	}
	return domain.RiskCategoryScore{
		Category: domain.CategoryTechnical,
		Score: decimal.NewFromFloat(0.5),
		Confidence: decimal.NewFromFloat(0.2),
		DataQuality: domain.DataQualityPoor,
		Warnings: []string{"no price history available at discovery time"},
	}, nil
}
