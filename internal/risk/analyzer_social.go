package risk

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// SocialAnalyzer has no social media or community data source in scope
// (no dependency here reaches a Twitter/Discord API); it returns a
// neutral, minimum-confidence score so the category
// contributes almost nothing to the weighted overall score (weight 0.03)
// rather than silently reading as either safe or risky.
type SocialAnalyzer struct{}

func NewSocialAnalyzer() *SocialAnalyzer { return &SocialAnalyzer{} }

func (a *SocialAnalyzer) Category() domain.RiskCategory { return domain.CategorySocial }

func (a *SocialAnalyzer) Analyze(ctx context.Context, mgr *provider.Manager, target Target) (domain.RiskCategoryScore, error) {
	return domain.RiskCategoryScore{
		Category:    domain.CategorySocial,
		Score:       decimal.NewFromFloat(0.5),
		Confidence:  decimal.NewFromFloat(0.05),
		DataQuality: domain.DataQualityPoor,
		Warnings:    []string{"no social data source configured"},
	}, nil
}
