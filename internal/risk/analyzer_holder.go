package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// HolderAnalyzer grades distribution concentration via the Gini coefficient
// and top-10-holder share, against configured thresholds
// (max_gini_coefficient 0.8, max_top10_concentration 70%,
// min_holder_count 100 — here taken from engine config where available).
type HolderAnalyzer struct {
	MinHolderCount int
}

func NewHolderAnalyzer(cfg config.Config) *HolderAnalyzer {
	return &HolderAnalyzer{MinHolderCount: cfg.MinHolderCount}
}

func (a *HolderAnalyzer) Category() domain.RiskCategory { return domain.CategoryHolder }

func (a *HolderAnalyzer) Analyze(ctx context.Context, mgr *provider.Manager, target Target) (domain.RiskCategoryScore, error) {
	fromBlock := uint64(0)
	if target.BlockNumber > transferLogScanBlocks {
		fromBlock = target.BlockNumber - transferLogScanBlocks
	}

	hb, err := scanHolderBalances(ctx, mgr, target.Token.Address, fromBlock)
	if err != nil {
		return domain.RiskCategoryScore{}, fmt.Errorf("holder: scan transfer history: %w", err)
	}

	balances := sortedPositiveBalances(hb)
	holderCount := len(balances)
	if holderCount == 0 {
		return domain.RiskCategoryScore{}, fmt.Errorf("holder: no positive balances reconstructed")
	}

	gini := stat.Gini(balances, nil)
	top10 := topNConcentration(balances, 10)

	giniRisk := clampUnit(decimal.NewFromFloat(gini))
	top10Risk := clampUnit(decimal.NewFromFloat(top10))

	countPenalty := decimal.Zero
	if holderCount < a.MinHolderCount {
		countPenalty = decimal.NewFromFloat(0.3)
	}

	score := clampUnit(giniRisk.Mul(decimal.NewFromFloat(0.5)).
		Add(top10Risk.Mul(decimal.NewFromFloat(0.3))).
		Add(countPenalty))

	var warnings []string
	if holderCount < a.MinHolderCount {
		warnings = append(warnings, fmt.Sprintf("only %d holders reconstructed, below minimum %d", holderCount, a.MinHolderCount))
	}
	if top10 > 0.7 {
		warnings = append(warnings, "top 10 holders control over 70% of circulating supply")
	}

	dataQuality := domain.DataQualityGood
	if hb.truncated {
		dataQuality = domain.DataQualityFair
		warnings = append(warnings, "transfer history truncated for this scan window")
	}

	return domain.RiskCategoryScore{
		Category:    domain.CategoryHolder,
		Score:       score,
		Confidence:  decimal.NewFromFloat(0.6),
		DataQuality: dataQuality,
		Warnings:    warnings,
		Details: map[string]any{
			"holder_count":        holderCount,
			"gini_coefficient":    gini,
			"top10_concentration": top10,
		},
	}, nil
}
