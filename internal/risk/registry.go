package risk

import "github.com/dexsentinel/engine/internal/config"

// AllAnalyzers builds the full category-analyzer registry
// requires: one independent analyzer per category, run in parallel by
// Engine.Assess.
func AllAnalyzers(cfg config.Config) []Analyzer {
	return []Analyzer{
		NewHoneypotAnalyzer(),
		NewLiquidityAnalyzer(cfg),
		NewContractSecurityAnalyzer(),
		NewTaxAnalyzer(cfg),
		NewHolderAnalyzer(cfg),
		NewMarketAnalyzer(),
		NewSocialAnalyzer(),
		NewTechnicalAnalyzer(),
	}
}
