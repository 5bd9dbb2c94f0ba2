package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
	"github.com/dexsentinel/engine/internal/riskcache"
)

type fakeAnalyzer struct {
	category domain.RiskCategory
	score    domain.RiskCategoryScore
	err      error
	sleep    time.Duration
	panics   bool
}

func (f *fakeAnalyzer) Category() domain.RiskCategory { return f.category }

func (f *fakeAnalyzer) Analyze(ctx context.Context, mgr *provider.Manager, target Target) (domain.RiskCategoryScore, error) {
	if f.panics {
		panic("boom")
	}
	if f.sleep > 0 {
		select {
		case <-ctx.Done():
			return domain.RiskCategoryScore{}, ctx.Err()
		case <-time.After(f.sleep):
		}
	}
	if f.err != nil {
		return domain.RiskCategoryScore{}, f.err
	}
	return f.score, nil
}

func testConfig() config.Config {
	return config.Config{
		RiskTimeout:            200 * time.Millisecond,
		RiskParallelChecks:     8,
		MaxAcceptableRiskScore: decimal.NewFromFloat(0.8),
		MinConfidenceThreshold: decimal.NewFromFloat(0.3),
	}
}

func allSafeAnalyzers() []Analyzer {
	var out []Analyzer
	for _, cw := range domain.CategoryWeights {
		out = append(out, &fakeAnalyzer{
			category: cw.Category,
			score: domain.RiskCategoryScore{
				Category:   cw.Category,
				Score:      decimal.NewFromFloat(0.1),
				Confidence: decimal.NewFromFloat(0.9),
			},
		})
	}
	return out
}

func TestAssess_AllSafe_IsTradeable(t *testing.T) {
	e := New(testConfig(), riskcache.New(time.Hour), allSafeAnalyzers())
	assessment := e.Assess(context.Background(), nil, Target{PairID: domain.PairID{ChainID: 1}, Token: domain.TokenInfo{Address: "0xabc"}})

	require.True(t, assessment.IsTradeable)
	require.Empty(t, assessment.BlockingIssues)
	require.True(t, assessment.OverallScore.LessThan(decimal.NewFromFloat(0.2)))
}

func TestAssess_BlockingCategoryHighScore_NotTradeable(t *testing.T) {
	analyzers := allSafeAnalyzers()
	for i, a := range analyzers {
		if a.Category() == domain.CategoryHoneypot {
			analyzers[i] = &fakeAnalyzer{
				category: domain.CategoryHoneypot,
				score: domain.RiskCategoryScore{
					Category:   domain.CategoryHoneypot,
					Score:      decimal.NewFromFloat(0.95),
					Confidence: decimal.NewFromFloat(0.9),
				},
			}
		}
	}
	e := New(testConfig(), riskcache.New(time.Hour), analyzers)
	assessment := e.Assess(context.Background(), nil, Target{PairID: domain.PairID{ChainID: 1}, Token: domain.TokenInfo{Address: "0xdef"}})

	require.False(t, assessment.IsTradeable)
	require.NotEmpty(t, assessment.BlockingIssues)
}

func TestAssess_AnalyzerTimeout_SubstitutesFallback(t *testing.T) {
	analyzers := allSafeAnalyzers()
	for i, a := range analyzers {
		if a.Category() == domain.CategoryMarket {
			analyzers[i] = &fakeAnalyzer{category: domain.CategoryMarket, sleep: time.Second}
		}
	}
	cfg := testConfig()
	cfg.RiskTimeout = 50 * time.Millisecond
	e := New(cfg, riskcache.New(time.Hour), analyzers)
	assessment := e.Assess(context.Background(), nil, Target{PairID: domain.PairID{ChainID: 1}, Token: domain.TokenInfo{Address: "0x111"}})

	market := assessment.Categories[domain.CategoryMarket]
	require.Equal(t, domain.DataQualityPoor, market.DataQuality)
	require.True(t, market.Score.GreaterThanOrEqual(decimal.NewFromFloat(0.5)))
}

func TestAssess_AnalyzerPanic_SubstitutesFallback(t *testing.T) {
	analyzers := allSafeAnalyzers()
	for i, a := range analyzers {
		if a.Category() == domain.CategoryTechnical {
			analyzers[i] = &fakeAnalyzer{category: domain.CategoryTechnical, panics: true}
		}
	}
	e := New(testConfig(), riskcache.New(time.Hour), analyzers)
	assessment := e.Assess(context.Background(), nil, Target{PairID: domain.PairID{ChainID: 1}, Token: domain.TokenInfo{Address: "0x222"}})

	technical := assessment.Categories[domain.CategoryTechnical]
	require.Equal(t, domain.DataQualityPoor, technical.DataQuality)
}

func TestAssess_LowOverallConfidence_NotTradeable(t *testing.T) {
	var analyzers []Analyzer
	for _, cw := range domain.CategoryWeights {
		analyzers = append(analyzers, &fakeAnalyzer{
			category: cw.Category,
			score: domain.RiskCategoryScore{
				Category:   cw.Category,
				Score:      decimal.NewFromFloat(0.1),
				Confidence: decimal.NewFromFloat(0.05),
			},
		})
	}
	e := New(testConfig(), riskcache.New(time.Hour), analyzers)
	assessment := e.Assess(context.Background(), nil, Target{PairID: domain.PairID{ChainID: 1}, Token: domain.TokenInfo{Address: "0x333"}})

	require.False(t, assessment.IsTradeable)
}
