package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
	"github.com/dexsentinel/engine/internal/riskcache"
)

// highRiskFallbackScore and lowConfidenceFallback are substituted for a
// category that could not be analyzed in time, per the "missing
// data must never read as safe" invariant: maximum risk, zero confidence,
// so the category is excluded from the weighted average rather than
// leaking partial weight into it.
var (
	highRiskFallbackScore = decimal.NewFromInt(1)
	lowConfidenceFallback = decimal.Zero
	// blockingTripScore is the per-category score above which a blocking
	// category (Honeypot, Liquidity, ContractSecurity) vetoes tradeability
	// outright, independent of the overall weighted score.
	blockingTripScore = decimal.NewFromFloat(0.8)
)

// Engine runs every registered Analyzer for a Target under a shared
// deadline and synthesizes the weighted RiskAssessment.
type Engine struct {
	cfg config.Config
	cache *riskcache.Cache
	analyzers []Analyzer
	log zerolog.Logger
}

// New builds an Engine from the category analyzers it should run. Order is
// irrelevant — analyzers execute concurrently.
func New(cfg config.Config, cache *riskcache.Cache, analyzers []Analyzer) *Engine {
	return &Engine{
		cfg: cfg,
		cache: cache,
		analyzers: analyzers,
		log: log.With().Str("component", "risk_engine").Logger(),
	}
}

// Assess runs all category analyzers in parallel (bounded by
// RiskParallelChecks) and returns the synthesized assessment. It never
// returns an error: a failing category degrades to a high-risk fallback
// score rather than aborting the whole assessment.
func (e *Engine) Assess(ctx context.Context, mgr *provider.Manager, target Target) domain.RiskAssessment {
	deadline := e.cfg.RiskTimeout
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	scores := make([]domain.RiskCategoryScore, len(e.analyzers))
	sem := make(chan struct{}, maxInt(1, e.cfg.RiskParallelChecks))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range e.analyzers {
		i, a := i, a
		g.Go(func() error {
				sem <- struct{}{}
				defer func() { <-sem }()
				scores[i] = e.runOne(gctx, mgr, target, a)
				return nil
			})
	}
	_ = g.Wait() // runOne never returns an error; this only waits for completion

	assessment := synthesize(target.PairID, scores)
	if assessment.OverallScore.GreaterThan(e.cfg.MaxAcceptableRiskScore) {
		assessment.IsTradeable = false
		assessment.BlockingIssues = append(assessment.BlockingIssues,
			fmt.Sprintf("overall score %s exceeds max_acceptable_risk_score %s", assessment.OverallScore.StringFixed(2), e.cfg.MaxAcceptableRiskScore.StringFixed(2)))
	}
	if assessment.Confidence.LessThan(e.cfg.MinConfidenceThreshold) {
		assessment.IsTradeable = false
		assessment.BlockingIssues = append(assessment.BlockingIssues,
			fmt.Sprintf("confidence %s below min_confidence_threshold %s", assessment.Confidence.StringFixed(2), e.cfg.MinConfidenceThreshold.StringFixed(2)))
	}
	return assessment
}

// runOne executes one analyzer behind the shared riskcache, recovering from
// panics and timing it out against the assessment-wide deadline.
func (e *Engine) runOne(ctx context.Context, mgr *provider.Manager, target Target, a Analyzer) (result domain.RiskCategoryScore) {
	category := a.Category()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("category", string(category)).Msg("analyzer panicked, substituting fallback")
			result = fallbackScore(category, fmt.Sprintf("analyzer panicked: %v", r))
		}
	}()

	start := time.Now()
	score, err := e.cache.GetOrCompute(ctx, target.ChainID, target.Token.Address, category, func(ctx context.Context) (domain.RiskCategoryScore, error) {
			return a.Analyze(ctx, mgr, target)
		})
	if err != nil {
		if ctx.Err() != nil {
			e.log.Warn().Str("category", string(category)).Msg("analyzer exceeded risk_timeout, substituting fallback")
		} else {
			e.log.Warn().Err(err).Str("category", string(category)).Msg("analyzer failed, substituting fallback")
		}
		return fallbackScore(category, err.Error())
	}
	score.Clamp()
	if score.AnalysisTimeMs == 0 {
		score.AnalysisTimeMs = time.Since(start).Milliseconds()
	}
	return score
}

// synthesize computes the confidence-weighted overall score and
// tradeability verdict per the category weight table.
func synthesize(pairID domain.PairID, scores []domain.RiskCategoryScore) domain.RiskAssessment {
	categories := make(map[domain.RiskCategory]domain.RiskCategoryScore, len(scores))
	for _, s := range scores {
		categories[s.Category] = s
	}

	var weightedScoreSum, weightedConfSum, weightSum decimal.Decimal
	var blockingIssues []string

	for _, cw := range domain.CategoryWeights {
		s, ok := categories[cw.Category]
		if !ok {
			s = fallbackScore(cw.Category, "analyzer not registered")
		}
		weightedScoreSum = weightedScoreSum.Add(cw.Weight.Mul(s.Score).Mul(s.Confidence))
		weightedConfSum = weightedConfSum.Add(cw.Weight.Mul(s.Confidence))
		weightSum = weightSum.Add(cw.Weight)

		if cw.Blocking && (s.Score.GreaterThanOrEqual(blockingTripScore) || s.DataQuality == domain.DataQualityPoor) {
			blockingIssues = append(blockingIssues, fmt.Sprintf("%s score %s (data_quality=%s) exceeds blocking threshold", cw.Category, s.Score.StringFixed(2), s.DataQuality))
		}
	}

	var overallScore, overallConfidence decimal.Decimal
	if weightedConfSum.GreaterThan(decimal.Zero) {
		overallScore = weightedScoreSum.Div(weightedConfSum)
	} else {
		// Every category came back zero-confidence (all fallbacks): there is
		// no signal to average, so the verdict defaults to maximum risk
		// rather than the zero-value's misleading "perfectly safe".
		overallScore = decimal.NewFromInt(1)
	}
	if weightSum.GreaterThan(decimal.Zero) {
		overallConfidence = weightedConfSum.Div(weightSum)
	}

	return domain.RiskAssessment{
		PairID: pairID,
		OverallScore: clampUnit(overallScore),
		Confidence: clampUnit(overallConfidence),
		IsTradeable: len(blockingIssues) == 0,
		BlockingIssues: blockingIssues,
		Categories: categories,
		AssessedAt: time.Now().UTC(),
	}
}

func clampUnit(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return d
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
