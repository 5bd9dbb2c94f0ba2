// Package smartlane implements the Smart-Lane Pipeline:
// four time-budgeted phases — risk, technical analysis, strategy, and
// recommendation synthesis — run behind a concurrency cap so a burst of
// newly discovered pairs cannot starve the host process.
package smartlane

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/exitstrategy"
	"github.com/dexsentinel/engine/internal/provider"
	"github.com/dexsentinel/engine/internal/risk"
	"github.com/dexsentinel/engine/internal/sizing"
)

// Phase time budgets
const (
	riskPhaseBudget = 3 * time.Second
	technicalPhaseBudget = 1 * time.Second
	strategyPhaseBudget = 1 * time.Second
	synthesisPhaseBudget = 500 * time.Millisecond
)

// Input bundles everything one pipeline run needs across all four phases.
type Input struct {
	Target risk.Target
	Series []PriceSeries
	Portfolio PortfolioContext
	ExitStrategyType exitstrategy.StrategyType

	MaxAcceptableRiskScore decimal.Decimal
	MinConfidenceThreshold decimal.Decimal
}

// PortfolioContext is the slice of live portfolio state the sizing and
// exit-strategy phases need, supplied by the Portfolio Manager.
type PortfolioContext struct {
	PortfolioValueUSD decimal.Decimal
	CurrentPortfolioHeatPct decimal.Decimal
	MaxPortfolioHeatPct decimal.Decimal
	OpenPositionCount int
	MaxPositions int
	BasePositionPercent decimal.Decimal
	MinPositionPercent decimal.Decimal
	MaxPositionPercent decimal.Decimal
	MaxPositionSizeUSD decimal.Decimal
	MinPositionSizeUSD decimal.Decimal
	HistoricalWinRate decimal.Decimal
	HistoricalAvgWinPct decimal.Decimal
	HistoricalAvgLossPct decimal.Decimal
	HistoricalTradeCount int
	LiquidityUSD decimal.Decimal
	MarketStress decimal.Decimal
	Regime exitstrategy.MarketRegime
}

// Pipeline orchestrates the four phases behind a bounded semaphore
// (MAX_CONCURRENT_ANALYSES in).
type Pipeline struct {
	riskEngine *risk.Engine
	sem chan struct{}
	log zerolog.Logger
}

// New builds a Pipeline. maxConcurrent bounds in-flight Analyze calls;
// overflow callers wait for a slot.
func New(riskEngine *risk.Engine, maxConcurrent int) *Pipeline {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pipeline{
		riskEngine: riskEngine,
		sem: make(chan struct{}, maxConcurrent),
		log: log.With().Str("component", "smart_lane_pipeline").Logger(),
	}
}

// Analyze runs all four phases for one pair and returns a complete
// SmartLaneAnalysis. A deadline breach in any phase yields AVOID + LOW
// confidence rather than a partial result,
func (p *Pipeline) Analyze(ctx context.Context, mgr *provider.Manager, in Input) domain.SmartLaneAnalysis {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return deadlineBreach(in.Target.PairID, "concurrency slot wait cancelled")
	}

	start := time.Now()

	assessment, ok := p.phaseRisk(ctx, mgr, in)
	if !ok {
		return deadlineBreach(in.Target.PairID, "risk analysis phase exceeded its budget")
	}

	technical, ok := p.phaseTechnical(ctx, in)
	if !ok {
		return deadlineBreach(in.Target.PairID, "technical analysis phase exceeded its budget")
	}

	strategyOut, ok := p.phaseStrategy(ctx, in, assessment, technical)
	if !ok {
		return deadlineBreach(in.Target.PairID, "strategy phase exceeded its budget")
	}

	analysis := p.phaseSynthesize(in, assessment, technical, strategyOut)
	analysis.TotalAnalysisTimeMs = time.Since(start).Milliseconds()
	return analysis
}

func (p *Pipeline) phaseRisk(ctx context.Context, mgr *provider.Manager, in Input) (domain.RiskAssessment, bool) {
	ctx, cancel := context.WithTimeout(ctx, riskPhaseBudget)
	defer cancel()

	resultCh := make(chan domain.RiskAssessment, 1)
	go func() { resultCh <- p.riskEngine.Assess(ctx, mgr, in.Target) }()

	select {
	case r := <-resultCh:
		return r, true
	case <-ctx.Done():
		return domain.RiskAssessment{}, false
	}
}

func (p *Pipeline) phaseTechnical(ctx context.Context, in Input) (TechnicalAnalysis, bool) {
	_, cancel := context.WithTimeout(ctx, technicalPhaseBudget)
	defer cancel()
	// Indicator math is CPU-bound and fast relative to the 1s budget; no
	// cancellable suspension point is needed beyond the outer ctx check.
	if ctx.Err() != nil {
		return TechnicalAnalysis{}, false
	}
	return AnalyzeTechnical(in.Series), true
}

// strategyOutput bundles phase 3's two sub-results.
type strategyOutput struct {
	sizing sizing.Result
	exit exitstrategy.ExitStrategy
}

func (p *Pipeline) phaseStrategy(ctx context.Context, in Input, assessment domain.RiskAssessment, technical TechnicalAnalysis) (strategyOutput, bool) {
	_, cancel := context.WithTimeout(ctx, strategyPhaseBudget)
	defer cancel()
	if ctx.Err() != nil {
		return strategyOutput{}, false
	}

	method := chooseSizingMethod(in, assessment, technical)
	sizeResult, err := sizing.Size(sizing.Input{
			Method: method,
			PortfolioValueUSD: in.Portfolio.PortfolioValueUSD,
			RiskScore: assessment.OverallScore,
			Confidence: assessment.Confidence,
			VolatilityPercent: volatilityProxy(technical),
			HistoricalWinRate: in.Portfolio.HistoricalWinRate,
			HistoricalAvgWinPct: in.Portfolio.HistoricalAvgWinPct,
			HistoricalAvgLossPct: in.Portfolio.HistoricalAvgLossPct,
			HistoricalTradeCount: in.Portfolio.HistoricalTradeCount,
			CurrentPortfolioHeatPercent: in.Portfolio.CurrentPortfolioHeatPct,
			MaxPortfolioHeatPercent: in.Portfolio.MaxPortfolioHeatPct,
			BasePositionPercent: in.Portfolio.BasePositionPercent,
			MaxPositionSizeUSD: in.Portfolio.MaxPositionSizeUSD,
			MinPositionSizeUSD: in.Portfolio.MinPositionSizeUSD,
			MinPositionPercent: in.Portfolio.MinPositionPercent,
			MaxPositionPercent: in.Portfolio.MaxPositionPercent,
		})
	if err != nil {
		p.log.Warn().Err(err).Msg("sizing phase failed, treating as zero size")
		sizeResult = sizing.Result{Method: method}
	}
	if in.Portfolio.OpenPositionCount >= in.Portfolio.MaxPositions && in.Portfolio.MaxPositions > 0 {
		sizeResult.PositionSizeUSD = decimal.Zero
		sizeResult.PositionPercent = decimal.Zero
	}

	exitOut, err := exitstrategy.Build(exitstrategy.Input{
			StrategyType: in.ExitStrategyType,
			RiskScore: assessment.OverallScore,
			VolatilityPercent: volatilityProxy(technical),
			MarketStress: in.Portfolio.MarketStress,
			LiquidityUSD: in.Portfolio.LiquidityUSD,
			PositionSizeUSD: sizeResult.PositionSizeUSD,
			Regime: in.Portfolio.Regime,
		})
	if err != nil {
		p.log.Warn().Err(err).Msg("exit strategy phase failed, using empty ladder")
	}

	return strategyOutput{sizing: sizeResult, exit: exitOut}, true
}

// volatilityProxy derives a rough volatility read from how strongly the
// technical signals disagree across timeframes — used only as an input to
// sizing/exit-strategy, never as a standalone analyzer output.
func volatilityProxy(t TechnicalAnalysis) decimal.Decimal {
	if len(t.PerTimeframe) == 0 {
		return decimal.NewFromFloat(0.1)
	}
	var buy, sell int
	for _, s := range t.PerTimeframe {
		switch s.Direction {
		case DirectionBuy:
			buy++
		case DirectionSell:
			sell++
		}
	}
	if buy > 0 && sell > 0 {
		return decimal.NewFromFloat(0.25) // disagreement across timeframes reads as elevated volatility
	}
	return decimal.NewFromFloat(0.1)
}

func chooseSizingMethod(in Input, assessment domain.RiskAssessment, technical TechnicalAnalysis) sizing.Method {
	switch {
	case volatilityProxy(technical).GreaterThan(decimal.NewFromFloat(0.2)):
		return sizing.MethodVolatilityAdjusted
	case in.Portfolio.CurrentPortfolioHeatPct.GreaterThan(decimal.NewFromFloat(0.15)):
		return sizing.MethodRiskBased
	case assessment.Confidence.LessThan(decimal.NewFromFloat(0.5)):
		return sizing.MethodConfidenceWeighted
	default:
		return sizing.MethodRiskBased
	}
}

func (p *Pipeline) phaseSynthesize(in Input, assessment domain.RiskAssessment, technical TechnicalAnalysis, strat strategyOutput) domain.SmartLaneAnalysis {
	analysis := domain.SmartLaneAnalysis{
		PairID: in.Target.PairID,
		PositionSizePercent: strat.sizing.PositionPercent,
	}
	if len(strat.exit.Levels) > 0 {
		sl := strat.exit.Levels[0].PercentGain
		analysis.StopLossPercent = &sl
	}
	for _, l := range strat.exit.Levels {
		if l.Kind == exitstrategy.LevelTakeProfit {
			analysis.TakeProfitTargets = append(analysis.TakeProfitTargets, domain.TakeProfitTarget{
					PercentGain: l.PercentGain,
					PositionPercent: l.PositionPercent,
				})
		}
	}

	maxAcceptable := in.MaxAcceptableRiskScore
	if maxAcceptable.IsZero() {
		maxAcceptable = decimal.NewFromFloat(0.8)
	}
	minConf := in.MinConfidenceThreshold
	if minConf.IsZero() {
		minConf = decimal.NewFromFloat(0.6)
	}

	analysis.Recommendation, analysis.ConfidenceLevel, analysis.Warnings = decide(assessment, technical.Convergence, strat.sizing.PositionPercent, maxAcceptable, minConf)
	return analysis
}

// decide implements the decision matrix of
func decide(assessment domain.RiskAssessment, tech TimeframeSignal, positionPercent, maxAcceptable, minConf decimal.Decimal) (domain.SmartLaneRecommendation, domain.ConfidenceLevel, []string) {
	conf := confidenceLevel(assessment.Confidence)

	if assessment.OverallScore.GreaterThan(maxAcceptable) || !assessment.IsTradeable {
		return domain.RecommendationAvoid, conf, assessment.BlockingIssues
	}
	if assessment.Confidence.LessThan(minConf) {
		return domain.RecommendationWait, conf, nil
	}

	strongSignal := tech.Strength.GreaterThan(decimal.NewFromFloat(0.6))
	switch {
	case tech.Direction == DirectionBuy && strongSignal && positionPercent.GreaterThan(decimal.NewFromFloat(0.05)):
		return domain.RecommendationBuy, conf, nil
	case tech.Direction == DirectionBuy && strongSignal:
		return domain.RecommendationPartialBuy, conf, nil
	case tech.Direction == DirectionSell && strongSignal:
		return domain.RecommendationSell, conf, nil
	case assessment.OverallScore.LessThanOrEqual(decimal.NewFromFloat(0.3)) && tech.Strength.GreaterThan(decimal.NewFromFloat(0.4)):
		return domain.RecommendationScaleIn, conf, nil
	default:
		return domain.RecommendationHold, conf, nil
	}
}

func confidenceLevel(c decimal.Decimal) domain.ConfidenceLevel {
	switch {
	case c.GreaterThanOrEqual(decimal.NewFromFloat(0.8)):
		return domain.ConfidenceHigh
	case c.GreaterThanOrEqual(decimal.NewFromFloat(0.5)):
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// deadlineBreach is the fixed AVOID+LOW response requires when
// any phase overruns its budget.
func deadlineBreach(pairID domain.PairID, reason string) domain.SmartLaneAnalysis {
	return domain.SmartLaneAnalysis{
		PairID: pairID,
		Recommendation: domain.RecommendationAvoid,
		ConfidenceLevel: domain.ConfidenceLow,
		Warnings: []string{reason},
	}
}
