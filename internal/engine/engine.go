// Package engine wires every component into the running process's control
// flow: Discovery → Event Bus → Risk Engine → Smart-Lane Pipeline →
// Executor (Fast or Smart) → Relay/Public Mempool → Portfolio Manager →
// Circuit Breaker feedback → Engine Gate. Adapted from a prior core
// orchestration loop (Feed → Strategy → Risk → Sizing → Execution → TP/SL →
// Storage), rebuilt around this system's multi-chain, event-bus-driven shape.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dexsentinel/engine/internal/breaker"
	"github.com/dexsentinel/engine/internal/chainconfig"
	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/discovery"
	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/eventbus"
	"github.com/dexsentinel/engine/internal/exitstrategy"
	"github.com/dexsentinel/engine/internal/fastlane"
	"github.com/dexsentinel/engine/internal/portfolio"
	"github.com/dexsentinel/engine/internal/provider"
	"github.com/dexsentinel/engine/internal/relay"
	"github.com/dexsentinel/engine/internal/risk"
	"github.com/dexsentinel/engine/internal/riskcache"
	"github.com/dexsentinel/engine/internal/smartlane"
	"github.com/dexsentinel/engine/internal/storage"
)

// perChain bundles the per-chain component instances the engine gate
// dispatches work to.
type perChain struct {
	chainID  int64
	provider *provider.Manager
	fastLane *fastlane.Executor
	relay    *relay.Client
	nonces   *fastlane.NonceManager
	gas      *fastlane.GasOptimizer
}

// Engine is the process root. One Engine runs every configured chain.
type Engine struct {
	cfg   config.Config
	log   zerolog.Logger
	bus   *eventbus.Bus
	store *storage.Store
	sink  ThoughtLogSink

	registry     *chainconfig.Registry
	riskEngine   *risk.Engine
	riskCache    *riskcache.Cache
	smartLane    *smartlane.Pipeline
	portfolioMgr *portfolio.Manager
	breaker      *breaker.Breaker
	mev          relay.MEVRiskEstimator

	mu     sync.RWMutex
	chains map[int64]*perChain

	discoveryRate float64
}

// BuildArgs bundles everything Build needs beyond the static config.Config.
type BuildArgs struct {
	Config config.Config
	Bus    *eventbus.Bus
	Store  *storage.Store
	Sink   ThoughtLogSink
	Signer fastlane.Signer
}

// Build constructs an Engine with every component wired into the control
// flow, but does not yet start discovery or subscriptions — call Run for
// that.
func Build(args BuildArgs) (*Engine, error) {
	registry, err := chainconfig.NewRegistry(args.Config.Chains)
	if err != nil {
		return nil, fmt.Errorf("engine: build chain registry: %w", err)
	}

	cache := riskcache.New(time.Minute)
	riskEng := risk.New(args.Config, cache, risk.AllAnalyzers(args.Config))
	smartLanePipeline := smartlane.New(riskEng, args.Config.MaxConcurrentAnalyses)

	cb := breaker.New(breaker.Config{
		MaxPortfolioSizeUSD:       args.Config.MaxPortfolioSizeUSD,
		DailyLossLimitPercent:     args.Config.DailyLossLimitPercent,
		CircuitBreakerLossPercent: args.Config.CircuitBreakerLossPct,
	})

	sink := args.Sink
	if sink == nil {
		sink = NoopThoughtLogSink{}
	}

	e := &Engine{
		cfg:        args.Config,
		log:        log.With().Str("component", "engine").Logger(),
		bus:        args.Bus,
		store:      args.Store,
		sink:       sink,
		registry:   registry,
		riskEngine: riskEng,
		riskCache:  cache,
		smartLane:  smartLanePipeline,
		breaker:    cb,
		mev:        relay.NewMEVRiskEstimator(),
		chains:     make(map[int64]*perChain),
	}

	e.portfolioMgr = portfolio.New(portfolio.Config{
		MaxPositionSizeUSD: args.Config.MaxPositionSizeUSD,
		MaxPortfolioSize:   args.Config.MaxPositionsPerPortfolio,
	}, cb, e.handleExitTrigger)

	for _, chainID := range registry.ChainIDs() {
		chain := registry.MustGet(chainID)
		mgr := provider.NewManager(chain.ChainID, chain.Providers, provider.ManagerConfigFrom(&args.Config))
		nonces := fastlane.NewNonceManager(mgr, args.Config.StuckNonceTimeout)
		gas := fastlane.NewGasOptimizer(mgr, args.Config.MaxGasPriceGwei.IntPart())
		relayClient := relay.NewClient(relay.Config{
			Endpoint:         args.Config.RelayEndpoint,
			SupportsRelay:    args.Config.RelayEnabled,
			MEVRiskThreshold: args.Config.MEVRiskThreshold,
		}, mgr)

		fastExec := fastlane.NewExecutor(mgr, nonces, gas, quickRiskChecker{cache: cache, chainID: chain.ChainID}, args.Signer, relayClient, args.Bus, fastlane.ExecutorConfig{
			MaxConcurrentTrades: args.Config.MaxConcurrentTrades,
			ExecutionTimeout:    args.Config.ExecutionTimeout,
		})

		e.chains[chain.ChainID] = &perChain{
			chainID:  chain.ChainID,
			provider: mgr,
			fastLane: fastExec,
			relay:    relayClient,
			nonces:   nonces,
			gas:      gas,
		}
	}

	return e, nil
}

// quickRiskChecker implements fastlane.RiskChecker against the Risk Cache
// only (a cached honeypot score no worse than fastLaneMaxCachedScore), never
// running a full analyzer fan-out.
type quickRiskChecker struct {
	cache   *riskcache.Cache
	chainID int64
}

const fastLaneMaxCachedScore = 0.8

func (q quickRiskChecker) QuickCheck(ctx context.Context, pair domain.PairID) (bool, string, error) {
	score, ok := q.cache.Get(q.chainID, pair.Token0, domain.CategoryHoneypot)
	if !ok {
		return false, "no cached honeypot score available for fast-lane", nil
	}
	if score.Score.GreaterThan(decimal.NewFromFloat(fastLaneMaxCachedScore)) {
		return false, fmt.Sprintf("cached honeypot score %s exceeds fast-lane threshold", score.Score.StringFixed(2)), nil
	}
	return true, "", nil
}

// Run starts discovery, event-bus subscriptions, and blocks until ctx is
// cancelled or a fatal error occurs in any chain's pipeline.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.subscribe(); err != nil {
		return fmt.Errorf("engine: subscribe: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.bus.Run(ctx) })

	for _, pc := range e.chains {
		pc := pc
		g.Go(func() error { pc.fastLane.Start(ctx); <-ctx.Done(); pc.fastLane.Stop(); return nil })
		g.Go(func() error { pc.provider.RunHealthLoop(ctx); return nil })
	}

	coord := discovery.NewCoordinator(e.registry, e.cfg, func(chainID int64) *provider.Manager {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.chains[chainID].provider
	}, e.bus)
	g.Go(func() error { return coord.Run(ctx) })

	return g.Wait()
}

// subscribe wires the event-bus handlers that drive the control flow: a new
// pair triggers a Smart-Lane analysis, whose recommendation becomes a trade
// decision, whose execution result feeds the portfolio and breaker.
func (e *Engine) subscribe() error {
	if err := e.bus.Subscribe(eventbus.TopicNewPair, e.handleNewPair); err != nil {
		return err
	}
	if err := e.bus.Subscribe(eventbus.TopicExecutionResult, e.handleExecutionResult); err != nil {
		return err
	}
	return nil
}

func (e *Engine) handleNewPair(ctx context.Context, env eventbus.Envelope) error {
	evt, err := eventbus.Decode[domain.NewPairEvent](env)
	if err != nil {
		return fmt.Errorf("engine: decode new pair event: %w", err)
	}

	pc, ok := e.chainFor(evt.ChainID)
	if !ok {
		return nil // chain not configured for this engine instance
	}

	target := risk.Target{
		ChainID:      evt.ChainID,
		PairID:       evt.PairID,
		Token:        evt.Token0,
		Counterparty: evt.Token1,
		PoolAddress:  evt.PoolAddress,
		IsWETHPair:   evt.IsWETHPair,
		BlockNumber:  evt.BlockNumber,
	}

	analysis := e.smartLane.Analyze(ctx, pc.provider, smartlane.Input{
		Target: target,
		Portfolio: smartlane.PortfolioContext{
			PortfolioValueUSD:   e.portfolioMgr.TotalValueUSD(),
			MaxPositionSizeUSD:  e.cfg.MaxPositionSizeUSD,
			BasePositionPercent: decimal.NewFromFloat(0.05),
			MaxPositions:        e.cfg.MaxPositionsPerPortfolio,
		},
		ExitStrategyType:       exitstrategy.StrategyBalanced,
		MaxAcceptableRiskScore: e.cfg.MaxAcceptableRiskScore,
		MinConfidenceThreshold: e.cfg.MinConfidenceThreshold,
	})

	_ = e.sink.Record(ctx, ThoughtLogEntry{
		PairID: evt.PairID, Source: "smart_lane_pipeline",
		Recommendation: string(analysis.Recommendation), Reasoning: analysis.Warnings, RecordedAt: time.Now(),
	})

	if analysis.Recommendation != domain.RecommendationBuy && analysis.Recommendation != domain.RecommendationPartialBuy && analysis.Recommendation != domain.RecommendationScaleIn {
		return nil
	}

	sizeUSD := analysis.PositionSizePercent.Mul(e.portfolioMgr.TotalValueUSD())
	if ok, reason := e.portfolioMgr.CanOpenPosition(sizeUSD, evt.ChainID); !ok {
		e.log.Info().Str("pair", evt.PairID.String()).Str("reason", reason).Msg("pre-trade gate vetoed position")
		return nil
	}

	// A position large relative to the portfolio is itself a sandwich-attack
	// magnet; escalate priority so the routing decision below leans toward
	// the private relay.
	priority := domain.PriorityStandard
	if portfolioValue := e.portfolioMgr.TotalValueUSD(); portfolioValue.IsPositive() && sizeUSD.GreaterThan(portfolioValue.Mul(decimal.NewFromFloat(0.1))) {
		priority = domain.PriorityHigh
	}
	mevRisk := e.mev.Estimate(relay.MEVRiskInput{
		MarketCoordinationScore: decimal.NewFromFloat(1).Sub(confidenceScore(analysis.ConfidenceLevel)),
	})
	useRelay := pc.relay.ShouldUseRelay(priority, mevRisk)
	if useRelay {
		e.log.Info().Str("pair", evt.PairID.String()).Str("mev_risk", mevRisk.StringFixed(2)).Msg("routing decision favors private relay")
	}

	decision := domain.TradeDecision{
		PairID:             evt.PairID,
		TokenAddress:       evt.Token0.Address,
		Action:             domain.ActionBuy,
		ConfidenceScore:    confidenceScore(analysis.ConfidenceLevel),
		PositionSizeUSD:    sizeUSD,
		MaxSlippagePercent: e.cfg.DefaultSlippagePercent,
		Priority:           priority,
	}

	correlationID, err := eventbus.PublishCorrelated(ctx, e.bus, eventbus.TopicTradingDecision, env.CorrelationID, decision)
	if err != nil {
		return fmt.Errorf("engine: publish trading decision: %w", err)
	}

	job := fastlane.Job{Decision: decision, CorrelationID: correlationID, SubmittedAt: time.Now(), UseRelay: useRelay}
	if err := pc.fastLane.Submit(correlationID, job); err != nil {
		e.log.Warn().Err(err).Str("pair", evt.PairID.String()).Msg("fast-lane submission failed")
	}
	return nil
}

func (e *Engine) handleExecutionResult(ctx context.Context, env eventbus.Envelope) error {
	exec, err := eventbus.Decode[domain.TradeExecution](env)
	if err != nil {
		return fmt.Errorf("engine: decode execution result: %w", err)
	}

	if e.store != nil {
		if err := e.store.RecordTrade(exec); err != nil {
			e.log.Error().Err(err).Str("trade_id", exec.TradeID).Msg("failed to persist trade")
		}
	}

	won := exec.Status == domain.ExecCompleted
	e.breaker.RecordTradeOutcome(won)

	if exec.Status == domain.ExecCompleted {
		e.portfolioMgr.Open(exec.Decision.PairID.ChainID, domain.Position{
			PositionID:      exec.TradeID,
			TokenAddress:    exec.Decision.TokenAddress,
			ChainID:         exec.Decision.PairID.ChainID,
			EntryPriceUSD:   decimal.NewFromInt(1),
			CurrentPriceUSD: decimal.NewFromInt(1),
			InitialValueUSD: exec.Decision.PositionSizeUSD,
			OpenedAt:        time.Now(),
		})
	}
	return nil
}

// handleExitTrigger is called by the Portfolio Manager when a price update
// crosses a position's stop-loss or take-profit.
func (e *Engine) handleExitTrigger(pos domain.Position, reason string) {
	pc, ok := e.chainFor(pos.ChainID)
	if !ok {
		return
	}
	decision := domain.TradeDecision{
		PairID:          domain.PairID{ChainID: pos.ChainID, Token0: pos.TokenAddress},
		TokenAddress:    pos.TokenAddress,
		Action:          domain.ActionSell,
		PositionSizeUSD: pos.CurrentValueUSD(),
		Priority:        domain.PriorityHigh,
	}
	correlationID := fmt.Sprintf("exit-%s", pos.PositionID)
	useRelay := pc.relay.ShouldUseRelay(decision.Priority, decimal.Zero)
	job := fastlane.Job{Decision: decision, CorrelationID: correlationID, SubmittedAt: time.Now(), UseRelay: useRelay}
	if err := pc.fastLane.Submit(correlationID, job); err != nil {
		e.log.Warn().Err(err).Str("position_id", pos.PositionID).Str("reason", reason).Msg("exit submission failed")
	}
}

// confidenceScore maps the Smart-Lane's categorical confidence onto the
// numeric field TradeDecision carries for downstream sizing/logging.
func confidenceScore(level domain.ConfidenceLevel) decimal.Decimal {
	switch level {
	case domain.ConfidenceHigh:
		return decimal.NewFromFloat(0.9)
	case domain.ConfidenceMedium:
		return decimal.NewFromFloat(0.65)
	default:
		return decimal.NewFromFloat(0.4)
	}
}

// SeedCapital allocates initial trading capital to chainID's shard. Called
// once at startup per configured chain before Run begins accepting trades.
func (e *Engine) SeedCapital(chainID int64, amountUSD decimal.Decimal) {
	e.portfolioMgr.SeedCapital(chainID, amountUSD)
}

// EmergencyStop halts trading across every chain: it forbids new position
// opens and submits every currently open position for immediate closure.
// It is the operator's manual kill switch, distinct from the automatic
// consecutive-loss trigger the engine feeds on every trade outcome. The
// engine does not call the breaker's daily-loss, portfolio-loss or
// volatility checks.
func (e *Engine) EmergencyStop(reason string) {
	e.portfolioMgr.EmergencyStop(reason)
}

func (e *Engine) chainFor(chainID int64) (*perChain, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pc, ok := e.chains[chainID]
	return pc, ok
}

// Status returns a read-only snapshot of the engine's overall health.
func (e *Engine) Status() EngineStatusSnapshot {
	tripped, events := e.breaker.IsTripped()
	breakerState := "CLEAR"
	if tripped {
		breakerState = string(events[0].Type)
	}

	state := StateRunning
	if tripped {
		state = StateDegraded
	}

	e.mu.RLock()
	chains := make([]int64, 0, len(e.chains))
	for id := range e.chains {
		chains = append(chains, id)
	}
	e.mu.RUnlock()

	return EngineStatusSnapshot{
		Status:        state,
		ActiveChains:  chains,
		DiscoveryRate: e.discoveryRate,
		BreakerState:  breakerState,
	}
}
