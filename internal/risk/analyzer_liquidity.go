package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// slippageProbe pairs a trade-size probe (in reference-asset USD) with the
// maximum price impact a pool is allowed to show at that size before the
// probe counts as a liquidity-risk warning. The ladder widens at larger
// sizes: a pool unable to absorb a $100 trade without moving price 1% is a
// different class of thin than one that only struggles at $50k.
var slippageProbeLadder = []struct {
	probeUSD           decimal.Decimal
	maxSlippagePercent decimal.Decimal
}{
	{decimal.NewFromInt(100), decimal.NewFromFloat(0.01)},
	{decimal.NewFromInt(500), decimal.NewFromFloat(0.02)},
	{decimal.NewFromInt(1000), decimal.NewFromFloat(0.03)},
	{decimal.NewFromInt(5000), decimal.NewFromFloat(0.05)},
	{decimal.NewFromInt(10000), decimal.NewFromFloat(0.08)},
	{decimal.NewFromInt(50000), decimal.NewFromFloat(0.15)},
}

// probeSlippage estimates the price impact of trading probeUSD against a
// pool holding poolUSD in total value, under the constant-product AMM
// invariant. No oracle prices either side of this codebase's pools, so
// poolUSD is itself only an approximation (see Analyze); this is a probe of
// relative depth, not a guarantee of the fill price a real swap would get.
func probeSlippage(probeUSD, poolUSD decimal.Decimal) decimal.Decimal {
	if poolUSD.LessThanOrEqual(decimal.Zero) {
		return decimal.NewFromInt(1)
	}
	return probeUSD.Div(poolUSD.Add(probeUSD))
}

// LiquidityAnalyzer grades pool depth, slippage tolerance, and LP-lock
// status against the configured minimums (the Liquidity category is
// blocking, weight 0.20).
type LiquidityAnalyzer struct {
	MinLiquidityUSD  decimal.Decimal
	MinLockedPercent decimal.Decimal
}

// NewLiquidityAnalyzer builds the analyzer from the engine config.
func NewLiquidityAnalyzer(cfg config.Config) *LiquidityAnalyzer {
	return &LiquidityAnalyzer{
		MinLiquidityUSD:  cfg.MinLiquidityUSD,
		MinLockedPercent: cfg.MinLockedPercent,
	}
}

func (a *LiquidityAnalyzer) Category() domain.RiskCategory { return domain.CategoryLiquidity }

func (a *LiquidityAnalyzer) Analyze(ctx context.Context, mgr *provider.Manager, target Target) (domain.RiskCategoryScore, error) {
	reserves, err := FetchReserves(ctx, mgr, target.PoolAddress)
	if err != nil {
		return domain.RiskCategoryScore{}, fmt.Errorf("liquidity: fetch reserves: %w", err)
	}

	// The reference-asset side (WETH/USDC) of the pool approximates total
	// pool value at 2x its own reserve (both sides roughly balanced in
	// value at pool creation). Real valuation would price the non-reference
	// side too, but that needs an external price oracle this analyzer
	// doesn't have.
	var refReserve decimal.Decimal
	if strings.EqualFold(reserves.Token0.Hex(), target.Counterparty.Address) {
		refReserve = amountToDecimal(reserves.Reserve0, target.Counterparty.Decimals)
	} else {
		refReserve = amountToDecimal(reserves.Reserve1, target.Counterparty.Decimals)
	}

	liquidityUSD := refReserve.Mul(decimal.NewFromInt(2))
	if !target.IsWETHPair {
		// Non-WETH, non-stable reference assets cannot be valued without a
		// price feed; degrade confidence rather than guess a USD figure.
		return domain.RiskCategoryScore{
			Category:    domain.CategoryLiquidity,
			Score:       decimal.NewFromFloat(0.5),
			Confidence:  decimal.NewFromFloat(0.3),
			DataQuality: domain.DataQualityFair,
			Warnings:    []string{"pool is not WETH-paired, liquidity valuation approximate"},
			Details:     map[string]any{"reference_reserve": refReserve.String()},
		}, nil
	}

	floor := a.MinLiquidityUSD.Mul(decimal.NewFromInt(3))
	var score decimal.Decimal
	if floor.GreaterThan(decimal.Zero) {
		score = decimal.NewFromInt(1).Sub(liquidityUSD.Div(floor))
	}
	score = clampUnit(score)

	var warnings []string
	if liquidityUSD.LessThan(a.MinLiquidityUSD) {
		warnings = append(warnings, fmt.Sprintf("liquidity $%s below minimum $%s", liquidityUSD.StringFixed(0), a.MinLiquidityUSD.StringFixed(0)))
	}

	failedProbes := 0
	probeResults := make(map[string]string, len(slippageProbeLadder))
	for _, probe := range slippageProbeLadder {
		impact := probeSlippage(probe.probeUSD, liquidityUSD)
		probeResults[probe.probeUSD.StringFixed(0)] = impact.StringFixed(4)
		if impact.GreaterThan(probe.maxSlippagePercent) {
			failedProbes++
			warnings = append(warnings, fmt.Sprintf("$%s probe slippage %s%% exceeds %s%% threshold",
				probe.probeUSD.StringFixed(0), impact.Mul(decimal.NewFromInt(100)).StringFixed(2), probe.maxSlippagePercent.Mul(decimal.NewFromInt(100)).StringFixed(2)))
			// A probe ladder failure raises the floor on the category score:
			// thin-depth pools clear the raw reserve heuristic if the
			// reference reserve alone looks adequate, but blow through
			// slippage tolerance at realistic trade sizes.
			floorForFailure := decimal.NewFromFloat(0.3).Add(decimal.NewFromFloat(0.1).Mul(decimal.NewFromInt(int64(failedProbes))))
			if floorForFailure.GreaterThan(score) {
				score = floorForFailure
			}
		}
	}
	score = clampUnit(score)

	confidence := decimal.NewFromFloat(0.9)
	dataQuality := domain.DataQualityGood

	lockPercent, err := LPLockPercent(ctx, mgr, target.PoolAddress)
	if err != nil {
		// A missing lock signal is not treated as a pass: the engine cannot
		// tell a genuinely locked pool from an RPC hiccup, so it degrades
		// confidence instead of silently assuming safety.
		warnings = append(warnings, "lp lock percent unavailable: "+err.Error())
		confidence = decimal.NewFromFloat(0.6)
		dataQuality = domain.DataQualityFair
	} else if lockPercent.LessThan(a.MinLockedPercent) {
		warnings = append(warnings, fmt.Sprintf("lp locked/burned %s%% below minimum %s%%",
			lockPercent.Mul(decimal.NewFromInt(100)).StringFixed(2), a.MinLockedPercent.Mul(decimal.NewFromInt(100)).StringFixed(2)))
		if decimal.NewFromFloat(0.7).GreaterThan(score) {
			score = decimal.NewFromFloat(0.7)
		}
	}
	score = clampUnit(score)

	return domain.RiskCategoryScore{
		Category:    domain.CategoryLiquidity,
		Score:       score,
		Confidence:  confidence,
		DataQuality: dataQuality,
		Warnings:    warnings,
		Details: map[string]any{
			"liquidity_usd":     liquidityUSD.String(),
			"lp_locked_percent": lockPercent.String(),
			"slippage_probes":   probeResults,
		},
	}, nil
}
