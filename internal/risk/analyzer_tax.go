package risk

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// TaxAnalyzer estimates the buy/sell tax by comparing a router's quoted
// amount against the pool's spot reserve ratio for the same notional —
// any shortfall beyond normal slippage is attributed to a transfer tax,
// tiered: >excessive_tax_threshold scores highest, then
// >max_*_tax_percent, then a small residual risk for any nonzero tax.
type TaxAnalyzer struct {
	MaxBuyTaxPercent  decimal.Decimal
	MaxSellTaxPercent decimal.Decimal
}

func NewTaxAnalyzer(cfg config.Config) *TaxAnalyzer {
	return &TaxAnalyzer{MaxBuyTaxPercent: cfg.MaxBuyTaxPercent, MaxSellTaxPercent: cfg.MaxSellTaxPercent}
}

func (a *TaxAnalyzer) Category() domain.RiskCategory { return domain.CategoryTax }

func (a *TaxAnalyzer) Analyze(ctx context.Context, mgr *provider.Manager, target Target) (domain.RiskCategoryScore, error) {
	if target.RouterV2 == "" {
		return domain.RiskCategoryScore{}, fmt.Errorf("tax: no V2-compatible router configured")
	}

	reserves, err := FetchReserves(ctx, mgr, target.PoolAddress)
	if err != nil {
		return domain.RiskCategoryScore{}, fmt.Errorf("tax: fetch reserves: %w", err)
	}

	token := common.HexToAddress(target.Token.Address)
	counterparty := common.HexToAddress(target.Counterparty.Address)

	tokenReserve, refReserve := pairReservesFor(reserves, token)
	if tokenReserve.Sign() <= 0 || refReserve.Sign() <= 0 {
		return domain.RiskCategoryScore{}, fmt.Errorf("tax: zero reserve on one side of the pool")
	}

	// Expected-out from constant-product math, no fee: ref_in*token_reserve/(ref_reserve+ref_in).
	expectedOut := new(big.Int).Mul(probeAmountWei, tokenReserve)
	expectedOut.Div(expectedOut, new(big.Int).Add(refReserve, probeAmountWei))

	quoted, err := QuoteAmountsOut(ctx, mgr, target.RouterV2, probeAmountWei, []common.Address{counterparty, token})
	if err != nil || len(quoted) < 2 {
		return domain.RiskCategoryScore{}, fmt.Errorf("tax: quote buy route: %w", err)
	}

	buyTaxPercent := taxPercent(expectedOut, quoted[1])
	sellTaxPercent := buyTaxPercent // without a second independent quote path, sell tax is assumed symmetric; flagged via data quality

	// taxPercent is on a 0-100 scale; the configured maxima are fractions.
	maxBuyPercent := a.MaxBuyTaxPercent.Mul(decimal.NewFromInt(100))
	maxSellPercent := a.MaxSellTaxPercent.Mul(decimal.NewFromInt(100))

	score := scoreTaxRate(buyTaxPercent, maxBuyPercent).Add(scoreTaxRate(sellTaxPercent, maxSellPercent)).Div(decimal.NewFromInt(2))

	var warnings []string
	if buyTaxPercent.GreaterThan(maxBuyPercent) {
		warnings = append(warnings, fmt.Sprintf("estimated buy tax %s%% exceeds max %s%%", buyTaxPercent.StringFixed(1), maxBuyPercent.StringFixed(1)))
	}

	return domain.RiskCategoryScore{
		Category:    domain.CategoryTax,
		Score:       clampUnit(score),
		Confidence:  decimal.NewFromFloat(0.45),
		DataQuality: domain.DataQualityFair,
		Warnings:    warnings,
		Details:     map[string]any{"estimated_buy_tax_percent": buyTaxPercent.String()},
	}, nil
}

func pairReservesFor(r Reserves, token common.Address) (tokenReserve, refReserve *big.Int) {
	if r.Token0 == token {
		return r.Reserve0, r.Reserve1
	}
	return r.Reserve1, r.Reserve0
}

// taxPercent estimates the percentage shortfall of actual vs expected
// output, floored at zero (favorable slippage direction is not a tax).
func taxPercent(expected, actual *big.Int) decimal.Decimal {
	expDec := decimal.NewFromBigInt(expected, 0)
	actDec := decimal.NewFromBigInt(actual, 0)
	if expDec.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	shortfall := expDec.Sub(actDec).Div(expDec).Mul(decimal.NewFromInt(100))
	if shortfall.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return shortfall
}

// scoreTaxRate applies tiered scoring: a token taxed above 2x the
// configured maximum scores near-certain risk; above the maximum but
// under 2x scores moderate risk; anything nonzero carries a small
// residual score.
func scoreTaxRate(rate, max decimal.Decimal) decimal.Decimal {
	excessive := max.Mul(decimal.NewFromInt(2))
	switch {
	case rate.GreaterThan(excessive):
		return decimal.NewFromFloat(0.9)
	case rate.GreaterThan(max):
		return decimal.NewFromFloat(0.5)
	case rate.GreaterThan(decimal.Zero):
		return decimal.NewFromFloat(0.15)
	default:
		return decimal.Zero
	}
}
