package risk

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// probeAmountWei is a small, fixed probe size for the buy/sell route check
// so the simulation never depends on the caller's actual balance.
var probeAmountWei = big.NewInt(1e15) // 0.001 of the reference asset

// HoneypotAnalyzer checks that a router quote exists in both swap
// directions. A route that quotes for buys but reverts for sells is the
// single strongest honeypot signal available without submitting a real
// transaction (getAmountsOut does not execute transfer hooks, so a token
// that only blocks sells inside _transfer will still pass this check —
// reflected in the analyzer's capped confidence).
type HoneypotAnalyzer struct{}

func NewHoneypotAnalyzer() *HoneypotAnalyzer { return &HoneypotAnalyzer{} }

func (a *HoneypotAnalyzer) Category() domain.RiskCategory { return domain.CategoryHoneypot }

func (a *HoneypotAnalyzer) Analyze(ctx context.Context, mgr *provider.Manager, target Target) (domain.RiskCategoryScore, error) {
	if target.RouterV2 == "" {
		return domain.RiskCategoryScore{
			Category:    domain.CategoryHoneypot,
			Score:       decimal.NewFromFloat(0.5),
			Confidence:  decimal.NewFromFloat(0.2),
			DataQuality: domain.DataQualityPoor,
			Warnings:    []string{"no V2-compatible router configured, sell-route probe skipped"},
		}, nil
	}

	token := common.HexToAddress(target.Token.Address)
	counterparty := common.HexToAddress(target.Counterparty.Address)

	buyAmounts, buyErr := QuoteAmountsOut(ctx, mgr, target.RouterV2, probeAmountWei, []common.Address{counterparty, token})
	if buyErr != nil || len(buyAmounts) < 2 || buyAmounts[1].Sign() <= 0 {
		// No buy route at all: can't reach a honeypot verdict, but also
		// can't trade it, so treat as maximally risky with low confidence.
		return domain.RiskCategoryScore{
			Category:    domain.CategoryHoneypot,
			Score:       decimal.NewFromFloat(0.8),
			Confidence:  decimal.NewFromFloat(0.3),
			DataQuality: domain.DataQualityPoor,
			Warnings:    []string{"no buy route quoted"},
		}, nil
	}

	sellAmount := buyAmounts[1]
	sellAmounts, sellErr := QuoteAmountsOut(ctx, mgr, target.RouterV2, sellAmount, []common.Address{token, counterparty})
	if sellErr != nil || len(sellAmounts) < 2 || sellAmounts[1].Sign() <= 0 {
		return domain.RiskCategoryScore{
			Category:    domain.CategoryHoneypot,
			Score:       decimal.NewFromFloat(0.95),
			Confidence:  decimal.NewFromFloat(0.55),
			DataQuality: domain.DataQualityFair,
			Warnings:    []string{"buy route quotes but sell route reverts, likely honeypot"},
		}, nil
	}

	return domain.RiskCategoryScore{
		Category:    domain.CategoryHoneypot,
		Score:       decimal.NewFromFloat(0.1),
		Confidence:  decimal.NewFromFloat(0.55),
		DataQuality: domain.DataQualityFair,
		Warnings:    nil,
		Details:     map[string]any{"buy_route_exists": true, "sell_route_exists": true},
	}, nil
}
