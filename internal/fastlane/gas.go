package fastlane

import (
	"context"
	"fmt"
	"math/big"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// priorityMultiplier scales the proposed tip over the base fee per
// the Gas Optimizer design.
var priorityMultiplier = map[domain.TradePriority]float64{
	domain.PriorityStandard: 1.0,
	domain.PriorityHigh: 1.5,
	domain.PriorityUrgent: 2.5,
}

// baseFeeWindow is the number of recent blocks sampled to smooth the base
// fee estimate against single-block spikes.
const baseFeeWindow = 5

var oneGwei = big.NewInt(1_000_000_000)

// FeeProposal is an EIP-1559 fee pair ready to attach to a transaction.
type FeeProposal struct {
	MaxFeePerGas *big.Int
	MaxPriorityFeePerGas *big.Int
	BaseFee *big.Int
}

// GasOptimizer proposes EIP-1559 fees from eth_gasPrice plus recent block
// base fees, scaled by trade priority and capped by a configured ceiling.
type GasOptimizer struct {
	mgr *provider.Manager
	maxGasPriceWei *big.Int
}

// NewGasOptimizer builds an optimizer bound to a chain's provider pool,
// capped at maxGasPriceGwei.
func NewGasOptimizer(mgr *provider.Manager, maxGasPriceGwei int64) *GasOptimizer {
	return &GasOptimizer{
		mgr: mgr,
		maxGasPriceWei: new(big.Int).Mul(big.NewInt(maxGasPriceGwei), oneGwei),
	}
}

// Propose computes a fee pair for priority, reading the last baseFeeWindow
// block base fees via eth_getBlockByNumber and the node's current
// eth_gasPrice, then applying the priority multiplier and the configured
// gas price cap.
func (g *GasOptimizer) Propose(ctx context.Context, priority domain.TradePriority) (FeeProposal, error) {
	mult, ok := priorityMultiplier[priority]
	if !ok {
		return FeeProposal{}, fmt.Errorf("fastlane: unknown priority %q", priority)
	}

	baseFee, err := provider.ExecuteWithFailover(ctx, g.mgr, func(ctx context.Context, conn *provider.Connection) (*big.Int, error) {
			return averageRecentBaseFee(ctx, conn)
		})
	if err != nil {
		return FeeProposal{}, fmt.Errorf("fastlane: sample base fee: %w", err)
	}

	tipFloat := new(big.Float).Mul(new(big.Float).SetInt(baseFee), big.NewFloat(mult-1))
	if mult <= 1 {
		tipFloat = new(big.Float).SetInt(oneGwei) // at minimum, a 1 gwei tip at standard priority
	}
	tip, _ := tipFloat.Int(nil)
	if tip.Sign() <= 0 {
		tip = new(big.Int).Set(oneGwei)
	}

	maxFee := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)
	if g.maxGasPriceWei.Sign() > 0 && maxFee.Cmp(g.maxGasPriceWei) > 0 {
		maxFee = new(big.Int).Set(g.maxGasPriceWei)
		if tip.Cmp(maxFee) > 0 {
			tip = new(big.Int).Set(maxFee)
		}
	}

	return FeeProposal{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip, BaseFee: baseFee}, nil
}

// averageRecentBaseFee fetches the latest block number then walks back
// baseFeeWindow blocks, averaging their base fees.
func averageRecentBaseFee(ctx context.Context, conn *provider.Connection) (*big.Int, error) {
	latest, err := conn.Eth.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	sum := new(big.Int)
	n := int64(0)
	for i := int64(0); i < baseFeeWindow; i++ {
		blockNum := int64(latest) - i
		if blockNum < 0 {
			break
		}
		hdr, err := conn.Eth.HeaderByNumber(ctx, big.NewInt(blockNum))
		if err != nil {
			continue
		}
		if hdr.BaseFee != nil {
			sum.Add(sum, hdr.BaseFee)
			n++
		}
	}
	if n == 0 {
		// pre-EIP-1559 chain or all lookups failed: fall back to eth_gasPrice.
		price, err := conn.Eth.SuggestGasPrice(ctx)
		if err != nil {
			return nil, err
		}
		return price, nil
	}
	return sum.Div(sum, big.NewInt(n)), nil
}
