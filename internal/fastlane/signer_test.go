package fastlane

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/chainconfig"
	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/domain"
)

func testSigner(t *testing.T) *EVMSigner {
	t.Helper()
	registry, err := chainconfig.NewRegistry([]config.ChainConfig{
		{ChainID: 1, RouterV2: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", WETH: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
	})
	require.NoError(t, err)

	signer, err := NewEVMSigner("0xdcee4a07e727592ee84ffd0e9194a7cb8f250ef83c37fd7d4d38c13844f53be9", registry)
	require.NoError(t, err)
	return signer
}

func TestBuildCalldata_BuyPacksSwapExactETHForTokens(t *testing.T) {
	s := testSigner(t)
	chain, ok := s.registry.Get(1)
	require.True(t, ok)

	decision := domain.TradeDecision{
		PairID:          domain.PairID{ChainID: 1},
		TokenAddress:    "0x1111111111111111111111111111111111111111",
		Action:          domain.ActionBuy,
		PositionSizeUSD: decimal.NewFromInt(1_000_000_000_000_000_000),
	}

	data, value, err := s.buildCalldata(decision, chain)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	require.Equal(t, decision.PositionSizeUSD.BigInt(), value)
}

func TestBuildCalldata_SellPacksSwapExactTokensForETH(t *testing.T) {
	s := testSigner(t)
	chain, ok := s.registry.Get(1)
	require.True(t, ok)

	decision := domain.TradeDecision{
		PairID:          domain.PairID{ChainID: 1},
		TokenAddress:    "0x1111111111111111111111111111111111111111",
		Action:          domain.ActionSell,
		PositionSizeUSD: decimal.NewFromInt(500),
	}

	data, value, err := s.buildCalldata(decision, chain)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	require.Equal(t, int64(0), value.Int64())
}

func TestBuildCalldata_SkipActionRejected(t *testing.T) {
	s := testSigner(t)
	chain, ok := s.registry.Get(1)
	require.True(t, ok)

	decision := domain.TradeDecision{Action: domain.ActionSkip}
	_, _, err := s.buildCalldata(decision, chain)
	require.Error(t, err)
}
