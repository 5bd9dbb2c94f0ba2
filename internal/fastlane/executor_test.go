package fastlane

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/eventbus"
	"github.com/dexsentinel/engine/internal/provider"
)

type fakeRiskChecker struct {
	tradeable bool
	reason    string
}

func (f fakeRiskChecker) QuickCheck(ctx context.Context, pair domain.PairID) (bool, string, error) {
	return f.tradeable, f.reason, nil
}

type fakeSigner struct{}

func (fakeSigner) Sign(ctx context.Context, conn *provider.Connection, decision domain.TradeDecision, nonce uint64, fee FeeProposal) (*types.Transaction, error) {
	return types.NewTx(&types.LegacyTx{Nonce: nonce, Gas: 21000}), nil
}

func testExecutor(t *testing.T, risk RiskChecker) *Executor {
	t.Helper()
	mgr := provider.NewManager(1, []config.ProviderConfig{{Name: "p", HTTPURL: "http://p", MaxRPS: 10}}, provider.DefaultManagerConfig())
	bus, err := eventbus.New(eventbus.DefaultConfig())
	require.NoError(t, err)
	nm := NewNonceManager(mgr, 45*time.Second)
	gas := NewGasOptimizer(mgr, 200)
	return NewExecutor(mgr, nm, gas, risk, fakeSigner{}, nil, bus, DefaultExecutorConfig())
}

func testDecision(action domain.TradeAction) domain.TradeDecision {
	return domain.TradeDecision{
		PairID:             domain.PairID{ChainID: 1, Token0: "A", Token1: "B"},
		Action:             action,
		PositionSizeUSD:    decimal.NewFromInt(100),
		MaxSlippagePercent: decimal.NewFromFloat(0.02),
		Priority:           domain.PriorityStandard,
	}
}

func TestExecutor_SkipActionRejectsWithoutReachingSubmission(t *testing.T) {
	e := testExecutor(t, fakeRiskChecker{tradeable: true})
	job := Job{Decision: testDecision(domain.ActionSkip), Wallet: common.HexToAddress("0x1"), CorrelationID: "t1"}
	require.NoError(t, e.Submit("t1", job))
	e.process(context.Background(), job, e.log)
	state, ok := e.Status("t1")
	require.True(t, ok)
	require.Equal(t, StateRejected, state)
}

func TestExecutor_Submit_TracksRecordAndRejectsRiskVeto(t *testing.T) {
	e := testExecutor(t, fakeRiskChecker{tradeable: false, reason: "honeypot detected"})
	require.NoError(t, e.Submit("t2", Job{Decision: testDecision(domain.ActionBuy), Wallet: common.HexToAddress("0x1"), CorrelationID: "t2"}))
	e.process(context.Background(), Job{Decision: testDecision(domain.ActionBuy), Wallet: common.HexToAddress("0x1"), CorrelationID: "t2"}, e.log)
	state, ok := e.Status("t2")
	require.True(t, ok)
	require.Equal(t, StateRejected, state)
}

func TestExecutor_Submit_QueueFullRejectsImmediately(t *testing.T) {
	e := testExecutor(t, fakeRiskChecker{tradeable: true})
	for i := 0; i < queueCapacity; i++ {
		e.queue <- Job{}
	}
	err := e.Submit("overflow", Job{Decision: testDecision(domain.ActionBuy), CorrelationID: "overflow"})
	require.ErrorIs(t, err, ErrQueueFull)
	state, ok := e.Status("overflow")
	require.True(t, ok)
	require.Equal(t, StateRejected, state)
}

func TestIsTerminal(t *testing.T) {
	require.True(t, isTerminal(StateSuccess))
	require.True(t, isTerminal(StateRejected))
	require.False(t, isTerminal(StateGas))
}

func TestSlippageWithinBound(t *testing.T) {
	require.True(t, slippageWithinBound(decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.02)))
	require.False(t, slippageWithinBound(decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.02)))
}

func TestIsTransientSubmitError(t *testing.T) {
	require.True(t, isTransientSubmitError(errors.New("nonce too low")))
	require.True(t, isTransientSubmitError(errors.New("nonce too high")))
	require.True(t, isTransientSubmitError(errors.New("replacement transaction underpriced")))
	require.False(t, isTransientSubmitError(errors.New("insufficient funds for gas * price + value")))
	require.False(t, isTransientSubmitError(nil))
}
