package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/config"
)

func testManager() *Manager {
	cfg := ManagerConfig{FailureThreshold: 3, RecoveryTimeout: 50 * time.Millisecond, HealthCheckInterval: time.Hour}
	return NewManager(1, []config.ProviderConfig{
		{Name: "primary", HTTPURL: "http://primary", Priority: 1, MaxRPS: 10},
		{Name: "secondary", HTTPURL: "http://secondary", Priority: 5, MaxRPS: 10},
	}, cfg)
}

func TestPriorityScore_LowerPriorityWins(t *testing.T) {
	m := testManager()
	e, err := m.selectBest(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "primary", e.cfg.Name)
}

func TestCircuitOpensAfterThreshold_NeverSelectedWhileOpen(t *testing.T) {
	m := testManager()
	primary := m.entries[0]

	// Trip the breaker directly via repeated failed Executes.
	for i := 0; i < 3; i++ {
		_, _ = primary.breaker.Execute(func() (interface{}, error) {
			return nil, errors.New("boom")
		})
	}

	e, err := m.selectBest(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "secondary", e.cfg.Name, "circuit-open provider must never be selected")
}

func TestCircuitRecoversAfterTimeout(t *testing.T) {
	m := testManager()
	primary := m.entries[0]
	for i := 0; i < 3; i++ {
		_, _ = primary.breaker.Execute(func() (interface{}, error) {
			return nil, errors.New("boom")
		})
	}

	e, err := m.selectBest(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "secondary", e.cfg.Name)

	time.Sleep(60 * time.Millisecond)

	e, err = m.selectBest(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "primary", e.cfg.Name, "provider becomes selectable again once recovery_timeout elapses")
}

func TestAllProvidersUnhealthy_ReturnsNoHealthyProvider(t *testing.T) {
	m := testManager()
	for _, e := range m.entries {
		for i := 0; i < 3; i++ {
			_, _ = e.breaker.Execute(func() (interface{}, error) {
				return nil, errors.New("boom")
			})
		}
	}

	_, err := m.selectBest(time.Now())
	assert.ErrorIs(t, err, ErrNoHealthyProvider)
}

func TestExecuteWithFailover_OperationErrorNotRetried(t *testing.T) {
	m := testManager()
	m.dialFn = func(ctx context.Context, httpURL string) (*ethclient.Client, *rpc.Client, error) {
		return nil, nil, nil // op below never touches the connection
	}

	calls := 0
	opErr := &testOperationError{}
	_, err := ExecuteWithFailover(context.Background(), m, func(ctx context.Context, conn *Connection) (int, error) {
		calls++
		return 0, opErr
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "operation-shaped errors must not trigger provider failover retries")
}

type testOperationError struct{}

func (e *testOperationError) Error() string  { return "operation failed" }
func (e *testOperationError) ErrorCode() int { return -32000 }
