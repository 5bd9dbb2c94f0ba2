// Package provider implements the Provider Manager: a
// per-chain pool of RPC endpoints with health tracking, rate limiting,
// circuit breaking and failover.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/dexsentinel/engine/internal/config"
)

// ErrNoHealthyProvider is returned by execute-with-failover style calls when
// every provider in the pool is currently unselectable.
var ErrNoHealthyProvider = errors.New("provider: no healthy provider available")

// Connection bundles the two client shapes callers need: the high-level
// ethclient.Client for most calls, and the underlying *rpc.Client for raw
// method invocation (e.g. eth_getLogs with a custom filter shape).
type Connection struct {
	Provider config.ProviderConfig
	Eth *ethclient.Client
	RPC *rpc.Client
}

// entry is one provider's runtime state inside the pool.
type entry struct {
	cfg config.ProviderConfig
	health *Health
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	conn *Connection
	connMu sync.Mutex
}

// Manager is the per-chain ordered pool described in
type Manager struct {
	chainID int64
	cfg ManagerConfig
	log zerolog.Logger

	mu sync.RWMutex
	entries []*entry

	dialFn func(ctx context.Context, httpURL string) (*ethclient.Client, *rpc.Client, error)
}

// ManagerConfig mirrors the provider_* options in
type ManagerConfig struct {
	FailureThreshold int
	RecoveryTimeout time.Duration
	HealthCheckInterval time.Duration
}

// DefaultManagerConfig returns the stated defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		FailureThreshold: 3,
		RecoveryTimeout: 300 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// ManagerConfigFrom adapts the global config into a ManagerConfig.
func ManagerConfigFrom(c *config.Config) ManagerConfig {
	return ManagerConfig{
		FailureThreshold: c.ProviderFailoverThreshold,
		RecoveryTimeout: c.ProviderRecoveryTime,
		HealthCheckInterval: c.ProviderHealthCheckInterval,
	}
}

// NewManager builds a provider pool for one chain. dialFn defaults to a real
// ethclient/rpc dial and is only overridden in tests.
func NewManager(chainID int64, providers []config.ProviderConfig, cfg ManagerConfig) *Manager {
	m := &Manager{
		chainID: chainID,
		cfg: cfg,
		log: log.With().Int64("chain_id", chainID).Str("component", "provider_manager").Logger(),
		dialFn: dialEthereum,
	}
	for _, p := range providers {
		burst := p.MaxRPS * 2
		if burst > 100 {
			burst = 100
		}
		if burst < 1 {
			burst = 1
		}
		settings := gobreaker.Settings{
			Name: fmt.Sprintf("provider:%d:%s", chainID, p.Name),
			MaxRequests: 1,
			Interval: 0, // counts never reset except by Timeout
			Timeout: cfg.RecoveryTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return int(counts.ConsecutiveFailures) >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("provider circuit breaker state change")
			},
		}
		m.entries = append(m.entries, &entry{
				cfg: p,
				health: newHealth(),
				limiter: rate.NewLimiter(rate.Limit(p.MaxRPS), burst),
				breaker: gobreaker.NewCircuitBreaker(settings),
			})
	}
	return m
}

// priorityScore implements the
// priority_score = base_priority + status_penalty + latency_penalty + consecutive_failure_penalty,
// lowest wins.
func priorityScore(e *entry) float64 {
	snap := e.health.Snapshot()
	score := float64(e.cfg.Priority)

	switch snap.Status {
	case StatusHealthy:
		score += 0
	case StatusDegraded:
		score += 50
	case StatusFailing:
		score += 200
	case StatusCircuitOpen, StatusOffline:
		score += math.MaxFloat32 // excluded by IsSelectable anyway; defensive
	}

	score += snap.LatencyEMAMs / 100
	score += float64(snap.ConsecutiveFailures) * 10
	return score
}

// selectBest picks the lowest-scoring selectable provider, closing expired
// circuits first so a recovered provider is eligible in the same pass.
func (m *Manager) selectBest(now time.Time) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []*entry
	for _, e := range m.entries {
		e.health.MaybeCloseCircuit(now)
		if e.breaker.State() == gobreaker.StateOpen {
			e.health.OpenCircuit(now.Add(m.cfg.RecoveryTimeout))
			continue
		}
		if !e.health.IsSelectable(now) {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return nil, ErrNoHealthyProvider
	}
	sort.Slice(candidates, func(i, j int) bool {
			return priorityScore(candidates[i]) < priorityScore(candidates[j])
		})
	return candidates[0], nil
}

// GetConnection returns a live connection to the best currently-selectable
// provider, dialing lazily and caching the client per entry.
func (m *Manager) GetConnection(ctx context.Context) (*Connection, error) {
	e, err := m.selectBest(time.Now())
	if err != nil {
		return nil, err
	}
	return m.connectionFor(ctx, e)
}

func (m *Manager) connectionFor(ctx context.Context, e *entry) (*Connection, error) {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.conn != nil {
		return e.conn, nil
	}
	if !e.limiter.Allow() {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("provider %s: rate limiter wait: %w", e.cfg.Name, err)
		}
	}
	eth, rpcClient, err := m.dialFn(ctx, e.cfg.HTTPURL)
	if err != nil {
		e.health.MarkOffline()
		return nil, fmt.Errorf("provider %s: dial: %w", e.cfg.Name, err)
	}
	e.conn = &Connection{Provider: e.cfg, Eth: eth, RPC: rpcClient}
	return e.conn, nil
}

func dialEthereum(ctx context.Context, httpURL string) (*ethclient.Client, *rpc.Client, error) {
	rpcClient, err := rpc.DialContext(ctx, httpURL)
	if err != nil {
		return nil, nil, err
	}
	return ethclient.NewClient(rpcClient), rpcClient, nil
}

// connErrClassifier reports whether err is connection-shaped (network-level,
// should mark the provider failing) as opposed to operation-shaped (a
// semantic RPC error that says nothing about the provider's health).
// Operation-shaped errors (e.g. "execution reverted", invalid params) do not
// penalize the provider
type connErrClassifier func(err error) bool

var defaultConnErrClassifier connErrClassifier = func(err error) bool {
	if err == nil {
		return false
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	// go-ethereum/rpc wraps JSON-RPC errors in *rpc.jsonError which carries a
	// Code(); those are operation-shaped. Anything else reaching this layer
	// (dial failures, context deadline, EOF, connection reset) is treated as
	// connection-shaped.
	if _, ok := err.(rpc.Error); ok {
		return false
	}
	return true
}

// Op is one attempt's worth of work, bound to a specific connection. Returning
// a non-nil, non-operation classified error triggers provider failover.
type Op[T any] func(ctx context.Context, conn *Connection) (T, error)

// ExecuteWithFailover implements the failover policy: up to 3
// attempts with exponential backoff (0.5/1/2s), re-selecting the best
// provider each attempt.
func ExecuteWithFailover[T any](ctx context.Context, m *Manager, op Op[T]) (T, error) {
	var zero T
	backoffs := []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		e, err := m.selectBest(time.Now())
		if err != nil {
			return zero, err
		}
		conn, err := m.connectionFor(ctx, e)
		if err != nil {
			lastErr = err
			m.sleep(ctx, backoffs[attempt])
			continue
		}

		start := time.Now()
		result, callErr := e.breaker.Execute(func() (interface{}, error) {
				return op(ctx, conn)
			})
		if callErr == nil {
			e.health.RecordSuccess(time.Since(start))
			return result.(T), nil
		}

		lastErr = callErr
		if defaultConnErrClassifier(callErr) {
			e.health.RecordFailure()
			e.connMu.Lock()
			e.conn = nil // force redial on the next attempt
			e.connMu.Unlock()
			m.log.Warn().Str("provider", e.cfg.Name).Err(callErr).Msg("connection-shaped failure, marking provider failing")
		} else {
			m.log.Debug().Str("provider", e.cfg.Name).Err(callErr).Msg("operation-shaped failure, provider health unaffected")
			return zero, callErr // operation-shaped errors are not retried across providers
		}

		if attempt < 2 {
			m.sleep(ctx, backoffs[attempt])
		}
	}
	return zero, fmt.Errorf("provider: exhausted failover attempts: %w", lastErr)
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// HealthCheck performs the cheap "latest block" probe used by the periodic
// health-check loop.
func (m *Manager) HealthCheck(ctx context.Context) {
	m.mu.RLock()
	entries := append([]*entry(nil), m.entries...)
	m.mu.RUnlock()

	for _, e := range entries {
		conn, err := m.connectionFor(ctx, e)
		if err != nil {
			continue
		}
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err = conn.Eth.BlockNumber(cctx)
		cancel()
		if err != nil {
			e.health.RecordFailure()
			continue
		}
		e.health.RecordSuccess(time.Since(start))
	}
}

// RunHealthLoop probes all providers on HealthCheckInterval until ctx is done.
func (m *Manager) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.HealthCheck(ctx)
		}
	}
}

// Snapshot returns a point-in-time view of every provider's health, keyed by
// provider name, for engine status reporting.
func (m *Manager) Snapshot() map[string]Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Snapshot, len(m.entries))
	for _, e := range m.entries {
		out[e.cfg.Name] = e.health.Snapshot()
	}
	return out
}
