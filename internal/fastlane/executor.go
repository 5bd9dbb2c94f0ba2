// Package fastlane implements the Fast-Lane Executor: a
// low-latency execution path for trades that skip the Smart-Lane pipeline,
// built on a bounded work queue, a fixed worker pool, per-trade nonce
// management and EIP-1559 gas pricing.
package fastlane

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/eventbus"
	"github.com/dexsentinel/engine/internal/provider"
	"github.com/dexsentinel/engine/internal/relay"
)

// State is a trade's position in the fast-lane state machine.
type State string

const (
	StateIdle State = "IDLE"
	StateValidating State = "VALIDATING"
	StateRiskCheck State = "RISK_CHECK"
	StateGas State = "GAS"
	StateSign State = "SIGN"
	StateSubmit State = "SUBMIT"
	StateSuccess State = "SUCCESS"
	StateFailed State = "FAILED"
	StateTimeout State = "TIMEOUT"
	StateRejected State = "REJECTED"
	StateSlippageExceeded State = "SLIPPAGE_EXCEEDED"
	StateInsufficientFunds State = "INSUFFICIENT_FUNDS"
)

// queueCapacity and defaultMaxConcurrent mirror the stated
// fast-lane sizing: a bounded MPSC queue and a small worker pool so a burst
// of signals cannot unbound memory or starve slower trades of gas pricing
// freshness.
const (
	queueCapacity = 1000
	defaultMaxConcurrent = 5
	defaultExecutionTimeout = 500 * time.Millisecond
	resultRetention = time.Hour
)

// Signer produces a signed, ready-to-submit transaction for a trade
// decision. It does not submit the transaction; the executor routes it
// through the private relay or the public mempool.
type Signer interface {
	Sign(ctx context.Context, conn *provider.Connection, decision domain.TradeDecision, nonce uint64, fee FeeProposal) (*types.Transaction, error)
}

// RiskChecker is the narrow slice of the Risk Assessment Engine the
// fast-lane calls synchronously before submission — still risk-checked,
// just without the Smart-Lane's multi-phase analysis.
type RiskChecker interface {
	QuickCheck(ctx context.Context, pair domain.PairID) (tradeable bool, reason string, err error)
}

// Job is one queued fast-lane trade request.
type Job struct {
	Decision domain.TradeDecision
	Wallet common.Address
	CorrelationID string
	SubmittedAt time.Time
	// UseRelay routes the signed transaction through the private relay
	// (falling back to the public mempool on relay failure) instead of
	// broadcasting it directly. Set by the caller's MEV-risk/priority
	// routing decision.
	UseRelay bool
}

// record is a job's tracked lifecycle, retained for resultRetention after
// terminal state for status reporting and alerting.
type record struct {
	job Job
	state State
	execution domain.TradeExecution
	enteredAt time.Time
}

// Executor runs the fast-lane worker pool.
type Executor struct {
	mgr *provider.Manager
	nonces *NonceManager
	gas *GasOptimizer
	risk RiskChecker
	signer Signer
	relay *relay.Client
	bus *eventbus.Bus
	log zerolog.Logger

	maxConcurrent int
	executionTimeout time.Duration

	queue chan Job

	mu sync.RWMutex
	records map[string]*record // keyed by TradeID

	wg sync.WaitGroup
	cancel context.CancelFunc
}

// ExecutorConfig controls fast-lane concurrency and timing.
type ExecutorConfig struct {
	MaxConcurrentTrades int
	ExecutionTimeout time.Duration
}

// DefaultExecutorConfig matches the stated defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{MaxConcurrentTrades: defaultMaxConcurrent, ExecutionTimeout: defaultExecutionTimeout}
}

// NewExecutor builds a fast-lane executor. relayClient may be nil for
// chains that don't support a private relay; jobs with UseRelay set then
// go straight to the public mempool. Start must be called before jobs are
// processed.
func NewExecutor(mgr *provider.Manager, nonces *NonceManager, gas *GasOptimizer, risk RiskChecker, signer Signer, relayClient *relay.Client, bus *eventbus.Bus, cfg ExecutorConfig) *Executor {
	if cfg.MaxConcurrentTrades <= 0 {
		cfg.MaxConcurrentTrades = defaultMaxConcurrent
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = defaultExecutionTimeout
	}
	return &Executor{
		mgr: mgr,
		nonces: nonces,
		gas: gas,
		risk: risk,
		signer: signer,
		relay: relayClient,
		bus: bus,
		log: log.With().Str("component", "fastlane_executor").Logger(),
		maxConcurrent: cfg.MaxConcurrentTrades,
		executionTimeout: cfg.ExecutionTimeout,
		queue: make(chan Job, queueCapacity),
		records: make(map[string]*record),
	}
}

// Start launches the worker pool and a background sweeper that evicts
// terminal records older than resultRetention.
func (e *Executor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	for i := 0; i < e.maxConcurrent; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i)
	}
	go e.sweepLoop(ctx)
}

// Stop cancels all workers and waits for them to drain.
func (e *Executor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Submit enqueues job, returning ErrQueueFull if the bounded queue is
// saturated.
var ErrQueueFull = fmt.Errorf("fastlane: queue at capacity (%d)", queueCapacity)

func (e *Executor) Submit(tradeID string, job Job) error {
	e.mu.Lock()
	e.records[tradeID] = &record{job: job, state: StateIdle, enteredAt: time.Now()}
	e.mu.Unlock()

	select {
	case e.queue <- job:
		return nil
	default:
		e.transition(tradeID, StateRejected)
		return ErrQueueFull
	}
}

// Status returns a snapshot of tradeID's current lifecycle state.
func (e *Executor) Status(tradeID string) (State, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.records[tradeID]
	if !ok {
		return "", false
	}
	return r.state, true
}

func (e *Executor) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	wlog := e.log.With().Int("worker", id).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-e.queue:
			if !ok {
				return
			}
			e.process(ctx, job, wlog)
		}
	}
}

// process drives one job through the state machine: VALIDATING → RISK_CHECK
// → GAS → SIGN → SUBMIT → terminal, bounded overall by executionTimeout.
func (e *Executor) process(ctx context.Context, job Job, wlog zerolog.Logger) {
	tradeID := job.CorrelationID
	cctx, cancel := context.WithTimeout(ctx, e.executionTimeout)
	defer cancel()

	start := time.Now()
	exec := domain.TradeExecution{TradeID: tradeID, Decision: job.Decision, CorrelationID: job.CorrelationID}

	finish := func(status domain.ExecutionStatus, state State, note string) {
		exec.Status = status
		exec.SimulationNotes = note
		exec.ExecutionTimeMs = time.Since(start).Milliseconds()
		e.transition(tradeID, state)
		e.setExecution(tradeID, exec)
		if _, err := eventbus.PublishCorrelated(ctx, e.bus, eventbus.TopicExecutionResult, tradeID, exec); err != nil {
			wlog.Error().Err(err).Str("trade_id", tradeID).Msg("publish execution result failed")
		}
	}

	e.transition(tradeID, StateValidating)
	if job.Decision.Action == domain.ActionSkip {
		finish(domain.ExecRejected, StateRejected, "decision action is SKIP")
		return
	}

	e.transition(tradeID, StateRiskCheck)
	if e.risk != nil {
		tradeable, reason, err := e.risk.QuickCheck(cctx, job.Decision.PairID)
		if err != nil {
			finish(domain.ExecFailed, StateFailed, fmt.Sprintf("risk check error: %v", err))
			return
		}
		if !tradeable {
			finish(domain.ExecRejected, StateRejected, fmt.Sprintf("risk check vetoed: %s", reason))
			return
		}
	}

	conn, err := e.mgr.GetConnection(cctx)
	if err != nil {
		finish(domain.ExecFailed, StateFailed, fmt.Sprintf("no provider connection: %v", err))
		return
	}

	// One retry for a transient nonce-gap or underpriced-fee rejection: both
	// resolve by re-proposing gas and re-reserving a fresh nonce, not by
	// resubmitting the same signed transaction.
	const maxSubmitAttempts = 2
	var txHash string
	for attempt := 1; attempt <= maxSubmitAttempts; attempt++ {
		e.transition(tradeID, StateGas)
		fee, err := e.gas.Propose(cctx, job.Decision.Priority)
		if err != nil {
			finish(domain.ExecFailed, StateFailed, fmt.Sprintf("gas proposal failed: %v", err))
			return
		}

		nonce, err := e.nonces.Reserve(cctx, job.Wallet, fee.MaxFeePerGas)
		if err != nil {
			finish(domain.ExecFailed, StateFailed, fmt.Sprintf("nonce reservation failed: %v", err))
			return
		}

		e.transition(tradeID, StateSign)
		signedTx, err := e.signer.Sign(cctx, conn, job.Decision, nonce, fee)
		if err != nil {
			finish(domain.ExecFailed, StateFailed, fmt.Sprintf("signing failed: %v", err))
			return
		}

		e.transition(tradeID, StateSubmit)
		txHash, err = e.submit(cctx, conn, job, signedTx)
		if err == nil {
			break
		}
		if cctx.Err() != nil {
			finish(domain.ExecTimeout, StateTimeout, "execution_timeout_ms exceeded before submission completed")
			return
		}
		if attempt < maxSubmitAttempts && isTransientSubmitError(err) {
			wlog.Warn().Err(err).Str("trade_id", tradeID).Msg("transient submission error, retrying with fresh nonce/gas")
			continue
		}
		finish(domain.ExecFailed, StateFailed, fmt.Sprintf("submission failed: %v", err))
		return
	}

	exec.TxHash = txHash
	finish(domain.ExecCompleted, StateSuccess, "submitted")
	wlog.Info().Str("trade_id", tradeID).Str("tx_hash", txHash).Int64("elapsed_ms", exec.ExecutionTimeMs).Msg("fast-lane trade submitted")
}

// submit routes a signed transaction through the private relay when the job
// asks for it, falling back to a direct broadcast if the relay submission
// fails or the chain has none configured.
func (e *Executor) submit(ctx context.Context, conn *provider.Connection, job Job, signedTx *types.Transaction) (string, error) {
	if job.UseRelay && e.relay != nil {
		target, err := conn.Eth.BlockNumber(ctx)
		if err != nil {
			return "", fmt.Errorf("fetch block number for relay target: %w", err)
		}
		receipt, err := e.relay.SubmitBundle(ctx, []*types.Transaction{signedTx}, target+1)
		if err == nil {
			return receipt.BundleHash, nil
		}
		e.log.Warn().Err(err).Msg("relay bundle submission failed, falling back to public mempool")
	}
	if err := conn.Eth.SendTransaction(ctx, signedTx); err != nil {
		return "", err
	}
	return signedTx.Hash().Hex(), nil
}

// isTransientSubmitError reports whether err is a class the fast-lane
// retries once: another transaction already claimed the reserved nonce, or
// the proposed fee undercut the mempool's current floor.
func isTransientSubmitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "nonce too high") ||
		strings.Contains(msg, "underpriced")
}

func (e *Executor) transition(tradeID string, state State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.records[tradeID]; ok {
		r.state = state
		r.enteredAt = time.Now()
	}
}

func (e *Executor) setExecution(tradeID string, exec domain.TradeExecution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.records[tradeID]; ok {
		r.execution = exec
	}
}

// sweepLoop evicts terminal records older than resultRetention so long-lived
// processes don't accumulate an unbounded result history.
func (e *Executor) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(resultRetention / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

func (e *Executor) sweep() {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := time.Now().Add(-resultRetention)
	for id, r := range e.records {
		if isTerminal(r.state) && r.enteredAt.Before(cutoff) {
			delete(e.records, id)
		}
	}
}

func isTerminal(s State) bool {
	switch s {
	case StateSuccess, StateFailed, StateTimeout, StateRejected, StateSlippageExceeded, StateInsufficientFunds:
		return true
	default:
		return false
	}
}

// slippageWithinBound reports whether actual slippage stayed within the
// decision's configured max, used by signers to classify a fill as
// SLIPPAGE_EXCEEDED rather than COMPLETED.
func slippageWithinBound(actual, max decimal.Decimal) bool {
	return actual.Abs().LessThanOrEqual(max)
}
