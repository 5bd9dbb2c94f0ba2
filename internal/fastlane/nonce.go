package fastlane

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dexsentinel/engine/internal/provider"
)

// SlotState is a nonce slot's lifecycle state.
type SlotState string

const (
	SlotPending SlotState = "PENDING"
	SlotConfirmed SlotState = "CONFIRMED"
	SlotStuck SlotState = "STUCK"
)

// maxBumps and bumpMultiplier implement the concretized
// replacement-by-fee schedule: on a stuck_timeout miss, resubmit at
// max(gas*1.15, gas+priorityBump), up to 3 times, then mark the slot STUCK.
const (
	maxBumps = 3
	bumpMultiplier = 1.15
)

var priorityBumpWei = big.NewInt(1_500_000_000) // 1.5 gwei flat floor on top of the multiplicative bump

// slot tracks one in-flight nonce for one wallet.
type slot struct {
	nonce uint64
	state SlotState
	submittedAt time.Time
	gasPrice *big.Int
	bumps int
}

// NonceManager issues strictly monotonic nonces per wallet and
// detects/resolves stuck transactions per the bump schedule above. The next
// nonce for a wallet is never issued while that wallet has an unresolved
// stuck slot, preserving monotonicity.
type NonceManager struct {
	mgr *provider.Manager
	log zerolog.Logger

	mu sync.Mutex
	next map[common.Address]uint64
	pending map[common.Address]map[uint64]*slot
	stuckTimeout time.Duration
}

// NewNonceManager builds a manager bound to a chain's provider pool.
func NewNonceManager(mgr *provider.Manager, stuckTimeout time.Duration) *NonceManager {
	if stuckTimeout <= 0 {
		stuckTimeout = 45 * time.Second
	}
	return &NonceManager{
		mgr: mgr,
		log: log.With().Str("component", "nonce_manager").Logger(),
		next: make(map[common.Address]uint64),
		pending: make(map[common.Address]map[uint64]*slot),
		stuckTimeout: stuckTimeout,
	}
}

// Reserve returns the next nonce for wallet, refusing to issue a new one
// while any prior slot for that wallet is STUCK.
func (nm *NonceManager) Reserve(ctx context.Context, wallet common.Address, gasPrice *big.Int) (uint64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	for n, s := range nm.pending[wallet] {
		if s.state == SlotStuck {
			return 0, fmt.Errorf("nonce_manager: wallet %s has a stuck slot at nonce %d, refusing to issue a new one", wallet.Hex(), n)
		}
	}

	n, ok := nm.next[wallet]
	if !ok {
		onchain, err := fetchTransactionCount(ctx, nm.mgr, wallet)
		if err != nil {
			return 0, fmt.Errorf("nonce_manager: fetch on-chain nonce: %w", err)
		}
		n = onchain
	}
	nm.next[wallet] = n + 1

	if nm.pending[wallet] == nil {
		nm.pending[wallet] = make(map[uint64]*slot)
	}
	nm.pending[wallet][n] = &slot{nonce: n, state: SlotPending, submittedAt: time.Now(), gasPrice: new(big.Int).Set(gasPrice)}
	return n, nil
}

// Confirm marks a nonce slot resolved, freeing the wallet to take on new
// stuck slots in the future (it does not affect Reserve's monotonic counter).
func (nm *NonceManager) Confirm(wallet common.Address, nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	if slots, ok := nm.pending[wallet]; ok {
		delete(slots, nonce)
	}
}

// BumpStuck scans wallet's pending slots for ones older than stuckTimeout
// and returns the ones that need a replacement-by-fee resubmission at the
// bumped gas price. Callers resubmit with the returned gas price and call
// either Confirm (on success) or this method again on the next tick.
func (nm *NonceManager) BumpStuck(wallet common.Address) []ReplacementOrder {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	var out []ReplacementOrder
	now := time.Now()
	for _, s := range nm.pending[wallet] {
		if s.state == SlotStuck {
			continue
		}
		if now.Sub(s.submittedAt) < nm.stuckTimeout {
			continue
		}
		if s.bumps >= maxBumps {
			s.state = SlotStuck
			nm.log.Warn().Str("wallet", wallet.Hex()).Uint64("nonce", s.nonce).Msg("nonce slot exhausted bump schedule, marking stuck")
			continue
		}
		s.gasPrice = bumpedGasPrice(s.gasPrice)
		s.bumps++
		s.submittedAt = now
		out = append(out, ReplacementOrder{Nonce: s.nonce, GasPrice: new(big.Int).Set(s.gasPrice), Attempt: s.bumps})
	}
	return out
}

// ReplacementOrder is one stuck slot's next bumped resubmission.
type ReplacementOrder struct {
	Nonce uint64
	GasPrice *big.Int
	Attempt int
}

func bumpedGasPrice(current *big.Int) *big.Int {
	m := new(big.Int).Mul(current, big.NewInt(int64(bumpMultiplier*100)))
	m.Div(m, big.NewInt(100))
	additive := new(big.Int).Add(current, priorityBumpWei)
	if m.Cmp(additive) > 0 {
		return m
	}
	return additive
}

func fetchTransactionCount(ctx context.Context, mgr *provider.Manager, wallet common.Address) (uint64, error) {
	return provider.ExecuteWithFailover(ctx, mgr, func(ctx context.Context, conn *provider.Connection) (uint64, error) {
			return conn.Eth.PendingNonceAt(ctx, wallet)
		})
}
