package fastlane

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func newTestNonceManager() *NonceManager {
	return NewNonceManager(nil, 45*time.Second)
}

func TestNonceManager_BumpStuck_NoOpBeforeTimeout(t *testing.T) {
	nm := newTestNonceManager()
	wallet := common.HexToAddress("0x1")
	nm.pending[wallet] = map[uint64]*slot{
		0: {nonce: 0, state: SlotPending, submittedAt: time.Now(), gasPrice: big.NewInt(1)},
	}
	orders := nm.BumpStuck(wallet)
	require.Empty(t, orders)
}

func TestNonceManager_BumpStuck_BumpsPastTimeout(t *testing.T) {
	nm := newTestNonceManager()
	wallet := common.HexToAddress("0x1")
	nm.pending[wallet] = map[uint64]*slot{
		0: {nonce: 0, state: SlotPending, submittedAt: time.Now().Add(-time.Minute), gasPrice: big.NewInt(1_000_000_000)},
	}
	orders := nm.BumpStuck(wallet)
	require.Len(t, orders, 1)
	require.Equal(t, 1, orders[0].Attempt)
	require.Equal(t, uint64(0), orders[0].Nonce)
}

func TestNonceManager_BumpStuck_MarksStuckAfterMaxBumps(t *testing.T) {
	nm := newTestNonceManager()
	wallet := common.HexToAddress("0x1")
	nm.pending[wallet] = map[uint64]*slot{
		0: {nonce: 0, state: SlotPending, submittedAt: time.Now().Add(-time.Minute), gasPrice: big.NewInt(1_000_000_000), bumps: maxBumps},
	}
	orders := nm.BumpStuck(wallet)
	require.Empty(t, orders)
	require.Equal(t, SlotStuck, nm.pending[wallet][0].state)
}

func TestNonceManager_Confirm_RemovesSlot(t *testing.T) {
	nm := newTestNonceManager()
	wallet := common.HexToAddress("0x1")
	nm.pending[wallet] = map[uint64]*slot{0: {nonce: 0, state: SlotPending}}
	nm.Confirm(wallet, 0)
	require.Empty(t, nm.pending[wallet])
}
