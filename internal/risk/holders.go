package risk

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dexsentinel/engine/internal/provider"
)

// transferLogScanBlocks bounds how far back holder/market analyzers scan
// Transfer events, keeping the eth_getLogs call cheap for a freshly
// deployed token whose whole history fits comfortably inside this window.
const transferLogScanBlocks = 5000

// maxTransferLogsExamined caps memory and degrades data quality rather than
// scanning an unbounded event history for an unusually active token.
const maxTransferLogsExamined = 5000

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// holderBalances is the reconstructed (address -> balance) map plus whether
// the scan was truncated.
type holderBalances struct {
	balances  map[common.Address]*big.Int
	truncated bool
}

// scanHolderBalances replays Transfer events from shortly before the pair's
// discovery block to the current head, reconstructing each address's
// balance. This has no access to pre-pair-creation supply allocations made
// in the constructor (those don't emit Transfer from address(0) reliably
// across token implementations), so results are an approximation flagged
// via DataQuality, a "best effort" holder analysis posture.
func scanHolderBalances(ctx context.Context, mgr *provider.Manager, token string, fromBlock uint64) (holderBalances, error) {
	head, err := fetchLatestBlock(ctx, mgr)
	if err != nil {
		return holderBalances{}, err
	}

	query := ethereum.FilterQuery{
		FromBlock: bigFromUint64(fromBlock),
		ToBlock:   bigFromUint64(head),
		Addresses: []common.Address{common.HexToAddress(token)},
		Topics:    [][]common.Hash{{transferTopic}},
	}
	logs, err := provider.ExecuteWithFailover(ctx, mgr, func(ctx context.Context, conn *provider.Connection) ([]types.Log, error) {
		return conn.Eth.FilterLogs(ctx, query)
	})
	if err != nil {
		return holderBalances{}, err
	}

	out := holderBalances{balances: make(map[common.Address]*big.Int)}
	examined := logs
	if len(examined) > maxTransferLogsExamined {
		examined = examined[len(examined)-maxTransferLogsExamined:]
		out.truncated = true
	}

	for _, l := range examined {
		if len(l.Topics) < 3 || len(l.Data) < 32 {
			continue
		}
		from := common.BytesToAddress(l.Topics[1].Bytes())
		to := common.BytesToAddress(l.Topics[2].Bytes())
		amount := new(big.Int).SetBytes(l.Data)

		if from != (common.Address{}) {
			bal := out.balances[from]
			if bal == nil {
				bal = big.NewInt(0)
			}
			out.balances[from] = new(big.Int).Sub(bal, amount)
		}
		bal := out.balances[to]
		if bal == nil {
			bal = big.NewInt(0)
		}
		out.balances[to] = new(big.Int).Add(bal, amount)
	}
	return out, nil
}

// sortedPositiveBalances returns holder balances as float64 ascending,
// dropping zero/negative residuals left by the approximation above —
// required input shape for gonum's Gini coefficient.
func sortedPositiveBalances(hb holderBalances) []float64 {
	out := make([]float64, 0, len(hb.balances))
	for _, bal := range hb.balances {
		if bal.Sign() > 0 {
			f, _ := new(big.Float).SetInt(bal).Float64()
			out = append(out, f)
		}
	}
	sort.Float64s(out)
	return out
}

// topNConcentration returns the fraction of total supply held by the N
// largest balances, read from the end of the ascending-sorted slice.
func topNConcentration(ascending []float64, n int) float64 {
	if len(ascending) == 0 {
		return 0
	}
	total := 0.0
	for _, b := range ascending {
		total += b
	}
	if total <= 0 {
		return 0
	}
	if n > len(ascending) {
		n = len(ascending)
	}
	top := 0.0
	for i := len(ascending) - 1; i >= len(ascending)-n; i-- {
		top += ascending[i]
	}
	return top / total
}
