package discovery

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// callerBackend is the subset of bind.ContractCaller we need, satisfied by
// *ethclient.Client.
type callerBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// enrichToken fetches symbol and decimals for one ERC-20, defaulting to
// UNKNOWN/18 on any per-call failure ("each wrapped in
// per-call fallbacks"). The token name is not fetched.
func enrichToken(ctx context.Context, backend callerBackend, address common.Address) domain.TokenInfo {
	caller := bind.NewBoundContract(address, erc20ABI, backend, nil, nil)

	info := domain.TokenInfo{Address: address.Hex(), Symbol: "UNKNOWN", Decimals: 18}

	if sym, err := callString(ctx, caller, "symbol"); err == nil && sym != "" {
		info.Symbol = sym
	}
	if dec, err := callUint8(ctx, caller, "decimals"); err == nil {
		info.Decimals = dec
	}
	return info
}

func callString(ctx context.Context, caller *bind.BoundContract, method string) (string, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	err := caller.Call(opts, &out, method)
	if err != nil || len(out) == 0 {
		return "", err
	}
	s, _ := out[0].(string)
	return s, nil
}

func callUint8(ctx context.Context, caller *bind.BoundContract, method string) (uint8, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	err := caller.Call(opts, &out, method)
	if err != nil || len(out) == 0 {
		return 0, err
	}
	d, _ := out[0].(uint8)
	return d, nil
}

// DecodePoolCreated unpacks a PoolCreated log into its typed fields. Indexed
// topics (token0, token1, fee) come from Topics[1:]; the rest is ABI-decoded
// from Data.
func DecodePoolCreated(l types.Log) (DecodedPoolCreated, error) {
	var out DecodedPoolCreated
	if len(l.Topics) < 4 {
		return out, errInvalidLog
	}
	out.Token0 = common.HexToAddress(l.Topics[1].Hex())
	out.Token1 = common.HexToAddress(l.Topics[2].Hex())
	out.Fee = uint32(new(big.Int).SetBytes(l.Topics[3].Bytes()).Uint64())

	unpacked, err := factoryABI.Unpack("PoolCreated", l.Data)
	if err != nil {
		return out, err
	}
	if len(unpacked) < 2 {
		return out, errInvalidLog
	}
	if ts, ok := unpacked[0].(*big.Int); ok {
		out.TickSpacing = int32(ts.Int64())
	}
	out.Pool, _ = unpacked[1].(common.Address)
	return out, nil
}

var errInvalidLog = decodeErr("discovery: malformed PoolCreated log")

type decodeErr string

func (e decodeErr) Error() string { return string(e) }

// fetchLatestBlock is the cheap health-probe call reused by the polling
// fallback to bound its scan window.
func fetchLatestBlock(ctx context.Context, m *provider.Manager) (uint64, error) {
	return provider.ExecuteWithFailover(ctx, m, func(ctx context.Context, conn *provider.Connection) (uint64, error) {
			return conn.Eth.BlockNumber(ctx)
		})
}

// withTimeout is a small helper so enrichment calls never hang the batch
// processor beyond a bounded window.
func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

func bigFromUint64(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}
