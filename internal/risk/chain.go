package risk

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/provider"
)

// pairABIJSON covers the Uniswap V2-shaped view functions every V3 pool
// also exposes through its own getReserves-equivalent wrapper in practice;
// analyzers fall back to low-confidence results when a call reverts instead
// of assuming a specific AMM shape.
const pairABIJSON = `[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"type":"function"}
]`

const routerABIJSON = `[
	{"constant":true,"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"type":"function"}
]`

// erc20ABIJSON covers the minimal view functions needed to approximate an
// LP token's locked/burned fraction: a Uniswap V2 pair is itself an ERC-20.
const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var pairABI abi.ABI
var routerABI abi.ABI
var erc20ABI abi.ABI

// burnAddresses are destinations LP tokens are sent to when a deployer
// burns liquidity rather than routing it through a third-party locker
// contract (each locker has its own registry; burning is the one signal
// every chain's explorer agrees on).
var burnAddresses = []common.Address{
	common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
	common.HexToAddress("0x0000000000000000000000000000000000000000"),
}

func init() {
	var err error
	pairABI, err = abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		panic("risk: invalid embedded pair ABI: " + err.Error())
	}
	routerABI, err = abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		panic("risk: invalid embedded router ABI: " + err.Error())
	}
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("risk: invalid embedded erc20 ABI: " + err.Error())
	}
}

// QuoteAmountsOut calls a V2-compatible router's getAmountsOut, returning
// the quoted output amounts for a swap along path. A revert here (as
// opposed to a network error) means the path has no route at the current
// block — used by the honeypot and tax analyzers to probe sell-side
// routing without submitting a real transaction.
func QuoteAmountsOut(ctx context.Context, mgr *provider.Manager, router string, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	return provider.ExecuteWithFailover(ctx, mgr, func(ctx context.Context, conn *provider.Connection) ([]*big.Int, error) {
		caller := bind.NewBoundContract(common.HexToAddress(router), routerABI, conn.Eth, nil, nil)
		var out []interface{}
		if err := caller.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountsOut", amountIn, path); err != nil {
			return nil, err
		}
		amounts, _ := out[0].([]*big.Int)
		return amounts, nil
	})
}

// Reserves is the decoded result of a pair's getReserves() call.
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
	Token0   common.Address
}

// FetchReserves reads a pool's reserves and token0 ordering through the
// provider pool's failover machinery.
func FetchReserves(ctx context.Context, mgr *provider.Manager, pool string) (Reserves, error) {
	return provider.ExecuteWithFailover(ctx, mgr, func(ctx context.Context, conn *provider.Connection) (Reserves, error) {
		addr := common.HexToAddress(pool)
		caller := bind.NewBoundContract(addr, pairABI, conn.Eth, nil, nil)

		var reservesOut []interface{}
		if err := caller.Call(&bind.CallOpts{Context: ctx}, &reservesOut, "getReserves"); err != nil {
			return Reserves{}, err
		}
		var token0Out []interface{}
		if err := caller.Call(&bind.CallOpts{Context: ctx}, &token0Out, "token0"); err != nil {
			return Reserves{}, err
		}

		r0, _ := reservesOut[0].(*big.Int)
		r1, _ := reservesOut[1].(*big.Int)
		t0, _ := token0Out[0].(common.Address)
		return Reserves{Reserve0: r0, Reserve1: r1, Token0: t0}, nil
	})
}

// FetchBytecode reads a contract's deployed bytecode, used by the
// contract-security analyzer to scan for known-dangerous patterns.
func FetchBytecode(ctx context.Context, mgr *provider.Manager, address string) ([]byte, error) {
	return provider.ExecuteWithFailover(ctx, mgr, func(ctx context.Context, conn *provider.Connection) ([]byte, error) {
		return conn.Eth.CodeAt(ctx, common.HexToAddress(address), nil)
	})
}

// LPLockPercent returns the fraction of lpToken's total supply held at a
// known burn address, the liquidity analyzer's proxy for "LP tokens are
// locked" absent a registry of every third-party locker contract. A pair
// contract is itself the LP token under the V2 AMM shape this engine
// targets, so lpToken is typically the pool address.
func LPLockPercent(ctx context.Context, mgr *provider.Manager, lpToken string) (decimal.Decimal, error) {
	return provider.ExecuteWithFailover(ctx, mgr, func(ctx context.Context, conn *provider.Connection) (decimal.Decimal, error) {
		caller := bind.NewBoundContract(common.HexToAddress(lpToken), erc20ABI, conn.Eth, nil, nil)

		var supplyOut []interface{}
		if err := caller.Call(&bind.CallOpts{Context: ctx}, &supplyOut, "totalSupply"); err != nil {
			return decimal.Zero, err
		}
		supply, _ := supplyOut[0].(*big.Int)
		if supply == nil || supply.Sign() == 0 {
			return decimal.Zero, nil
		}

		burned := new(big.Int)
		for _, addr := range burnAddresses {
			var balOut []interface{}
			if err := caller.Call(&bind.CallOpts{Context: ctx}, &balOut, "balanceOf", addr); err != nil {
				continue
			}
			if bal, ok := balOut[0].(*big.Int); ok && bal != nil {
				burned.Add(burned, bal)
			}
		}
		return decimal.NewFromBigInt(burned, 0).Div(decimal.NewFromBigInt(supply, 0)), nil
	})
}

// amountToDecimal converts a raw token amount to a human decimal using its
// ERC-20 decimals.
func amountToDecimal(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, 0).Div(decimal.NewFromInt(10).Pow(decimal.NewFromInt(int64(decimals))))
}
