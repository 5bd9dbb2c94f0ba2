package fastlane

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dexsentinel/engine/internal/chainconfig"
	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// uniswapV2RouterABI is the minimal UniswapV2Router02 surface the fast-lane
// needs: native-asset swaps in both directions. Every chain this engine
// targets ships a V2-compatible router fork.
const uniswapV2RouterABI = `[
  {"name":"swapExactETHForTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"name":"swapExactTokensForETH","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const swapDeadlineWindow = 2 * time.Minute

// EVMSigner builds and signs router swap transactions with a single
// configured wallet.
type EVMSigner struct {
	privateKey *ecdsa.PrivateKey
	wallet     common.Address
	registry   *chainconfig.Registry
	routerABI  abi.ABI
}

// NewEVMSigner parses privateKeyHex (with or without a 0x prefix) and binds
// the signer to registry for per-chain router/WETH addresses.
func NewEVMSigner(privateKeyHex string, registry *chainconfig.Registry) (*EVMSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("fastlane: invalid wallet private key: %w", err)
	}
	parsedABI, err := abi.JSON(strings.NewReader(uniswapV2RouterABI))
	if err != nil {
		return nil, fmt.Errorf("fastlane: parse router abi: %w", err)
	}
	return &EVMSigner{
		privateKey: pk,
		wallet:     crypto.PubkeyToAddress(pk.PublicKey),
		registry:   registry,
		routerABI:  parsedABI,
	}, nil
}

// Wallet returns the signer's address, used to reserve nonces.
func (s *EVMSigner) Wallet() common.Address { return s.wallet }

// Sign implements Signer: builds the router calldata for decision.Action
// and returns a signed London (EIP-1559) transaction. It does not submit
// the transaction — the executor decides whether to route it through the
// private relay or broadcast it to the public mempool.
func (s *EVMSigner) Sign(ctx context.Context, conn *provider.Connection, decision domain.TradeDecision, nonce uint64, fee FeeProposal) (*types.Transaction, error) {
	chain, ok := s.registry.Get(decision.PairID.ChainID)
	if !ok {
		return nil, fmt.Errorf("fastlane: no chain config for chain %d", decision.PairID.ChainID)
	}

	data, value, err := s.buildCalldata(decision, chain)
	if err != nil {
		return nil, err
	}

	chainID, err := conn.Eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fastlane: fetch chain id: %w", err)
	}

	to := common.HexToAddress(chain.RouterV2)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: fee.MaxPriorityFeePerGas,
		GasFeeCap: fee.MaxFeePerGas,
		Gas:       300_000,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signedTx, err := types.SignTx(tx, types.NewLondonSigner(chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("fastlane: sign transaction: %w", err)
	}
	return signedTx, nil
}

// buildCalldata ABI-encodes the router call for decision.Action.
// PositionSizeUSD is treated as already expressed in the chain's
// native-asset wei units by the upstream sizing phase; this package does not
// itself maintain a USD/native-asset price feed. amountOutMin is left at
// zero — slippage is enforced after the fact by comparing the fill against
// MaxSlippagePercent, not by reverting the swap on-chain.
func (s *EVMSigner) buildCalldata(decision domain.TradeDecision, chain config.ChainConfig) ([]byte, *big.Int, error) {
	weth := common.HexToAddress(chain.WETH)
	token := common.HexToAddress(decision.TokenAddress)
	deadline := big.NewInt(time.Now().Add(swapDeadlineWindow).Unix())
	amount := decision.PositionSizeUSD.BigInt()
	amountOutMin := big.NewInt(0)

	switch decision.Action {
	case domain.ActionBuy:
		data, err := s.routerABI.Pack("swapExactETHForTokens", amountOutMin, []common.Address{weth, token}, s.wallet, deadline)
		if err != nil {
			return nil, nil, fmt.Errorf("fastlane: pack swapExactETHForTokens: %w", err)
		}
		return data, amount, nil
	case domain.ActionSell:
		data, err := s.routerABI.Pack("swapExactTokensForETH", amount, amountOutMin, []common.Address{token, weth}, s.wallet, deadline)
		if err != nil {
			return nil, nil, fmt.Errorf("fastlane: pack swapExactTokensForETH: %w", err)
		}
		return data, big.NewInt(0), nil
	default:
		return nil, nil, fmt.Errorf("fastlane: signer cannot build calldata for action %q", decision.Action)
	}
}
