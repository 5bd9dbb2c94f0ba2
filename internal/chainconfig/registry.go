// Package chainconfig holds the immutable per-chain static data described in
// the ChainConfig entity (C2 Chain Config Registry).
package chainconfig

import (
	"fmt"

	"github.com/dexsentinel/engine/internal/config"
)

// Registry is the read-only, loaded-once set of supported chains.
type Registry struct {
	chains map[int64]config.ChainConfig
	order []int64
}

// NewRegistry builds a Registry from the chains resolved by config.Load.
// It is immutable after construction — there is no mutator method.
func NewRegistry(chains []config.ChainConfig) (*Registry, error) {
	if len(chains) == 0 {
		return nil, fmt.Errorf("chainconfig: at least one chain required")
	}
	r := &Registry{chains: make(map[int64]config.ChainConfig, len(chains))}
	for _, c := range chains {
		if len(c.Providers) == 0 {
			return nil, fmt.Errorf("chainconfig: chain %d (%s) has no providers configured", c.ChainID, c.Name)
		}
		r.chains[c.ChainID] = c
		r.order = append(r.order, c.ChainID)
	}
	return r, nil
}

// Get returns the static config for a chain id, or false if unsupported.
func (r *Registry) Get(chainID int64) (config.ChainConfig, bool) {
	c, ok := r.chains[chainID]
	return c, ok
}

// MustGet panics if the chain is not registered; only safe to use where the
// caller already validated the chain id (e.g. against ChainIDs()).
func (r *Registry) MustGet(chainID int64) config.ChainConfig {
	c, ok := r.chains[chainID]
	if !ok {
		panic(fmt.Sprintf("chainconfig: chain %d not registered", chainID))
	}
	return c
}

// ChainIDs returns the supported chain ids in configuration order.
func (r *Registry) ChainIDs() []int64 {
	out := make([]int64, len(r.order))
	copy(out, r.order)
	return out
}

// IsWETH reports whether the given address is the wrapped-native token for
// the chain (case-insensitive).
func IsWETH(c config.ChainConfig, address string) bool {
	return equalFoldAddr(c.WETH, address)
}

// IsStablecoin reports whether the address matches the chain's configured
// USDC address. Real deployments may track more stablecoins; the registry
// intentionally only carries the one address the ChainConfig names.
func IsStablecoin(c config.ChainConfig, address string) bool {
	return equalFoldAddr(c.USDC, address)
}

func equalFoldAddr(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
