package discovery

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dexsentinel/engine/internal/chainconfig"
	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/eventbus"
	"github.com/dexsentinel/engine/internal/provider"
)

// ProviderManagerFor resolves (or lazily builds) the provider.Manager for a
// chain id. The engine wires this to its single shared per-chain manager
// pool so discovery and trading share the same health/circuit state.
type ProviderManagerFor func(chainID int64) *provider.Manager

// Coordinator runs one discovery Service per configured chain.
type Coordinator struct {
	registry *chainconfig.Registry
	cfg config.Config
	providers ProviderManagerFor
	bus *eventbus.Bus
}

// NewCoordinator builds the multi-chain discovery layer: one Service
// instance runs independently per configured chain.
func NewCoordinator(registry *chainconfig.Registry, cfg config.Config, providers ProviderManagerFor, bus *eventbus.Bus) *Coordinator {
	return &Coordinator{registry: registry, cfg: cfg, providers: providers, bus: bus}
}

// Run starts a Service per chain and blocks until ctx is cancelled or any
// chain's discovery loop fails.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.cfg.DiscoveryEnabled {
		<-ctx.Done()
		return ctx.Err()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, chainID := range c.registry.ChainIDs() {
		chain := c.registry.MustGet(chainID)
		mgr := c.providers(chainID)
		svc := NewService(chain, c.cfg, mgr, c.bus)
		g.Go(func() error { return svc.Run(ctx) })
	}
	return g.Wait()
}
