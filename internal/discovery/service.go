// Package discovery implements the Discovery Service:
// per-chain detection of newly created pools, deduplication, token
// enrichment and WETH/stablecoin classification, publishing surviving pairs
// to the Event Bus.
package discovery

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dexsentinel/engine/internal/chainconfig"
	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/eventbus"
	"github.com/dexsentinel/engine/internal/provider"
)

// pollBacklogBlocks is how far behind the chain head the HTTP polling
// fallback rescans, catching anything a dropped websocket subscription
// missed.
const pollBacklogBlocks = 10

// rawLog carries a freshly observed PoolCreated log plus the time it was
// first seen, used to compute discovery_latency_ms downstream.
type rawLog struct {
	log types.Log
	observed time.Time
}

// Service runs the three cooperating detection tasks for one chain
// (header subscription, factory log subscription, HTTP polling fallback)
// feeding a single bounded channel that a batch processor drains.
type Service struct {
	chain config.ChainConfig
	cfg config.Config
	mgr *provider.Manager
	bus *eventbus.Bus
	dedup *dedupLRU
	limiter *rate.Limiter
	log zerolog.Logger

	lastProcessedBlock atomic.Uint64
	rawCh chan rawLog
}

// NewService builds the per-chain Discovery Service. mgr must already be
// wired to chain.Providers.
func NewService(chain config.ChainConfig, cfg config.Config, mgr *provider.Manager, bus *eventbus.Bus) *Service {
	bufferSize := cfg.EventBatchSize * 2
	if bufferSize <= 0 {
		bufferSize = 50
	}
	return &Service{
		chain: chain,
		cfg: cfg,
		mgr: mgr,
		bus: bus,
		dedup: newDedupLRU(5000),
		// max_pairs_per_hour spread evenly as a token bucket; burst of 1
		// hour's worth of pairs is excessive, so burst is capped low.
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.MaxPairsPerHour)/3600.0), maxInt(1, cfg.MaxPairsPerHour/60)),
		log: log.With().Int64("chain_id", chain.ChainID).Str("component", "discovery").Logger(),
		rawCh: make(chan rawLog, bufferSize),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run blocks running all discovery tasks for this chain until ctx is
// cancelled or a task returns a non-cancellation error.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.subscribeHeaders(ctx) })
	g.Go(func() error { return s.subscribeFactoryLogs(ctx) })
	g.Go(func() error { return s.pollFallback(ctx) })
	g.Go(func() error { return s.processBatches(ctx) })

	return g.Wait()
}

// setLastBlock records the highest block seen by either the header or the
// log subscription, giving the polling fallback a floor for its scan window.
func (s *Service) setLastBlock(n uint64) {
	for {
		cur := s.lastProcessedBlock.Load()
		if n <= cur {
			return
		}
		if s.lastProcessedBlock.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (s *Service) getLastBlock() (uint64, bool) {
	n := s.lastProcessedBlock.Load()
	return n, n > 0
}

// subscribeHeaders keeps last_processed_block current via eth_subscribe
// newHeads, so the polling fallback has a recent floor for its scan window.
func (s *Service) subscribeHeaders(ctx context.Context) error {
	return s.mgr.WebSocketConnect(ctx, s.cfg.WebsocketReconnectDelay, func(ctx context.Context, client *ethclient.Client) (provider.Subscription, error) {
			heads := make(chan *types.Header, 16)
			sub, err := client.SubscribeNewHead(ctx, heads)
			if err != nil {
				return nil, fmt.Errorf("discovery: subscribe new heads: %w", err)
			}
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case h, ok := <-heads:
						if !ok {
							return
						}
						s.setLastBlock(h.Number.Uint64())
					}
				}
			}()
			return sub, nil
		})
}

// subscribeFactoryLogs listens for PoolCreated events on the chain's V3
// factory and feeds them to the batch processor as soon as they arrive.
func (s *Service) subscribeFactoryLogs(ctx context.Context) error {
	if s.chain.FactoryV3 == "" {
		s.log.Warn().Msg("no V3 factory configured, log subscription disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(s.chain.FactoryV3)},
		Topics: [][]common.Hash{{PoolCreatedTopic}},
	}
	return s.mgr.WebSocketConnect(ctx, s.cfg.WebsocketReconnectDelay, func(ctx context.Context, client *ethclient.Client) (provider.Subscription, error) {
			logs := make(chan types.Log, 16)
			sub, err := client.SubscribeFilterLogs(ctx, query, logs)
			if err != nil {
				return nil, fmt.Errorf("discovery: subscribe factory logs: %w", err)
			}
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case l, ok := <-logs:
						if !ok {
							return
						}
						s.setLastBlock(l.BlockNumber)
						s.enqueue(ctx, rawLog{log: l, observed: time.Now()})
					}
				}
			}()
			return sub, nil
		})
}

// pollFallback rescans the trailing window every HTTPPollInterval, catching
// PoolCreated events the websocket leg missed during a disconnect.
func (s *Service) pollFallback(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HTTPPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil {
				s.log.Warn().Err(err).Msg("poll fallback iteration failed")
			}
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) error {
	if s.chain.FactoryV3 == "" {
		return nil
	}
	head, err := fetchLatestBlock(ctx, s.mgr)
	if err != nil {
		return fmt.Errorf("fetch latest block: %w", err)
	}

	from := head
	if from > pollBacklogBlocks {
		from -= pollBacklogBlocks
	} else {
		from = 0
	}
	if last, ok := s.getLastBlock(); ok && last < from {
		from = last
	}

	query := ethereum.FilterQuery{
		FromBlock: bigFromUint64(from),
		ToBlock: bigFromUint64(head),
		Addresses: []common.Address{common.HexToAddress(s.chain.FactoryV3)},
		Topics: [][]common.Hash{{PoolCreatedTopic}},
	}
	logs, err := provider.ExecuteWithFailover(ctx, s.mgr, func(ctx context.Context, conn *provider.Connection) ([]types.Log, error) {
			return conn.Eth.FilterLogs(ctx, query)
		})
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}
	now := time.Now()
	for _, l := range logs {
		s.enqueue(ctx, rawLog{log: l, observed: now})
	}
	s.setLastBlock(head)
	return nil
}

func (s *Service) enqueue(ctx context.Context, rl rawLog) {
	select {
	case s.rawCh <- rl:
	case <-ctx.Done():
	default:
		s.log.Warn().Msg("discovery raw log buffer full, dropping event")
	}
}

// processBatches drains rawCh in batches of up to EventBatchSize, decoding,
// deduplicating, enriching and classifying each log before publishing it.
func (s *Service) processBatches(ctx context.Context) error {
	batchSize := s.cfg.EventBatchSize
	if batchSize <= 0 {
		batchSize = 25
	}
	batch := make([]rawLog, 0, batchSize)
	flush := time.NewTicker(500 * time.Millisecond)
	defer flush.Stop()

	process := func() {
		if len(batch) == 0 {
			return
		}
		for _, rl := range batch {
			s.processOne(ctx, rl)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rl := <-s.rawCh:
			batch = append(batch, rl)
			if len(batch) >= batchSize {
				process()
			}
		case <-flush.C:
			process()
		}
	}
}

func (s *Service) processOne(ctx context.Context, rl rawLog) {
	decoded, err := DecodePoolCreated(rl.log)
	if err != nil {
		s.log.Debug().Err(err).Msg("skipping undecodable PoolCreated log")
		return
	}

	pairID := domain.PairID{
		ChainID: s.chain.ChainID,
		Token0: decoded.Token0.Hex(),
		Token1: decoded.Token1.Hex(),
		FeeTier: decoded.Fee,
	}
	if s.dedup.SeenOrAdd(pairID.String()) {
		return
	}
	if !s.limiter.Allow() {
		s.log.Warn().Str("pair_id", pairID.String()).Msg("max_pairs_per_hour exceeded, dropping new pair")
		return
	}

	conn, err := s.mgr.GetConnection(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("no connection available for token enrichment")
		return
	}

	cctx, cancel := withTimeout(ctx, 10*time.Second)
	token0 := enrichToken(cctx, conn.Eth, decoded.Token0)
	token1 := enrichToken(cctx, conn.Eth, decoded.Token1)
	cancel()

	event := domain.NewPairEvent{
		ChainID: s.chain.ChainID,
		PairID: pairID,
		PoolAddress: decoded.Pool.Hex(),
		Token0: token0,
		Token1: token1,
		BlockNumber: rl.log.BlockNumber,
		TxHash: rl.log.TxHash.Hex(),
		IsWETHPair: chainconfig.IsWETH(s.chain, token0.Address) || chainconfig.IsWETH(s.chain, token1.Address),
		IsStablecoinPair: chainconfig.IsStablecoin(s.chain, token0.Address) || chainconfig.IsStablecoin(s.chain, token1.Address),
		DiscoveryLatencyMs: time.Since(rl.observed).Milliseconds(),
		DiscoveredAt: time.Now().UTC(),
	}

	if _, err := eventbus.Publish(ctx, s.bus, eventbus.TopicNewPair, event); err != nil {
		s.log.Error().Err(err).Str("pair_id", pairID.String()).Msg("failed to publish new pair event")
	}
}
