// Package config loads and validates the engine's runtime configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradingMode gates how far the engine is allowed to act on its own decisions.
type TradingMode string

const (
	ModePaper TradingMode = "PAPER"
	ModeShadow TradingMode = "SHADOW"
	ModeLive TradingMode = "LIVE"
)

// ProviderConfig describes one RPC endpoint in a chain's provider pool.
type ProviderConfig struct {
	Name string
	HTTPURL string
	WSURL string
	Priority int
	IsPaid bool
	MaxRPS int
}

// ChainConfig is the per-chain static data consumed by internal/chainconfig.
type ChainConfig struct {
	ChainID int64
	Name string
	Providers []ProviderConfig
	RouterV2 string
	RouterV3 string
	FactoryV3 string
	WETH string
	USDC string
	BlockTimeMS int
	ConfirmationsRequired int
}

// Config aggregates every recognized option from
type Config struct {
	TradingMode TradingMode
	TestnetMode bool

	TargetChains []int64
	Chains []ChainConfig

	MaxPortfolioSizeUSD decimal.Decimal
	MaxPositionSizeUSD decimal.Decimal
	DailyLossLimitPercent decimal.Decimal
	CircuitBreakerLossPct decimal.Decimal
	MaxAcceptableRiskScore decimal.Decimal
	MinConfidenceThreshold decimal.Decimal

	DefaultSlippagePercent decimal.Decimal
	MaxGasPriceGwei decimal.Decimal
	ExecutionTimeout time.Duration

	RiskTimeout time.Duration
	SmartLaneTimeout time.Duration
	RiskParallelChecks int
	MinLiquidityUSD decimal.Decimal
	MaxBuyTaxPercent decimal.Decimal
	MaxSellTaxPercent decimal.Decimal
	MinHolderCount int
	MinLockedPercent decimal.Decimal

	DiscoveryEnabled bool
	MaxPairsPerHour int
	EventBatchSize int
	HTTPPollInterval time.Duration
	WebsocketTimeout time.Duration
	WebsocketReconnectDelay time.Duration

	ProviderFailoverThreshold int
	ProviderHealthCheckInterval time.Duration
	ProviderRecoveryTime time.Duration

	MaxConcurrentAnalyses int
	MaxConcurrentTrades int
	FastLaneQueueCapacity int
	StuckNonceTimeout time.Duration

	MaxPositionsPerPortfolio int

	DatabaseURL string

	TelegramToken string
	TelegramChatID int64

	WalletPrivateKey string
	WalletAddress string

	RelayEndpoint string
	RelayEnabled bool
	MEVRiskThreshold decimal.Decimal
}

// Load builds Config from the process environment, optionally seeded by a
//.env file (see cmd/dexsentineld). Returns a ConfigError on any invalid or
// missing required value — configuration errors are fatal only at startup
//
// Apart from TELEGRAM_CHAT_ID, a numeric or duration variable that is set
// but cannot be parsed falls back to its default without an error; a boolean
// reads true only for "true", "1" or "yes", and unparseable entries of a
// list are skipped.
func Load() (*Config, error) {
	cfg := &Config{
		TradingMode: TradingMode(strings.ToUpper(getEnv("TRADING_MODE", string(ModePaper)))),
		TestnetMode: getEnvBool("TESTNET_MODE", false),

		TargetChains: getEnvInt64Slice("TARGET_CHAINS", []int64{1}),

		MaxPortfolioSizeUSD: getEnvDecimal("MAX_PORTFOLIO_SIZE_USD", decimal.NewFromInt(10000)),
		MaxPositionSizeUSD: getEnvDecimal("MAX_POSITION_SIZE_USD", decimal.NewFromInt(1000)),
		DailyLossLimitPercent: getEnvDecimal("DAILY_LOSS_LIMIT_PERCENT", decimal.NewFromFloat(0.05)),
		CircuitBreakerLossPct: getEnvDecimal("CIRCUIT_BREAKER_LOSS_PERCENT", decimal.NewFromFloat(0.20)),
		MaxAcceptableRiskScore: getEnvDecimal("MAX_ACCEPTABLE_RISK_SCORE", decimal.NewFromFloat(0.8)),
		MinConfidenceThreshold: getEnvDecimal("MIN_CONFIDENCE_THRESHOLD", decimal.NewFromFloat(0.6)),

		DefaultSlippagePercent: getEnvDecimal("DEFAULT_SLIPPAGE_PERCENT", decimal.NewFromFloat(0.01)),
		MaxGasPriceGwei: getEnvDecimal("MAX_GAS_PRICE_GWEI", decimal.NewFromInt(150)),
		ExecutionTimeout: getEnvDuration("EXECUTION_TIMEOUT", 500*time.Millisecond),

		RiskTimeout: getEnvDuration("RISK_TIMEOUT", 30*time.Second),
		SmartLaneTimeout: getEnvDuration("SMART_LANE_TIMEOUT", 5*time.Second),
		RiskParallelChecks: getEnvInt("RISK_PARALLEL_CHECKS", 8),
		MinLiquidityUSD: getEnvDecimal("MIN_LIQUIDITY_USD", decimal.NewFromInt(10000)),
		MaxBuyTaxPercent: getEnvDecimal("MAX_BUY_TAX_PERCENT", decimal.NewFromFloat(0.10)),
		MaxSellTaxPercent: getEnvDecimal("MAX_SELL_TAX_PERCENT", decimal.NewFromFloat(0.10)),
		MinHolderCount: getEnvInt("MIN_HOLDER_COUNT", 50),
		MinLockedPercent: getEnvDecimal("MIN_LOCKED_PERCENT", decimal.NewFromFloat(0.80)),

		DiscoveryEnabled: getEnvBool("DISCOVERY_ENABLED", true),
		MaxPairsPerHour: getEnvInt("MAX_PAIRS_PER_HOUR", 200),
		EventBatchSize: getEnvInt("EVENT_BATCH_SIZE", 25),
		HTTPPollInterval: getEnvDuration("HTTP_POLL_INTERVAL", 5*time.Second),
		WebsocketTimeout: getEnvDuration("WEBSOCKET_TIMEOUT", 20*time.Second),
		WebsocketReconnectDelay: getEnvDuration("WEBSOCKET_RECONNECT_DELAY", 2*time.Second),

		ProviderFailoverThreshold: getEnvInt("PROVIDER_FAILOVER_THRESHOLD", 3),
		ProviderHealthCheckInterval: getEnvDuration("PROVIDER_HEALTH_CHECK_INTERVAL", 30*time.Second),
		ProviderRecoveryTime: getEnvDuration("PROVIDER_RECOVERY_TIME", 300*time.Second),

		MaxConcurrentAnalyses: getEnvInt("MAX_CONCURRENT_ANALYSES", 10),
		MaxConcurrentTrades: getEnvInt("MAX_CONCURRENT_TRADES", 5),
		FastLaneQueueCapacity: getEnvInt("FAST_LANE_QUEUE_CAPACITY", 1000),
		StuckNonceTimeout: getEnvDuration("STUCK_NONCE_TIMEOUT", 45*time.Second),

		MaxPositionsPerPortfolio: getEnvInt("MAX_POSITIONS_PER_PORTFOLIO", 20),

		DatabaseURL: getEnv("DATABASE_URL", "data/dexsentinel.db"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		WalletPrivateKey: os.Getenv("WALLET_PRIVATE_KEY"),
		WalletAddress: os.Getenv("WALLET_ADDRESS"),

		RelayEndpoint: getEnv("RELAY_ENDPOINT", ""),
		RelayEnabled: getEnvBool("RELAY_ENABLED", false),
		MEVRiskThreshold: getEnvDecimal("MEV_RISK_THRESHOLD", decimal.NewFromFloat(0.5)),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, &ConfigError{Field: "TELEGRAM_CHAT_ID", Err: err}
		}
		cfg.TelegramChatID = id
	}

	cfg.Chains = defaultChains(cfg.TargetChains)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigError wraps a fatal startup configuration failure.
type ConfigError struct {
	Field string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (c *Config) validate() error {
	switch c.TradingMode {
	case ModePaper, ModeShadow, ModeLive:
	default:
		return &ConfigError{Field: "TRADING_MODE", Err: fmt.Errorf("must be one of PAPER, SHADOW, LIVE, got %q", c.TradingMode)}
	}
	if len(c.TargetChains) == 0 {
		return &ConfigError{Field: "TARGET_CHAINS", Err: fmt.Errorf("at least one chain is required")}
	}
	if c.MaxPortfolioSizeUSD.LessThanOrEqual(decimal.Zero) {
		return &ConfigError{Field: "MAX_PORTFOLIO_SIZE_USD", Err: fmt.Errorf("must be positive")}
	}
	if c.MaxPositionSizeUSD.GreaterThan(c.MaxPortfolioSizeUSD) {
		return &ConfigError{Field: "MAX_POSITION_SIZE_USD", Err: fmt.Errorf("cannot exceed MAX_PORTFOLIO_SIZE_USD")}
	}
	if c.TradingMode == ModeLive && c.WalletPrivateKey == "" {
		return &ConfigError{Field: "WALLET_PRIVATE_KEY", Err: fmt.Errorf("required when TRADING_MODE=LIVE")}
	}
	return nil
}

// defaultChains seeds well-known chain static data for the requested chain
// ids. Providers are overridable per chain via CHAIN_<id>_PROVIDERS but ship
// with one public default so the engine boots without secrets configured.
func defaultChains(ids []int64) []ChainConfig {
	known := map[int64]ChainConfig{
		1: {
			ChainID: 1, Name: "ethereum",
			RouterV2: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
			RouterV3: "0xE592427A0AEce92De3Edee1F18E0157C05861564",
			FactoryV3: "0x1F98431c8aD98523631AE4a59f267346ea31F984",
			WETH: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			USDC: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			BlockTimeMS: 12000,
			ConfirmationsRequired: 2,
			Providers: []ProviderConfig{{Name: "public-mainnet", HTTPURL: "https://eth.llamarpc.com", WSURL: "wss://eth.llamarpc.com", Priority: 10, MaxRPS: 10}},
		},
		8453: {
			ChainID: 8453, Name: "base",
			RouterV2: "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24",
			RouterV3: "0x2626664c2603336E57B271c5C0b26F421741e481",
			FactoryV3: "0x33128a8fC17869897dcE68Ed026d694621f6FDfD",
			WETH: "0x4200000000000000000000000000000000000006",
			USDC: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			BlockTimeMS: 2000,
			ConfirmationsRequired: 3,
			Providers: []ProviderConfig{{Name: "public-base", HTTPURL: "https://mainnet.base.org", WSURL: "wss://base.llamarpc.com", Priority: 10, MaxRPS: 10}},
		},
		42161: {
			ChainID: 42161, Name: "arbitrum",
			RouterV2: "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506",
			RouterV3: "0xE592427A0AEce92De3Edee1F18E0157C05861564",
			FactoryV3: "0x1F98431c8aD98523631AE4a59f267346ea31F984",
			WETH: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
			USDC: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
			BlockTimeMS: 250,
			ConfirmationsRequired: 5,
			Providers: []ProviderConfig{{Name: "public-arbitrum", HTTPURL: "https://arb1.arbitrum.io/rpc", WSURL: "wss://arbitrum.llamarpc.com", Priority: 10, MaxRPS: 10}},
		},
	}

	out := make([]ChainConfig, 0, len(ids))
	for _, id := range ids {
		if cc, ok := known[id]; ok {
			out = append(out, cc)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64Slice(key string, defaultValue []int64) []int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
