// dexsentineld is the DEX Sentinel trading engine daemon: discovers new
// pairs, risk-assesses them, and routes trade decisions through the fast or
// smart lane across every configured chain.
//
// Architecture: Discovery → Event Bus → Risk Engine → Smart-Lane Pipeline →
// Executor (Fast or Smart) → Relay/Public Mempool → Portfolio Manager →
// Circuit Breaker feedback → Engine Gate.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dexsentinel/engine/internal/alerting"
	"github.com/dexsentinel/engine/internal/chainconfig"
	"github.com/dexsentinel/engine/internal/config"
	"github.com/dexsentinel/engine/internal/engine"
	"github.com/dexsentinel/engine/internal/eventbus"
	"github.com/dexsentinel/engine/internal/fastlane"
	"github.com/dexsentinel/engine/internal/storage"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	statusOnly := flag.Bool("status", false, "print a one-shot engine status snapshot and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().Str("version", version).Str("trading_mode", string(cfg.TradingMode)).
		Ints64("target_chains", cfg.TargetChains).Msg("dexsentineld starting")

	store, err := storage.Open("sqlite", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	bus, err := eventbus.New(eventbus.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct event bus")
	}

	if cfg.TelegramToken != "" {
		telegramSink, err := alerting.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize telegram alerting, continuing without it")
		} else if err := telegramSink.Subscribe(bus); err != nil {
			log.Error().Err(err).Msg("failed to subscribe telegram alerting")
		}
	}

	registry, err := chainconfig.NewRegistry(cfg.Chains)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build chain registry")
	}

	var signer fastlane.Signer
	if cfg.TradingMode == config.ModeLive {
		evmSigner, err := fastlane.NewEVMSigner(cfg.WalletPrivateKey, registry)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize wallet signer")
		}
		signer = evmSigner
	}

	eng, err := engine.Build(engine.BuildArgs{
		Config: *cfg,
		Bus:    bus,
		Store:  store,
		Signer: signer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}

	if *statusOnly {
		engine.RenderEngineStatus(os.Stdout, eng.Status())
		return
	}

	if chainCount := len(cfg.Chains); chainCount > 0 {
		perChainCapital := cfg.MaxPortfolioSizeUSD.Div(decimal.NewFromInt(int64(chainCount)))
		for _, chain := range cfg.Chains {
			eng.SeedCapital(chain.ChainID, perChainCapital)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- eng.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// SIGUSR1 is the operator's emergency stop: close every open position
	// and forbid new opens without tearing down the process, so the
	// operator can inspect Status() before deciding whether to also stop
	// the daemon entirely.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGUSR1)
	go func() {
		for range stop {
			log.Warn().Msg("received SIGUSR1, triggering emergency stop")
			eng.EmergencyStop("operator SIGUSR1")
		}
	}()

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("engine stopped with error")
		}
	}

	log.Info().Msg("dexsentineld stopped")
}
