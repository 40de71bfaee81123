package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/magpie-trading/magpie/internal/config"
	"github.com/magpie-trading/magpie/internal/executor"
	"github.com/magpie-trading/magpie/internal/feeds"
	"github.com/magpie-trading/magpie/internal/gateway"
	"github.com/magpie-trading/magpie/internal/observability"
	"github.com/magpie-trading/magpie/internal/orchestrator"
	"github.com/magpie-trading/magpie/internal/risk"
	"github.com/magpie-trading/magpie/internal/scoring"
	"github.com/magpie-trading/magpie/internal/store"
	"github.com/magpie-trading/magpie/internal/telemetry"
)

// staticBalances feeds the governor a fixed paper balance in dry-run mode.
type staticBalances struct {
	balance decimal.Decimal
}

func (s staticBalances) WalletBalance(context.Context) (decimal.Decimal, error) {
	return s.balance, nil
}

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	flag.Parse()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("MAGPIE Trading Orchestrator - Starting")
	log.Info().Msg("WATCH -> SCORE -> GATE -> SIZE -> TRADE")
	log.Info().Msg("SAFETY > PROFIT > SPEED")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Bool("dry_run", cfg.General.DryRun).
		Float64("max_exposure", cfg.Risk.MaxExposureFraction).
		Float64("daily_loss_limit", cfg.Risk.DailyLossLimit).
		Float64("per_trade_cap", cfg.Risk.PerTradeCapSOL).
		Dur("mark_interval", cfg.Orchestrator.MarkInterval).
		Msg("Configuration loaded")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 4. Data gateway.
	marketData := gateway.NewHTTPMarketData(cfg.Gateway.MarketDataURL, cfg.Gateway.RequestTimeout)
	riskCheck := gateway.NewHTTPRiskCheck(cfg.Gateway.RiskCheckURL, cfg.Gateway.RequestTimeout)
	gw := gateway.New(cfg.Gateway, marketData, riskCheck)
	log.Info().
		Dur("cache_ttl", cfg.Gateway.CacheTTL).
		Int("breaker_threshold", cfg.Gateway.BreakerThreshold).
		Msg("Data gateway initialized")

	// 5. Executor: live agent bridge, or the in-process stub for dry runs.
	var adapter executor.Adapter
	var agent *executor.AgentClient
	if cfg.General.DryRun {
		adapter = &executor.StubAdapter{}
		log.Info().Msg("Executor: DRY RUN - orders confirmed in-process, nothing sent")
	} else {
		commander := executor.NewHTTPCommander(cfg.Executor.AgentURL, cfg.Executor.SendTimeout)
		agent = executor.NewAgentClient(commander, cfg.Executor.CommandDelay)
		adapter = agent
		log.Info().
			Str("agent_url", cfg.Executor.AgentURL).
			Dur("command_delay", cfg.Executor.CommandDelay).
			Msg("Executor: LIVE agent bridge")
	}

	// 6. Risk governor.
	var balances risk.BalanceProvider
	if agent != nil {
		balances = agent
	} else {
		balances = staticBalances{balance: decimal.NewFromInt(10)}
	}
	governor := risk.NewGovernor(cfg.Risk, balances)
	if governor.Refresh(ctx) {
		log.Warn().Msg("Governor requested a flatten on the seeding refresh")
	}

	// 7. Stores: Postgres is authoritative, ClickHouse keeps the analytic
	// fill ledger, memory backs dry runs.
	var positions store.PositionStore
	var trades store.TradeStore
	if cfg.Store.PostgresDSN != "" {
		pool, err := store.NewPool(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Postgres connection failed")
		}
		defer pool.Close()
		if err := store.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Postgres schema setup failed")
		}
		pg := store.NewPostgresStore(pool)
		positions, trades = pg, pg
		log.Info().Msg("Postgres store connected")
	} else {
		if !cfg.General.DryRun {
			log.Warn().Msg("No postgres_dsn configured, positions will not survive a restart")
		}
		mem := store.NewMemoryStore()
		positions, trades = mem, mem
		log.Info().Msg("In-memory store active")
	}

	var ledger *store.Ledger
	if cfg.Store.LedgerEnabled && cfg.Store.ClickHouseDSN != "" {
		ledger, err = store.OpenLedger(ctx, cfg.Store.ClickHouseDSN)
		if err != nil {
			log.Warn().Err(err).Msg("ClickHouse ledger unavailable, continuing without it")
			ledger = nil
		} else {
			defer ledger.Close()
			log.Info().Msg("ClickHouse fill ledger connected")
		}
	}

	// 8. Telemetry and metrics.
	journal := telemetry.NewJournal(cfg.Telemetry.ActivityBuffer)
	var metrics orchestrator.Metrics = orchestrator.NopMetrics{}
	if cfg.Ops.MetricsEnabled {
		metrics = observability.NewRecorder()
		log.Info().Msg("Prometheus metrics enabled")
	}

	// 9. Orchestrator.
	orch := orchestrator.New(*cfg, orchestrator.Deps{
		Gateway:   gw,
		Scorer:    scoring.NewScorer(scoring.DefaultWeights()),
		Governor:  governor,
		Adapter:   adapter,
		Positions: positions,
		Trades:    trades,
		Ledger:    ledger,
		Journal:   journal,
		Metrics:   metrics,
	})
	if err := orch.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("Position recovery failed")
	}

	// 10. Feeds.
	var wg sync.WaitGroup
	intake := orch.Intake()

	if cfg.Feeds.Launchpad.Enabled {
		feed := feeds.NewLaunchpadFeed(cfg.Feeds.Launchpad, intake)
		wg.Add(1)
		go func() { defer wg.Done(); feed.Run(ctx) }()
		log.Info().Str("ws_url", cfg.Feeds.Launchpad.WSURL).Msg("Launchpad feed started")
	}
	if cfg.Feeds.Trending.Enabled {
		feed := feeds.NewTrendingFeed(cfg.Feeds.Trending, intake)
		wg.Add(1)
		go func() { defer wg.Done(); feed.Run(ctx) }()
		log.Info().Dur("poll_interval", cfg.Feeds.Trending.PollInterval).Msg("Trending feed started")
	}
	if cfg.Feeds.Whales.Enabled {
		feed := feeds.NewWhaleFeed(cfg.Feeds.Whales, intake)
		wg.Add(1)
		go func() { defer wg.Done(); feed.Run(ctx) }()
		log.Info().Int("wallets", len(cfg.Feeds.Whales.Wallets)).Msg("Whale feed started")
	}

	// 11. Background services.
	if ledger != nil {
		wg.Add(1)
		go func() { defer wg.Done(); ledger.Run(ctx) }()
	}

	hub := telemetry.NewHub(func() any { return orch.Stats() }, cfg.Telemetry.BroadcastInterval)
	wg.Add(1)
	go func() { defer wg.Done(); hub.Run(ctx) }()

	wg.Add(1)
	go func() { defer wg.Done(); orch.Run(ctx) }()

	// 12. Ops HTTP server: health, stats, positions, control plane,
	// dashboard websocket and Prometheus scrape.
	wg.Add(1)
	go func() {
		defer wg.Done()
		runOpsServer(ctx, cfg, orch, governor, hub)
	}()

	// 13. Periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := orch.Stats()
				log.Info().
					Int("open_positions", stats.Book.Open).
					Int("wins", stats.Book.Wins).
					Int("losses", stats.Book.Losses).
					Str("exposure_sol", stats.Book.ExposureSOL.String()).
					Str("realized_pl", stats.Book.RealizedTotal.String()).
					Int("watching", stats.Watching).
					Bool("frozen", stats.Governor.Frozen).
					Int64("cache_hits", stats.Gateway.CacheHits).
					Msg("[STATS]")
			}
		}
	}()

	log.Info().Msg("MAGPIE Trading Orchestrator - Running")

	// 14. Block until shutdown.
	<-ctx.Done()
	log.Info().Msg("Shutting down...")
	wg.Wait()

	final := orch.Stats()
	log.Info().
		Int("open_positions", final.Book.Open).
		Int("wins", final.Book.Wins).
		Int("losses", final.Book.Losses).
		Str("realized_pl", final.Book.RealizedTotal.String()).
		Msg("MAGPIE - Final statistics")
	log.Info().Msg("MAGPIE - Shutdown complete")
}

func runOpsServer(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, governor *risk.Governor, hub *telemetry.Hub) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		snap := governor.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"dry_run": cfg.General.DryRun,
			"frozen":  snap.Frozen,
			"killed":  snap.Killed,
		})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Stats())
	})

	mux.HandleFunc("/positions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Book().Snapshot())
	})

	mux.HandleFunc("/watchlist", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Watchlist().Snapshot())
	})

	mux.HandleFunc("/control/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		governor.Pause("operator request")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"paused"}`)
	})

	mux.HandleFunc("/control/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		governor.Resume()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"running"}`)
	})

	mux.HandleFunc("/control/kill", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		governor.Kill()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"killed"}`)
	})

	mux.HandleFunc("/ws", hub.Handler)

	if cfg.Ops.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	addr := fmt.Sprintf(":%d", cfg.Ops.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Ops HTTP server started (health + stats + control + ws)")

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
		log.Error().Err(srvErr).Msg("Ops HTTP server error")
	}
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "magpie").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "magpie").
			Str("instance", general.InstanceID).Logger()
	}
}
