package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devblac/mintwatch/internal/chain"
	"github.com/devblac/mintwatch/internal/config"
	"github.com/devblac/mintwatch/internal/dispatch"
	"github.com/devblac/mintwatch/internal/engine"
	"github.com/devblac/mintwatch/internal/explorer"
	"github.com/devblac/mintwatch/internal/feed"
	"github.com/devblac/mintwatch/internal/health"
	"github.com/devblac/mintwatch/internal/introspect"
	"github.com/devblac/mintwatch/internal/logging"
	"github.com/devblac/mintwatch/internal/metrics"
	"github.com/devblac/mintwatch/internal/storage"
	"github.com/devblac/mintwatch/internal/supply"
	"github.com/spf13/cobra"
)

var (
	flagOnce    bool
	flagDryRun  bool
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Run one cycle and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Evaluate every gate but never send a transaction")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the mint evaluation loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			logLevel = "info"
		}
		log := logging.NewWithFormat(logLevel, os.Getenv("LOG_FORMAT"))
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		rpc, err := chain.NewRPCClient(cfg.Chain.RPCURL)
		if err != nil {
			return err
		}
		defer rpc.Close()
		chainID, err := rpc.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("read chain id: %w", err)
		}
		wallet, err := chain.NewWallet(cfg.Wallet.PrivateKey, cfg.Wallet.Recipient)
		if err != nil {
			return fmt.Errorf("wallet: %w", err)
		}
		reader := chain.NewReader(rpc)

		abiCache, cachePing, cacheCloser, err := buildCache(cfg.Cache)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		if cacheCloser != nil {
			defer cacheCloser.Close()
		}
		overrides, err := explorer.LoadOverrides(cfg.Explorer.ABIDirs)
		if err != nil {
			return fmt.Errorf("abi overrides: %w", err)
		}
		limiter := explorer.NewRateLimiter(cfg.Explorer.RatePerSecond, cfg.Explorer.RatePerSecond)
		ex := explorer.NewClient(cfg.Explorer.BaseURL, cfg.Explorer.APIKey, limiter)
		registry := explorer.NewRegistry(ex, overrides, abiCache, time.Duration(cfg.Cache.TTL), log)

		targets, closers, err := buildSinks(cfg.Sinks)
		if err != nil {
			return err
		}
		defer closeAll(closers, log)

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			log.Info("metrics enabled", "addr", flagMetrics)
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: flagMetrics, Handler: mux, ReadHeaderTimeout: 3 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server error", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := shutdownTimeout()
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if flagHealth != "" {
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:    store.Ping,
				RPCPing:   upstreamChecker(reader, ex).Ping,
				CachePing: cachePing,
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := shutdownTimeout()
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		deps := engine.Deps{
			Feed:     feed.NewClient(cfg.Feed.URL, cfg.Feed.Limit),
			Balances: reader,
			Resolver: introspect.New(registry, reader, log),
			Auditor:  supply.NewAuditor(reader, log),
			Gas:      ex,
			Journal:  store,
			Sinks:    targets,
			Metrics:  mtr,
			Logger:   log,
		}
		if !flagDryRun {
			deps.Dispatcher = dispatch.New(rpc, wallet, chainID, time.Duration(cfg.Global.ConfirmTimeout))
		}
		runner, err := engine.NewRunner(deps, engine.Options{
			Thresholds: thresholds(cfg.Gates),
			Recipient:  wallet.Recipient,
			Sender:     wallet.Address,
			DryRun:     flagDryRun,
		})
		if err != nil {
			return err
		}

		log.Info("mintwatch starting",
			"chain_id", chainID.String(),
			"sender", wallet.Address.Hex(),
			"recipient", wallet.Recipient.Hex(),
			"interval", cfg.PollingInterval().String(),
			"dry_run", flagDryRun,
		)

		if flagOnce {
			rep := runner.RunOnce(ctx)
			return reportExit(rep)
		}

		sched := &engine.Scheduler{
			Interval: cfg.PollingInterval(),
			Run:      func(ctx context.Context) { runner.RunOnce(ctx) },
			Metrics:  mtr,
			Logger:   log,
		}
		sched.Start(ctx)
		log.Info("mintwatch stopped")
		return nil
	},
}

// reportExit turns a failed one-shot mint into a non-zero exit.
func reportExit(rep engine.Report) error {
	if rep.Status() == engine.StatusFailed {
		return fmt.Errorf("mint failed: %w", rep.Outcome.Err)
	}
	return nil
}
