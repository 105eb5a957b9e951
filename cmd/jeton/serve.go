package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alecgard/jeton/internal/api"
	"github.com/alecgard/jeton/internal/audit"
	"github.com/alecgard/jeton/internal/auth"
	"github.com/alecgard/jeton/internal/catalog"
	"github.com/alecgard/jeton/internal/config"
	"github.com/alecgard/jeton/internal/dispatch"
	"github.com/alecgard/jeton/internal/ledger"
	"github.com/alecgard/jeton/internal/metrics"
	"github.com/alecgard/jeton/internal/processor"
	"github.com/alecgard/jeton/internal/ratelimit"
	"github.com/alecgard/jeton/internal/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Jeton gateway server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// defaultConfigPath is read when --config is not given and the file exists.
const defaultConfigPath = "configs/jeton.yaml"

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	m := metrics.New()
	if store.poolStats != nil {
		m.RegisterDBPoolCollector(cfg.Database.Driver, store.poolStats)
	}

	entries, err := cfg.Catalog()
	if err != nil {
		return err
	}
	cat, err := catalog.New(entries)
	if err != nil {
		return err
	}
	switcher, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}
	procs, err := processor.Builtin(cat, switcher)
	if err != nil {
		return err
	}
	registry, err := processor.NewRegistry(cat, procs...)
	if err != nil {
		return err
	}

	points := ledger.New(store.ledger, logger)
	points.SetMetrics(m)

	var writer audit.Writer = store.usage
	var collector *audit.Collector
	if cfg.Audit.Mode == config.AuditBatch {
		collector = audit.NewCollector(store.usage, cfg.Audit.BatchSize, cfg.Audit.FlushInterval, logger)
		collector.SetMetrics(m)
		writer = collector
	}
	auditLog := audit.New(writer, logger)
	auditLog.SetMetrics(m)

	dispatcher := dispatch.New(registry, points, auditLog, logger)
	dispatcher.SetMetrics(m)

	users := user.NewService(store.users, points, cfg.SignupBonus, logger)
	authService := auth.NewService(user.NewAuthAdapter(store.users))
	authService.SetMetrics(m)
	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)

	if cfg.Auth.AdminKeyHash == "" {
		slog.Warn("no admin key hash configured; admin endpoints are disabled")
	}

	router := api.NewRouter(api.RouterDeps{
		Dispatcher:     dispatcher,
		Ledger:         points,
		Usage:          store.usage,
		Catalog:        cat,
		Availability:   registry,
		Providers:      switcher,
		Users:          users,
		Auth:           authService,
		Limiter:        limiter,
		Metrics:        m,
		AdminKeyHash:   cfg.Auth.AdminKeyHash,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		HealthCheck:    store.health,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server starting", "addr", cfg.Addr(), "functions", registry.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})

	if collector != nil {
		// The collector outlives the signal; Stop ends it after the server drains.
		g.Go(func() error {
			collector.Start(context.WithoutCancel(gctx))
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		if collector != nil {
			collector.Stop()
		}
		return err
	})

	return g.Wait()
}
