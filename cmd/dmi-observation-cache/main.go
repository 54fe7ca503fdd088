package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/dmi-observation-cache/internal/api/http"
	"github.com/i474232898/dmi-observation-cache/internal/common"
	"github.com/i474232898/dmi-observation-cache/internal/config"
	"github.com/i474232898/dmi-observation-cache/internal/observations"
	"github.com/i474232898/dmi-observation-cache/internal/observations/providers"
	"github.com/i474232898/dmi-observation-cache/internal/reconciler"
	"github.com/i474232898/dmi-observation-cache/internal/scheduler"
	"github.com/i474232898/dmi-observation-cache/internal/store"
)

// app holds everything built from the configuration.
type app struct {
	cfg        *config.AppConfig
	logger     *slog.Logger
	service    *observations.Service
	reconciler *reconciler.Reconciler
}

func build() (*app, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "INFO: No .env file found or error loading it: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := common.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	clock := clockwork.NewRealClock()

	files := store.NewFileStore(cfg.CacheDir)
	cacheCfg := store.DefaultReadCacheConfig()
	cacheCfg.Capacity = cfg.ReadCacheCapacity
	cacheCfg.TTL = cfg.ReadCacheTTL
	days, err := store.NewCachedStore(files, cacheCfg)
	if err != nil {
		return nil, err
	}

	// Shared HTTP client for outbound upstream calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	dmi := providers.NewDMIProvider(httpClient, providers.DMIConfig{
		BaseURL: cfg.APIURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.HTTPTimeout,
		Breaker: cfg.Breaker(),
	}, log)

	rec := reconciler.New(days, dmi, clock, cfg.Start(), reconciler.Options{
		Concurrency:       cfg.FetchConcurrency,
		RequestsPerMinute: cfg.RateLimitPerMin,
	}, log)

	return &app{
		cfg:        cfg,
		logger:     log,
		service:    observations.NewService(days, clock, cfg.Start()),
		reconciler: rec,
	}, nil
}

func main() {
	root := &cobra.Command{
		Use:           "dmi-observation-cache",
		Short:         "Keeps a local day-by-day cache of DMI observations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the background cache worker and the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Run one reconciliation pass and print the result",
			RunE: func(cmd *cobra.Command, args []string) error {
				return syncOnce(cmd)
			},
		},
		&cobra.Command{
			Use:   "range",
			Short: "Print the range of cached dates",
			RunE: func(cmd *cobra.Command, args []string) error {
				return printRange(cmd)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	a, err := build()
	if err != nil {
		return err
	}

	// Background worker: first pass now, then every FetchInterval.
	sched := scheduler.New(a.reconciler, a.cfg.FetchInterval, a.logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	server := fiber.New(fiber.Config{
		AppName:               "dmi-observation-cache",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	server.Use(logger.New())
	server.Use(recover.New())
	server.Use(cors.New())

	server.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "dmi-observation-cache",
		})
	})

	httpapi.RegisterRoutes(server, a.service, a.reconciler)

	go func() {
		if err := server.Listen(":" + a.cfg.Port); err != nil {
			a.logger.Error("fiber server stopped", "error", err)
		}
	}()
	a.logger.Info("listening", "port", a.cfg.Port, "cache_dir", a.cfg.CacheDir)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		a.logger.Error("error during shutdown", "error", err)
	}
	return nil
}

func syncOnce(cmd *cobra.Command) error {
	a, err := build()
	if err != nil {
		return err
	}
	if !a.reconciler.Enabled() {
		return fmt.Errorf("DMI_START_CACHE_DATE is not set; nothing to sync")
	}

	res := a.reconciler.RunPass(cmd.Context())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.StorageFailures > 0 {
		return fmt.Errorf("%d day(s) could not be written to %s", res.StorageFailures, a.cfg.CacheDir)
	}
	return nil
}

func printRange(cmd *cobra.Command) error {
	a, err := build()
	if err != nil {
		return err
	}

	r, ok, err := a.service.CachedDateRange()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "no cached data")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d days spanned)\n", r.From, r.To, r.Days())
	return nil
}
