package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jordanhubbard/counsel/internal/api"
	"github.com/jordanhubbard/counsel/internal/cache"
	"github.com/jordanhubbard/counsel/internal/config"
	"github.com/jordanhubbard/counsel/internal/eventbus"
	"github.com/jordanhubbard/counsel/internal/memory"
	"github.com/jordanhubbard/counsel/internal/orchestrator"
	"github.com/jordanhubbard/counsel/internal/storage"
	"github.com/jordanhubbard/counsel/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the consultation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// buildEngine wires the engine from configuration: Redis cache backend,
// Postgres stores and the NATS publisher are optional and fall back to
// in-process equivalents.
func buildEngine(ctx context.Context, cfg *config.Config) (*orchestrator.Engine, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	consultations := cache.New(&cfg.Cache)
	if cfg.Redis.Enabled {
		backend, err := cache.NewRedisBackend(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cleanups = append(cleanups, func() { backend.Close() })
		consultations = cache.NewWithBackend(&cfg.Cache, backend)
		log.Printf("[Serve] Using Redis cache backend at %s", cfg.Redis.Addr)
	}

	var contexts memory.ContextStore
	var patterns memory.PatternStore
	var analytics memory.AnalyticsStore
	if cfg.Postgres.Enabled {
		store, err := storage.NewPostgres(cfg.Postgres.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		cleanups = append(cleanups, func() { store.Close() })
		contexts, patterns, analytics = store, store, store
		log.Printf("[Serve] Using Postgres stores")
	}

	var bus eventbus.Publisher
	if cfg.NATS.Enabled {
		publisher, err := eventbus.NewNatsPublisher(cfg.NATS.Bus())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		cleanups = append(cleanups, func() { publisher.Close() })
		bus = publisher
		log.Printf("[Serve] Publishing task events to %s", cfg.NATS.URL)
	}

	mem := memory.NewManager(cfg.Memory, contexts, consultations, &cfg.Cache, patterns, analytics)
	engine := orchestrator.New(cfg.Engine, orchestrator.Deps{Memory: mem, Bus: bus})
	engine.Analyzer().SetThresholds(cfg.Thresholds)

	return engine, cleanup, nil
}

func runServe() error {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTelemetry(ctx, "counsel", cfg.Engine.Environment, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Printf("[Serve] Telemetry shutdown error: %v", err)
			}
		}()
	}

	engine, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := os.Stat(configPath); err == nil {
		stop, err := config.WatchThresholds(configPath, engine.Analyzer())
		if err != nil {
			log.Printf("[Serve] Threshold hot-reload disabled: %v", err)
		} else {
			defer stop()
		}
	}

	server := api.NewServer(engine, cfg.Server.JWTSecret)
	handler := otelhttp.NewHandler(server.SetupRoutes(), "counsel-http-server")

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Serve] Counsel v%s listening on %s", version, cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigCh:
		log.Printf("[Serve] Received %v, shutting down", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}
	return nil
}
