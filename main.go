package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/activities"
	"github.com/Kocoro-lab/queryrouter/internal/circuitbreaker"
	"github.com/Kocoro-lab/queryrouter/internal/config"
	"github.com/Kocoro-lab/queryrouter/internal/health"
	"github.com/Kocoro-lab/queryrouter/internal/httpapi"
	"github.com/Kocoro-lab/queryrouter/internal/interceptors"
	"github.com/Kocoro-lab/queryrouter/internal/llm"
	"github.com/Kocoro-lab/queryrouter/internal/prompts"
	"github.com/Kocoro-lab/queryrouter/internal/registry"
	"github.com/Kocoro-lab/queryrouter/internal/router"
	"github.com/Kocoro-lab/queryrouter/internal/schema"
	"github.com/Kocoro-lab/queryrouter/internal/temporal"
	"github.com/Kocoro-lab/queryrouter/internal/tools"
	"github.com/Kocoro-lab/queryrouter/internal/tracing"
	"github.com/Kocoro-lab/queryrouter/internal/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger)
	if err != nil {
		logger.Warn("Tracing initialization failed, continuing without it", zap.Error(err))
	}

	// Health endpoints come up first so liveness checks answer while dependencies start.
	hm := health.NewManager(logger)
	adminMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(adminMux)
	_ = hm.RegisterChecker(health.NewBreakerChecker(nil))
	adminServer := serve(fmt.Sprintf(":%d", cfg.HTTP.Port), adminMux, "Admin HTTP server", logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mm := http.NewServeMux()
		mm.Handle("/metrics", promhttp.Handler())
		metricsServer = serve(fmt.Sprintf(":%d", cfg.Metrics.Port), mm, "Metrics server", logger)
	}

	tClient, err := temporal.Dial(ctx, temporal.DialOptions{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer tClient.Close()
	_ = hm.RegisterChecker(health.NewTemporalChecker(tClient))

	promptStore, err := prompts.NewStore(cfg.Prompts.Path, logger)
	if err != nil {
		logger.Fatal("Failed to load prompt catalog", zap.Error(err))
	}
	defer promptStore.Close()
	if cfg.Prompts.Path != "" {
		if err := promptStore.Watch(ctx); err != nil {
			logger.Warn("Prompt override watch disabled", zap.String("path", cfg.Prompts.Path), zap.Error(err))
		}
	}

	// An unreachable database only fails database-path runs; the pool keeps
	// retrying on each lookup, so no restart is needed once it is back.
	var schemaSource schema.Source
	if pg, err := schema.Connect(cfg.Postgres, logger); err != nil {
		logger.Warn("Schema database disabled", zap.Error(err))
	} else {
		defer pg.Close()
		schemaSource = pg
		_ = hm.RegisterChecker(health.NewPingChecker("database", pg, false))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := pg.Ping(pingCtx); err != nil {
			logger.Warn("Schema database not reachable yet", zap.Error(err))
		}
		cancel()
	}

	// The SSE stream lives as long as the session, so the client has no overall timeout.
	mcpHTTP := &http.Client{Transport: interceptors.NewWorkflowHTTPRoundTripper(http.DefaultTransport)}
	holder := tools.NewHolder(tools.NewMCPDialer(mcpHTTP, logger), tools.Endpoint{
		URL:         cfg.Tools.Endpoint,
		SessionName: cfg.Tools.SessionName,
		Headers:     cfg.Tools.Headers,
	}, logger)
	provisionCtx, cancelProvision := context.WithTimeout(ctx, cfg.Tools.Timeout)
	if err := holder.Provision(provisionCtx); err != nil {
		logger.Error("Tool provisioning failed; database queries will fail until refreshed",
			zap.String("endpoint", cfg.Tools.Endpoint), zap.Error(err))
	}
	cancelProvision()
	_ = hm.RegisterChecker(health.NewToolsChecker(holder))

	completer, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Fatal("Failed to create inference backend", zap.Error(err))
	}

	acts := activities.NewActivities(completer, promptStore, schemaSource, holder, logger)
	acts.MaxToolRounds = cfg.LLM.MaxToolRounds

	w := worker.New(tClient, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Worker.Activities,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Worker.Workflows,
	})
	registry.NewRouterRegistry(nil, acts, logger).Register(w)
	if err := w.Start(); err != nil {
		logger.Fatal("Failed to start Temporal worker", zap.Error(err))
	}
	logger.Info("Temporal worker started",
		zap.String("queue", cfg.Temporal.TaskQueue),
		zap.Int("activities", cfg.Worker.Activities),
		zap.Int("workflows", cfg.Worker.Workflows),
	)

	rt := router.New(tClient, router.Options{
		TaskQueue:        cfg.Temporal.TaskQueue,
		ExecutionTimeout: cfg.Workflow.ExecutionTimeout,
		Run: workflows.RunOptions{
			ClassifyTimeout: cfg.Workflow.ClassifyTimeout,
			StepTimeout:     cfg.Workflow.StepTimeout,
			MaxAttempts:     int32(cfg.Workflow.MaxAttempts),
		},
	}, logger)

	var idem *httpapi.IdempotencyMiddleware
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		rw := circuitbreaker.NewRedisWrapper(rdb, logger)
		idem = httpapi.NewIdempotencyMiddleware(rw, cfg.HTTP.IdemTTL, cfg.HTTP.RunTimeout, logger)
		_ = hm.RegisterChecker(health.NewPingChecker("redis", health.PingFunc(func(ctx context.Context) error {
			return rw.Ping(ctx).Err()
		}), false))
	}
	api := httpapi.NewHandler(
		httpapi.NewRouteHandler(rt, holder, cfg.HTTP.RunTimeout, logger),
		httpapi.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.Burst, logger),
		idem,
	)
	adminMux.Handle("/v1/", api)
	hm.Start(30 * time.Second)

	<-ctx.Done()
	logger.Info("Shutting down query router")

	w.Stop()
	hm.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin HTTP shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}
}

func serve(addr string, h http.Handler, name string, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info(name+" listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(name+" failed", zap.Error(err))
			os.Exit(1)
		}
	}()
	return srv
}
