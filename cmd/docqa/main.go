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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/config"
	"github.com/kailas-cloud/docqa/internal/db"
	dbMemory "github.com/kailas-cloud/docqa/internal/db/memory"
	dbValkey "github.com/kailas-cloud/docqa/internal/db/valkey"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/index"
	logpkg "github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/metrics"
	budgetrepo "github.com/kailas-cloud/docqa/internal/repository/budget"
	"github.com/kailas-cloud/docqa/internal/repository/embcache"
	"github.com/kailas-cloud/docqa/internal/resilience"
	"github.com/kailas-cloud/docqa/internal/snapshot"
	chiTransport "github.com/kailas-cloud/docqa/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/docqa/internal/transport/openai"
	answeruc "github.com/kailas-cloud/docqa/internal/usecase/answer"
	embeddinguc "github.com/kailas-cloud/docqa/internal/usecase/embedding"
	generationuc "github.com/kailas-cloud/docqa/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/docqa/internal/usecase/ingest"
	queryuc "github.com/kailas-cloud/docqa/internal/usecase/query"
	retrievaluc "github.com/kailas-cloud/docqa/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/docqa/internal/usecase/usage"
	"github.com/kailas-cloud/docqa/internal/version"
)

const providerName = "openai"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docqa API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
	)

	ctx := context.Background()

	store, err := openStore(ctx, cfg.Cache, logger)
	if err != nil {
		logger.Fatal("Failed to open cache store", zap.Error(err))
	}
	if store != nil {
		defer store.Close()
	}

	// Registered explicitly, no init().
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()

	// Pass nil interfaces (not typed nil pointers) when no budget is configured.
	var (
		budgetChecker embeddinguc.BudgetChecker
		budgetReader  usageuc.BudgetReader
	)
	if b := cfg.Embedding.Budget; b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if b.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget := embeddinguc.NewBudgetTracker(
			providerName, b.DailyTokenLimit, b.MonthlyTokenLimit, action, logger,
		)
		if store != nil {
			budget.WithStore(ctx, budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
		}
		budgetChecker = budget
		budgetReader = budget
	}

	embedder := buildEmbedder(cfg, store, budgetChecker, logger)
	generator := buildGenerator(cfg, logger)
	logger.Info("Providers created",
		zap.String("provider", providerName),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("generation_model", cfg.Generation.Model),
	)

	holder := snapshot.NewHolder()

	ingestSvc := ingestuc.New(chunker.New(cfg.Retrieval.ChunkMaxLen), embedder, holder).
		WithMaxDocumentBytes(cfg.Ingest.MaxDocumentBytes)
	if cfg.Retrieval.Normalize {
		ingestSvc = ingestSvc.WithIndexOptions(index.WithNormalize())
	}
	retrievalEngine := retrievaluc.New(embedder, holder, cfg.Retrieval.K)
	synthesizer := answeruc.New(generator, cfg.Generation.Instruction)
	querySvc := queryuc.New(retrievalEngine, synthesizer)

	healthSvc := healthuc.New().
		With("embedding", newEmbeddingHealthChecker(embedder)).
		With("generation", generator).
		WithDocument(holder)
	if store != nil {
		healthSvc = healthSvc.With("cache", healthuc.CheckerFunc(store.Ping))
	}

	server := chiTransport.NewServer(
		ingestSvc, querySvc, healthSvc, holder, usageuc.New(budgetReader),
		cfg.Ingest.MaxDocumentBytes, logger,
	)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEvent(logger))
	r.Use(chiTransport.CORS())
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker probes the embedder when its chain supports health checks.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// openStore returns nil for the "none" driver.
func openStore(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (db.Store, error) {
	switch cfg.Driver {
	case config.CacheNone:
		logger.Info("Embedding cache disabled")
		return nil, nil
	case config.CacheMemory:
		s, err := dbMemory.NewStore(cfg.MemorySize)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		logger.Info("Using in-process cache", zap.Int("size", cfg.MemorySize))
		return s, nil
	case config.CacheValkey:
		s, err := dbValkey.NewStore(dbValkey.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("valkey store: %w", err)
		}
		if err := s.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
			s.Close()
			return nil, fmt.Errorf("valkey not ready: %w", err)
		}
		logger.Info("Connected to valkey", zap.Strings("addrs", cfg.Addrs))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// buildEmbedder assembles the decorator chain:
// OpenAI -> Cached -> Retrying -> Instrumented -> Instruction.
func buildEmbedder(
	cfg config.Config,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   providerName,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:     logger,
	})

	if store != nil {
		embedder = embcache.New(embedder, store, embcache.Options{
			Model:      cfg.Embedding.Model,
			TTL:        time.Duration(cfg.Cache.TTLSec) * time.Second,
			CacheTotal: metrics.EmbeddingCacheTotal,
			Logger:     logger,
		})
	}

	embedder = embeddinguc.NewRetryingEmbedder(embedder, retryPolicy(cfg.Retry, cfg.Retry.MaxAttempts), logger)

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, embeddinguc.InstrumentedConfig{
		Provider:     providerName,
		Model:        cfg.Embedding.Model,
		MaxBatchSize: cfg.Embedding.MaxBatchSize,
		Budget:       budget,
		Logger:       logger,
	})

	// Outermost, so the cache key includes the instruction.
	if cfg.Embedding.Instruction != "" {
		return domain.NewInstructionEmbedder(embedder, cfg.Embedding.Instruction)
	}
	return embedder
}

// buildGenerator wraps the chat provider with retry and a circuit breaker.
func buildGenerator(cfg config.Config, logger *zap.Logger) *generationuc.Resilient {
	base := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:   cfg.Generation.APIKey,
		BaseURL:  cfg.Generation.BaseURL,
		Model:    cfg.Generation.Model,
		Provider: providerName,
		Timeout:  time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		Logger:   logger,
	})

	return generationuc.NewResilient(base, generationuc.Config{
		Retry: retryPolicy(cfg.Retry, cfg.Generation.MaxAttempts),
		Breaker: resilience.BreakerConfig{
			Name:         "generation",
			FailureRatio: cfg.Generation.Breaker.FailureRatio,
			MinRequests:  cfg.Generation.Breaker.MinRequests,
			OpenTimeout:  time.Duration(cfg.Generation.Breaker.OpenTimeoutSec) * time.Second,
			Interval:     time.Duration(cfg.Generation.Breaker.IntervalSec) * time.Second,
		},
		Logger: logger,
	})
}

func retryPolicy(cfg config.RetryConfig, attempts int) resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: cfg.InitialInterval(),
		MaxInterval:     cfg.MaxInterval(),
		Multiplier:      cfg.Multiplier,
	}
}
