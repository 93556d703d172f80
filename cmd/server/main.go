package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/moats-ai/moats-backend/internal/cache"
	"github.com/moats-ai/moats-backend/internal/config"
	"github.com/moats-ai/moats-backend/internal/handler"
	"github.com/moats-ai/moats-backend/internal/llmclient"
	"github.com/moats-ai/moats-backend/internal/middleware"
	"github.com/moats-ai/moats-backend/internal/repository"
	"github.com/moats-ai/moats-backend/internal/router"
	"github.com/moats-ai/moats-backend/internal/service"
)

const Version = "0.1.0"

func run() error {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		return err
	}

	// Repositories
	libRepo := repository.NewLibraryRepo(pool)
	docRepo := repository.NewDocumentRepo(pool)
	chunkRepo := repository.NewChunkRepo(pool)
	verRepo := repository.NewVerificationRepo(pool)

	// LLM provider
	llm := llmclient.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, cfg.EmbeddingModel)

	// Metrics
	metricsReg := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics(metricsReg)
	verifyMetrics := service.NewVerifyMetrics(metricsReg)

	// Verification pipeline
	embedCache := cache.NewEmbeddingCache(time.Duration(cfg.EmbeddingCacheTTLSecs) * time.Second)
	defer embedCache.Stop()

	retriever := service.NewEvidenceRetriever(llm, chunkRepo)
	retriever.SetTopK(cfg.TopK)
	retriever.SetMinRerankScore(cfg.MinRerankScore)
	retriever.SetEmbedTimeout(time.Duration(cfg.EmbedTimeoutSecs) * time.Second)
	retriever.SetCache(embedCache)
	if cfg.RerankerURL != "" {
		retriever.SetReranker(llmclient.NewReranker(cfg.RerankerURL))
	} else {
		slog.Warn("no reranker configured, falling back to similarity ordering")
	}

	verdicts := service.NewVerdictGenerator(llm)
	verdicts.SetMaxPassages(cfg.JudgeMaxPassages)
	verdicts.SetJudgeTimeout(time.Duration(cfg.JudgeTimeoutSecs) * time.Second)

	pipeline := service.NewVerificationPipeline(
		service.NewSegmenter(),
		service.NewExtractor(service.HeuristicTagger{}),
		service.NewComparator(cfg.NumericTolerance, cfg.TemporalWindowDays),
		retriever,
		verdicts,
	)
	pipeline.SetParallelism(cfg.VerifyParallelism)
	pipeline.SetMetrics(verifyMetrics)

	// Ingestion
	embedder := service.NewEmbedder(llm, chunkRepo, cfg.EmbeddingDims)
	chunker := service.NewChunker(cfg.ChunkSizeTokens, float64(cfg.ChunkOverlapPercent)/100)
	ingester := service.NewIngestPipeline(chunker, embedder, docRepo, libRepo)

	// Optional Redis-backed result cache
	var resultCache *cache.VerificationCache
	if cfg.RedisURL != "" {
		resultCache, err = cache.NewVerificationCache(cfg.RedisURL, 1*time.Hour)
		if err != nil {
			return err
		}
		defer resultCache.Close()
	}

	verifyLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests: 30,
		Window:      1 * time.Minute,
	})
	defer verifyLimiter.Stop()

	mux := router.New(&router.Dependencies{
		DB:          pool,
		FrontendURL: cfg.FrontendURL,
		Version:     Version,
		Metrics:     httpMetrics,
		MetricsReg:  metricsReg,
		Libraries:   libRepo,
		VerifyDeps: handler.VerifyDeps{
			Pipeline:      pipeline,
			Libraries:     libRepo,
			Verifications: verRepo,
			ResultCache:   resultCache,
		},
		IngestDeps: handler.IngestDeps{
			Libraries: libRepo,
			Documents: docRepo,
			Ingester:  ingester,
		},
		VerifyRateLimiter: verifyLimiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 6 * time.Minute, // verification responses can take a while
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("moats-backend starting", "version", Version, "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received signal, shutting down gracefully", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
