package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port             int
	Environment      string
	DatabaseURL      string
	DatabaseMaxConns int
	FrontendURL      string

	// LLM provider (OpenAI-compatible)
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	EmbeddingModel string
	EmbeddingDims  int

	// Reranker (cross-encoder HTTP service; empty = disabled)
	RerankerURL string

	// Verification pipeline
	NumericTolerance   float64
	TopK               int
	MinRerankScore     float64
	TemporalWindowDays int
	JudgeMaxPassages   int
	EmbedTimeoutSecs   int
	JudgeTimeoutSecs   int
	VerifyParallelism  int

	// Ingestion
	ChunkSizeTokens     int
	ChunkOverlapPercent int

	// Caching
	RedisURL              string
	EmbeddingCacheTTLSecs int
}

// Load reads configuration from environment variables. DATABASE_URL is
// required; everything else has defaults.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),
		FrontendURL:      envStr("FRONTEND_URL", "http://localhost:3000"),

		LLMAPIKey:      envStr("LLM_API_KEY", ""),
		LLMBaseURL:     envStr("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMModel:       envStr("LLM_MODEL", "xiaomi/mimo-v2-flash"),
		EmbeddingModel: envStr("EMBEDDING_MODEL", "qwen/qwen3-embedding-8b"),
		EmbeddingDims:  envInt("EMBEDDING_DIMENSIONS", 768),

		RerankerURL: envStr("RERANKER_URL", ""),

		NumericTolerance:   envFloat("NUMERIC_TOLERANCE", 0.05),
		TopK:               envInt("TOP_K", 5),
		MinRerankScore:     envFloat("MIN_RERANK_SCORE", 0.3),
		TemporalWindowDays: envInt("TEMPORAL_MATCH_WINDOW_DAYS", 7),
		JudgeMaxPassages:   envInt("JUDGE_MAX_PASSAGES", 3),
		EmbedTimeoutSecs:   envInt("EMBED_TIMEOUT_SECONDS", 180),
		JudgeTimeoutSecs:   envInt("JUDGE_TIMEOUT_SECONDS", 120),
		VerifyParallelism:  envInt("VERIFY_PARALLELISM", 1),

		ChunkSizeTokens:     envInt("CHUNK_SIZE_TOKENS", 512),
		ChunkOverlapPercent: envInt("CHUNK_OVERLAP_PERCENT", 15),

		RedisURL:              envStr("REDIS_URL", ""),
		EmbeddingCacheTTLSecs: envInt("EMBEDDING_CACHE_TTL", 900),
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
