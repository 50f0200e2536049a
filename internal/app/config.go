package app

import (
	"strings"
	"time"

	"github.com/vantor/intelpost-backend/internal/logger"
	"github.com/vantor/intelpost-backend/internal/utils"
)

type Config struct {
	HTTPAddr             string
	AllowOrigins         []string
	RulesPath            string
	ReconcileConcurrency int
	WorkerPollInterval   time.Duration
	TreeCacheTTL         time.Duration
	RedisEnabled         bool
	ReconcileOnStart     string // ""|full|incremental
	Environment          string
	Version              string
}

func LoadConfig(log *logger.Logger) Config {
	origins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	pollSeconds := utils.GetEnvAsInt("WORKER_POLL_INTERVAL_SECONDS", 5, log)
	cacheTTLSeconds := utils.GetEnvAsInt("TREE_CACHE_TTL_SECONDS", 300, log)
	return Config{
		HTTPAddr:             utils.GetEnv("HTTP_ADDR", ":8080", log),
		AllowOrigins:         origins,
		RulesPath:            utils.GetEnv("TAXONOMY_RULES_PATH", "", log),
		ReconcileConcurrency: utils.GetEnvAsInt("RECONCILE_CONCURRENCY", 4, log),
		WorkerPollInterval:   time.Duration(pollSeconds) * time.Second,
		TreeCacheTTL:         time.Duration(cacheTTLSeconds) * time.Second,
		RedisEnabled:         utils.GetEnvAsBool("REDIS_ENABLED", false, log),
		ReconcileOnStart:     utils.GetEnv("RECONCILE_ON_START", "", log),
		Environment:          utils.GetEnv("ENVIRONMENT", "development", log),
		Version:              utils.GetEnv("SERVICE_VERSION", "dev", log),
	}
}
