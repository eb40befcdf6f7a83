package app

import (
	"strings"
	"time"

	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/utils"
)

type Config struct {
	Port         string
	AllowOrigins []string
	ZipDataPath  string

	Scrape   ScrapeConfig
	AI       AIConfig
	Worker   WorkerConfig
	RedisBus bool
}

type ScrapeConfig struct {
	Concurrency     int
	InterBatchDelay time.Duration
	MaxReviews      int
	MaxQuestions    int
	DevMode         bool
}

type AIConfig struct {
	PageSize          int
	MinReviews        int
	RequestsPerWindow int
	TokensPerWindow   int
	MaxAttempts       int
	RetryDelay        time.Duration
}

type WorkerConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	origins := utils.GetEnv("CORS_ALLOW_ORIGINS", "", log)
	zipPath := utils.GetEnv("ZIP_DATA_PATH", "data/zip_codes.csv", log)

	var allowOrigins []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowOrigins = append(allowOrigins, o)
		}
	}

	return Config{
		Port:         port,
		AllowOrigins: allowOrigins,
		ZipDataPath:  zipPath,
		Scrape: ScrapeConfig{
			Concurrency:     utils.GetEnvAsInt("SCRAPE_CONCURRENCY", 25, log),
			InterBatchDelay: time.Duration(utils.GetEnvAsInt("SCRAPE_INTER_BATCH_DELAY_SECONDS", 5, log)) * time.Second,
			MaxReviews:      utils.GetEnvAsInt("SCRAPE_MAX_REVIEWS", 30, log),
			MaxQuestions:    utils.GetEnvAsInt("SCRAPE_MAX_QUESTIONS", 10, log),
			DevMode:         utils.GetEnvAsBool("SCRAPE_DEV_MODE", false, log),
		},
		AI: AIConfig{
			PageSize:          utils.GetEnvAsInt("AI_PAGE_SIZE", 25, log),
			MinReviews:        utils.GetEnvAsInt("AI_MIN_REVIEWS", 10, log),
			RequestsPerWindow: utils.GetEnvAsInt("AI_REQUESTS_PER_MINUTE", 45, log),
			TokensPerWindow:   utils.GetEnvAsInt("AI_TOKENS_PER_MINUTE", 35000, log),
			MaxAttempts:       utils.GetEnvAsInt("AI_MAX_ATTEMPTS", 3, log),
			RetryDelay:        time.Duration(utils.GetEnvAsInt("AI_RETRY_DELAY_SECONDS", 65, log)) * time.Second,
		},
		Worker: WorkerConfig{
			PollInterval: time.Duration(utils.GetEnvAsInt("JOB_POLL_INTERVAL_SECONDS", 1, log)) * time.Second,
			MaxAttempts:  utils.GetEnvAsInt("JOB_MAX_ATTEMPTS", 3, log),
			RetryDelay:   time.Duration(utils.GetEnvAsInt("JOB_RETRY_DELAY_SECONDS", 30, log)) * time.Second,
		},
		RedisBus: utils.GetEnvAsBool("REDIS_JOB_EVENTS", false, log),
	}
}
