package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/voltbase/scooterdex-backend/internal/clients/apify"
	"github.com/voltbase/scooterdex-backend/internal/clients/openai"
	redisclient "github.com/voltbase/scooterdex-backend/internal/clients/redis"
	"github.com/voltbase/scooterdex-backend/internal/geo"
	"github.com/voltbase/scooterdex-backend/internal/jobs"
	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/scrapeconfig"
	"github.com/voltbase/scooterdex-backend/internal/services"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

type Services struct {
	Scraper      services.ListingScraper
	Orchestrator services.ScrapeOrchestrator
	Summaries    services.SummaryGenerator
	Processor    services.AIProcessor
	Search       services.SearchService
	JobService   services.JobService

	Plan     *scrapeconfig.Plan
	ZipIndex *geo.ZipIndex
	JobBus   redisclient.JobEventBus

	JobRegistry *jobs.Registry
	JobWorker   *jobs.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	plan, err := scrapeconfig.Load(log)
	if err != nil {
		return Services{}, fmt.Errorf("load scrape plan: %w", err)
	}

	zips, err := geo.NewZipIndex(cfg.ZipDataPath, log)
	if err != nil {
		return Services{}, fmt.Errorf("load zip index: %w", err)
	}

	places, err := apify.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init places client: %w", err)
	}

	ai, err := openai.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init ai client: %w", err)
	}

	var bus redisclient.JobEventBus
	if cfg.RedisBus {
		bus, err = redisclient.NewJobEventBus(log)
		if err != nil {
			return Services{}, fmt.Errorf("init job event bus: %w", err)
		}
	}

	scraper := services.NewListingScraper(log, places, services.ScraperConfig{
		MaxReviews:   cfg.Scrape.MaxReviews,
		MaxQuestions: cfg.Scrape.MaxQuestions,
		DevMode:      cfg.Scrape.DevMode,
	})

	orchestrator := services.NewScrapeOrchestrator(log, scraper, reposet.Store, reposet.ScrapeRun, services.ScrapeOrchestratorConfig{
		Concurrency:     cfg.Scrape.Concurrency,
		InterBatchDelay: cfg.Scrape.InterBatchDelay,
	})

	limiter := services.NewRateLimiter(log, services.RateLimitConfig{
		RequestsPerWindow: cfg.AI.RequestsPerWindow,
		TokensPerWindow:   cfg.AI.TokensPerWindow,
	})

	summaries := services.NewSummaryGenerator(log, ai, limiter, reposet.AICallLog, services.SummaryGeneratorConfig{
		MaxAttempts: cfg.AI.MaxAttempts,
		RetryDelay:  cfg.AI.RetryDelay,
	})

	processor := services.NewAIProcessor(log, reposet.Store, summaries, services.AIProcessorConfig{
		PageSize:   cfg.AI.PageSize,
		MinReviews: cfg.AI.MinReviews,
	})

	search := services.NewSearchService(log, reposet.Store, zips)
	jobService := services.NewJobService(log, reposet.JobRun)

	registry := jobs.NewRegistry()
	registry.Register(types.JobTypeScrapeAll, jobs.NewScrapeAllHandler(orchestrator, plan))
	registry.Register(types.JobTypeScrapeState, jobs.NewScrapeStateHandler(orchestrator, plan))
	registry.Register(types.JobTypeAIProcess, jobs.NewAIProcessHandler(processor))

	worker := jobs.NewWorker(db, log, reposet.JobRun, registry, bus, jobs.WorkerConfig{
		PollInterval: cfg.Worker.PollInterval,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		RetryDelay:   cfg.Worker.RetryDelay,
	})

	return Services{
		Scraper:      scraper,
		Orchestrator: orchestrator,
		Summaries:    summaries,
		Processor:    processor,
		Search:       search,
		JobService:   jobService,
		Plan:         plan,
		ZipIndex:     zips,
		JobBus:       bus,
		JobRegistry:  registry,
		JobWorker:    worker,
	}, nil
}
