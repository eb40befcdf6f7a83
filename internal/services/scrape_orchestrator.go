package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/repos"
	"github.com/voltbase/scooterdex-backend/internal/scrapeconfig"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

type ScrapeOrchestratorConfig struct {
	Concurrency     int
	InterBatchDelay time.Duration
}

func (c *ScrapeOrchestratorConfig) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 25
	}
	if c.InterBatchDelay <= 0 {
		c.InterBatchDelay = 5 * time.Second
	}
}

// JurisdictionOutcome tracks one jurisdiction's scrape and write results
// independently: a failed write does not take the scrape's success with it,
// because the scrape evidence is still worth keeping.
type JurisdictionOutcome struct {
	State       string              `json:"state"`
	City        string              `json:"city,omitempty"`
	ScrapeOK    bool                `json:"scrape_ok"`
	ScrapeError string              `json:"scrape_error,omitempty"`
	StoreCount  int                 `json:"store_count"`
	RunID       uuid.UUID           `json:"run_id,omitempty"`
	WriteResult *repos.UpsertResult `json:"write_result,omitempty"`
	WriteError  string              `json:"write_error,omitempty"`
}

type ScrapeSummary struct {
	Outcomes    []JurisdictionOutcome `json:"outcomes"`
	Succeeded   int                   `json:"succeeded"`
	Failed      int                   `json:"failed"`
	TotalStores int                   `json:"total_stores"`
	Duration    time.Duration         `json:"duration"`
}

type ScrapeOrchestrator interface {
	RunAll(ctx context.Context, plan *scrapeconfig.Plan) (*ScrapeSummary, error)
	RunJurisdiction(ctx context.Context, queries []string, state, city string, maxResults int) JurisdictionOutcome
}

type scrapeOrchestrator struct {
	log     *logger.Logger
	scraper ListingScraper
	stores  repos.StoreRepo
	runs    repos.ScrapeRunRepo
	cfg     ScrapeOrchestratorConfig
	sleep   func(context.Context, time.Duration) error
}

func NewScrapeOrchestrator(baseLog *logger.Logger, scraper ListingScraper, stores repos.StoreRepo, runs repos.ScrapeRunRepo, cfg ScrapeOrchestratorConfig) ScrapeOrchestrator {
	cfg.applyDefaults()
	return &scrapeOrchestrator{
		log:     baseLog.With("service", "ScrapeOrchestrator"),
		scraper: scraper,
		stores:  stores,
		runs:    runs,
		cfg:     cfg,
		sleep:   sleepCtx,
	}
}

// RunAll fans the plan's jurisdictions out in bounded batches. The join is
// all-settled: every branch's outcome is collected and no branch's failure
// cancels a sibling.
func (o *scrapeOrchestrator) RunAll(ctx context.Context, plan *scrapeconfig.Plan) (*ScrapeSummary, error) {
	started := time.Now()
	jurisdictions := plan.Jurisdictions
	outcomes := make([]JurisdictionOutcome, len(jurisdictions))

	for batchStart := 0; batchStart < len(jurisdictions); batchStart += o.cfg.Concurrency {
		batchEnd := batchStart + o.cfg.Concurrency
		if batchEnd > len(jurisdictions) {
			batchEnd = len(jurisdictions)
		}

		g := new(errgroup.Group)
		for i := batchStart; i < batchEnd; i++ {
			i := i
			j := jurisdictions[i]
			g.Go(func() error {
				outcomes[i] = o.RunJurisdiction(ctx, plan.Queries, j.State, j.City, plan.MaxPerQuery)
				return nil
			})
		}
		_ = g.Wait()

		if batchEnd < len(jurisdictions) {
			if err := o.sleep(ctx, o.cfg.InterBatchDelay); err != nil {
				// Remaining jurisdictions are reported as not attempted.
				for i := batchEnd; i < len(jurisdictions); i++ {
					outcomes[i] = JurisdictionOutcome{
						State:       jurisdictions[i].State,
						City:        jurisdictions[i].City,
						ScrapeError: "run canceled before jurisdiction was attempted",
					}
				}
				break
			}
		}
	}

	summary := &ScrapeSummary{Outcomes: outcomes, Duration: time.Since(started)}
	for _, out := range outcomes {
		if out.ScrapeOK {
			summary.Succeeded++
			summary.TotalStores += out.StoreCount
		} else {
			summary.Failed++
		}
	}
	o.log.Info("Scrape run finished",
		"jurisdictions", len(jurisdictions),
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"total_stores", summary.TotalStores,
		"duration", summary.Duration.String(),
	)
	return summary, nil
}

// RunJurisdiction scrapes one (state, city) scope, writes the stores, and
// always leaves one scrape_run row behind, whatever happened.
func (o *scrapeOrchestrator) RunJurisdiction(ctx context.Context, queries []string, state, city string, maxResults int) JurisdictionOutcome {
	outcome := JurisdictionOutcome{State: state, City: city}
	jlog := o.log.With("state", state, "city", city)

	result, err := o.scraper.Scrape(ctx, queries, state, city, maxResults)
	if err != nil {
		outcome.ScrapeError = err.Error()
		jlog.Error("Jurisdiction scrape failed", "error", err)
		o.persistRun(ctx, jlog, &types.ScrapeRun{
			State:  state,
			City:   city,
			Status: "FAILED",
			Error:  err.Error(),
		}, &outcome)
		return outcome
	}

	outcome.ScrapeOK = true
	outcome.StoreCount = len(result.Stores)

	writeResult, writeErr := o.stores.Upsert(ctx, nil, result.Stores)
	if writeErr != nil {
		outcome.WriteError = writeErr.Error()
		jlog.Error("Store write failed after successful scrape", "error", writeErr)
	} else {
		outcome.WriteResult = writeResult
	}

	draft := result.RunDraft
	if draft == nil {
		draft = &types.ScrapeRun{State: state, City: city, Status: "UNKNOWN"}
	}
	if writeErr != nil {
		if b, mErr := json.Marshal(map[string]string{"write_error": writeErr.Error()}); mErr == nil {
			draft.StoreResults = b
		}
	} else if b, mErr := json.Marshal(writeResult); mErr == nil {
		draft.StoreResults = b
	}
	o.persistRun(ctx, jlog, draft, &outcome)
	return outcome
}

func (o *scrapeOrchestrator) persistRun(ctx context.Context, jlog *logger.Logger, run *types.ScrapeRun, outcome *JurisdictionOutcome) {
	created, err := o.runs.Create(ctx, nil, run)
	if err != nil {
		jlog.Error("Scrape run record write failed", "error", err)
		return
	}
	if created != nil {
		outcome.RunID = created.ID
	}
}
