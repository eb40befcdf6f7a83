package services

import (
	"context"
	"fmt"
	"time"

	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/repos"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

const insufficientReviewsSummary = "insufficient reviews"

type LedgerEntry struct {
	PlaceID string `json:"place_id"`
	Reason  string `json:"reason"`
}

// ProcessingLedger partitions every candidate store of a run into exactly one
// of succeeded, failed, or skipped. This is the operator-facing record of
// what an enrichment run did.
type ProcessingLedger struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []LedgerEntry `json:"failed"`
	Skipped   []LedgerEntry `json:"skipped"`
	Total     int           `json:"total"`
	Duration  time.Duration `json:"duration"`
}

func (l *ProcessingLedger) SuccessRate() float64 {
	if l.Total == 0 {
		return 0
	}
	return float64(len(l.Succeeded)) / float64(l.Total)
}

type AIProcessorConfig struct {
	PageSize   int
	MinReviews int
}

func (c *AIProcessorConfig) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 25
	}
	if c.MinReviews <= 0 {
		c.MinReviews = 10
	}
}

type AIProcessor interface {
	ProcessUnsummarized(ctx context.Context, states []string) (*ProcessingLedger, error)
}

type aiProcessor struct {
	log       *logger.Logger
	stores    repos.StoreRepo
	generator SummaryGenerator
	cfg       AIProcessorConfig
}

func NewAIProcessor(baseLog *logger.Logger, stores repos.StoreRepo, generator SummaryGenerator, cfg AIProcessorConfig) AIProcessor {
	cfg.applyDefaults()
	return &aiProcessor{
		log:       baseLog.With("service", "AIProcessor"),
		stores:    stores,
		generator: generator,
		cfg:       cfg,
	}
}

// ProcessUnsummarized pages through stores without a summary and drives each
// page through the gate → summarize → batch-write loop. Stores are processed
// one at a time so the rate limiter's accounting stays exact. Only a failure
// that prevents producing a ledger at all (the read path breaking) is
// returned as an error; per-store failures are absorbed into the ledger.
func (p *aiProcessor) ProcessUnsummarized(ctx context.Context, states []string) (*ProcessingLedger, error) {
	started := time.Now()
	ledger := &ProcessingLedger{
		Succeeded: []string{},
		Failed:    []LedgerEntry{},
		Skipped:   []LedgerEntry{},
	}

	offset := 0
	for {
		page, err := p.fetchPage(ctx, states, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch unsummarized stores: %w", err)
		}
		if len(page) == 0 {
			break
		}

		leftBehind := p.processPage(ctx, page, ledger)
		// Rows written this page leave the unsummarized set; only the ones
		// left behind (failed) still match the filter, so the offset skips
		// exactly those.
		offset += leftBehind

		if len(page) < p.cfg.PageSize {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	ledger.Duration = time.Since(started)
	p.logRunSummary(ledger)
	return ledger, nil
}

func (p *aiProcessor) fetchPage(ctx context.Context, states []string, offset int) ([]*types.Store, error) {
	filter := repos.StoreFilter{
		Mode:   repos.StoreModeUnsummarized,
		Limit:  p.cfg.PageSize,
		Offset: offset,
	}
	if len(states) > 0 {
		filter.Mode = repos.StoreModeByState
		filter.States = states
		filter.OnlyUnsummarized = true
	}
	return p.stores.GetStores(ctx, nil, filter)
}

// processPage runs the per-store loop and flushes the page's pending writes.
// It returns how many of the page's stores remain unsummarized afterwards.
func (p *aiProcessor) processPage(ctx context.Context, page []*types.Store, ledger *ProcessingLedger) int {
	ledger.Total += len(page)

	pending := make([]repos.StoreSummary, 0, len(page))
	pendingSucceeded := map[string]bool{}
	pendingSkipped := map[string]string{}

	for _, store := range page {
		if store.ReviewsCount < p.cfg.MinReviews {
			reason := fmt.Sprintf("insufficient reviews (%d/%d)", store.ReviewsCount, p.cfg.MinReviews)
			pendingSkipped[store.PlaceID] = reason
			// The placeholder is written so the store leaves the candidate
			// set until its evidence changes, visibly distinct from a real
			// summary.
			pending = append(pending, repos.StoreSummary{PlaceID: store.PlaceID, Summary: insufficientReviewsSummary})
			continue
		}

		result, err := p.generator.Summarize(ctx, store)
		if err != nil {
			ledger.Failed = append(ledger.Failed, LedgerEntry{PlaceID: store.PlaceID, Reason: err.Error()})
			continue
		}
		pendingSucceeded[store.PlaceID] = true
		pending = append(pending, repos.StoreSummary{PlaceID: store.PlaceID, Summary: result.Summary})
	}

	writeFailed := map[string]string{}
	if len(pending) > 0 {
		writeResult, err := p.stores.UpsertSummaries(ctx, nil, pending)
		if err != nil {
			for _, s := range pending {
				writeFailed[s.PlaceID] = err.Error()
			}
		} else {
			for _, f := range writeResult.Failed {
				writeFailed[f.PlaceID] = f.Error
			}
		}
	}

	leftBehind := 0
	for _, store := range page {
		if reason, skipped := pendingSkipped[store.PlaceID]; skipped {
			ledger.Skipped = append(ledger.Skipped, LedgerEntry{PlaceID: store.PlaceID, Reason: reason})
			if _, failed := writeFailed[store.PlaceID]; failed {
				leftBehind++
			}
			continue
		}
		if !pendingSucceeded[store.PlaceID] {
			// already counted in ledger.Failed during the per-store loop
			leftBehind++
			continue
		}
		if writeErr, failed := writeFailed[store.PlaceID]; failed {
			ledger.Failed = append(ledger.Failed, LedgerEntry{PlaceID: store.PlaceID, Reason: "summary write failed: " + writeErr})
			leftBehind++
			continue
		}
		ledger.Succeeded = append(ledger.Succeeded, store.PlaceID)
	}
	return leftBehind
}

func (p *aiProcessor) logRunSummary(ledger *ProcessingLedger) {
	p.log.Info("AI processing run finished",
		"total", ledger.Total,
		"succeeded", len(ledger.Succeeded),
		"failed", len(ledger.Failed),
		"skipped", len(ledger.Skipped),
		"success_rate", fmt.Sprintf("%.2f", ledger.SuccessRate()),
		"duration", ledger.Duration.String(),
	)
	for _, f := range ledger.Failed {
		p.log.Warn("Store failed enrichment", "place_id", f.PlaceID, "reason", f.Reason)
	}
	for _, s := range ledger.Skipped {
		p.log.Debug("Store skipped", "place_id", s.PlaceID, "reason", s.Reason)
	}
}
