package jobs

import (
	"fmt"

	"github.com/voltbase/scooterdex-backend/internal/scrapeconfig"
	"github.com/voltbase/scooterdex-backend/internal/services"
)

// NewScrapeAllHandler runs the full scrape plan: every jurisdiction, fanned
// out by the orchestrator.
func NewScrapeAllHandler(orchestrator services.ScrapeOrchestrator, plan *scrapeconfig.Plan) Handler {
	return HandlerFunc(func(jc *Context) {
		jc.SetStage("scrape_all")
		summary, err := orchestrator.RunAll(jc.Ctx, plan)
		if err != nil {
			jc.Fail("scrape_all", err)
			return
		}
		jc.Complete(summary)
	})
}

// NewScrapeStateHandler scrapes one jurisdiction named in the job payload.
func NewScrapeStateHandler(orchestrator services.ScrapeOrchestrator, plan *scrapeconfig.Plan) Handler {
	return HandlerFunc(func(jc *Context) {
		state, ok := jc.PayloadString("state")
		if !ok || state == "" {
			jc.Fail("validate", fmt.Errorf("payload field 'state' required"))
			return
		}
		city, _ := jc.PayloadString("city")
		jc.SetStage("scrape_state")
		outcome := orchestrator.RunJurisdiction(jc.Ctx, plan.Queries, state, city, plan.MaxPerQuery)
		if !outcome.ScrapeOK {
			jc.Fail("scrape_state", fmt.Errorf("%s", outcome.ScrapeError))
			return
		}
		jc.Complete(outcome)
	})
}

// NewAIProcessHandler runs enrichment over unsummarized stores, optionally
// restricted to the states in the payload.
func NewAIProcessHandler(processor services.AIProcessor) Handler {
	return HandlerFunc(func(jc *Context) {
		states := jc.PayloadStrings("states")
		jc.SetStage("ai_process")
		ledger, err := processor.ProcessUnsummarized(jc.Ctx, states)
		if err != nil {
			jc.Fail("ai_process", err)
			return
		}
		jc.Complete(ledger)
	})
}
