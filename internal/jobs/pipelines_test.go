package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/scrapeconfig"
	"github.com/voltbase/scooterdex-backend/internal/services"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

type stubJobRepo struct {
	updates []map[string]interface{}
	err     error
}

func (s *stubJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.JobRun) (*types.JobRun, error) {
	return job, nil
}

func (s *stubJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

func (s *stubJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.JobRun, error) {
	return nil, nil
}

func (s *stubJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, updates)
	return nil
}

func (s *stubJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return nil
}

type stubOrchestrator struct {
	runAllErr   error
	outcome     services.JurisdictionOutcome
	calledState string
	calledCity  string
}

func (s *stubOrchestrator) RunAll(ctx context.Context, plan *scrapeconfig.Plan) (*services.ScrapeSummary, error) {
	if s.runAllErr != nil {
		return nil, s.runAllErr
	}
	return &services.ScrapeSummary{Succeeded: len(plan.Jurisdictions)}, nil
}

func (s *stubOrchestrator) RunJurisdiction(ctx context.Context, queries []string, state, city string, maxResults int) services.JurisdictionOutcome {
	s.calledState = state
	s.calledCity = city
	out := s.outcome
	out.State = state
	out.City = city
	return out
}

type stubProcessor struct {
	ledger *services.ProcessingLedger
	err    error
	states []string
}

func (s *stubProcessor) ProcessUnsummarized(ctx context.Context, states []string) (*services.ProcessingLedger, error) {
	s.states = states
	if s.err != nil {
		return nil, s.err
	}
	return s.ledger, nil
}

func newJobContext(t *testing.T, repo *stubJobRepo, jobType string, payload string) *Context {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	job := &types.JobRun{ID: uuid.New(), JobType: jobType, Status: types.JobStatusQueued}
	if payload != "" {
		job.Payload = []byte(payload)
	}
	return NewContext(context.Background(), nil, job, repo, nil, log)
}

func lastStatus(t *testing.T, repo *stubJobRepo) string {
	t.Helper()
	if len(repo.updates) == 0 {
		t.Fatal("no job updates recorded")
	}
	status, _ := repo.updates[len(repo.updates)-1]["status"].(string)
	return status
}

func TestScrapeStateHandlerRequiresState(t *testing.T) {
	repo := &stubJobRepo{}
	orch := &stubOrchestrator{}
	h := NewScrapeStateHandler(orch, &scrapeconfig.Plan{Queries: []string{"q"}, MaxPerQuery: 10})

	h.Run(newJobContext(t, repo, types.JobTypeScrapeState, `{}`))
	if lastStatus(t, repo) != types.JobStatusFailed {
		t.Fatalf("expected failed status, got updates %+v", repo.updates)
	}
	if orch.calledState != "" {
		t.Fatal("orchestrator must not run without a state")
	}
}

func TestScrapeStateHandlerRunsJurisdiction(t *testing.T) {
	repo := &stubJobRepo{}
	orch := &stubOrchestrator{outcome: services.JurisdictionOutcome{ScrapeOK: true, StoreCount: 3}}
	h := NewScrapeStateHandler(orch, &scrapeconfig.Plan{Queries: []string{"q"}, MaxPerQuery: 10})

	h.Run(newJobContext(t, repo, types.JobTypeScrapeState, `{"state": "TX", "city": "Austin"}`))
	if orch.calledState != "TX" || orch.calledCity != "Austin" {
		t.Fatalf("scope: state=%q city=%q", orch.calledState, orch.calledCity)
	}
	if lastStatus(t, repo) != types.JobStatusDone {
		t.Fatalf("expected done status, got updates %+v", repo.updates)
	}
}

func TestScrapeStateHandlerFailsOnScrapeError(t *testing.T) {
	repo := &stubJobRepo{}
	orch := &stubOrchestrator{outcome: services.JurisdictionOutcome{ScrapeError: "actor died"}}
	h := NewScrapeStateHandler(orch, &scrapeconfig.Plan{Queries: []string{"q"}, MaxPerQuery: 10})

	h.Run(newJobContext(t, repo, types.JobTypeScrapeState, `{"state": "TX"}`))
	if lastStatus(t, repo) != types.JobStatusFailed {
		t.Fatalf("expected failed status, got updates %+v", repo.updates)
	}
}

func TestScrapeAllHandlerCompletes(t *testing.T) {
	repo := &stubJobRepo{}
	h := NewScrapeAllHandler(&stubOrchestrator{}, &scrapeconfig.Plan{
		Queries:       []string{"q"},
		MaxPerQuery:   10,
		Jurisdictions: []scrapeconfig.Jurisdiction{{State: "TX"}, {State: "CA"}},
	})

	h.Run(newJobContext(t, repo, types.JobTypeScrapeAll, ""))
	if lastStatus(t, repo) != types.JobStatusDone {
		t.Fatalf("expected done status, got updates %+v", repo.updates)
	}
}

func TestAIProcessHandlerPassesStates(t *testing.T) {
	repo := &stubJobRepo{}
	proc := &stubProcessor{ledger: &services.ProcessingLedger{Total: 2, Succeeded: []string{"p1", "p2"}}}
	h := NewAIProcessHandler(proc)

	h.Run(newJobContext(t, repo, types.JobTypeAIProcess, `{"states": ["TX", "NV"]}`))
	if len(proc.states) != 2 || proc.states[0] != "TX" {
		t.Fatalf("states: %+v", proc.states)
	}
	if lastStatus(t, repo) != types.JobStatusDone {
		t.Fatalf("expected done status, got updates %+v", repo.updates)
	}
}

func TestAIProcessHandlerFailsOnProcessorError(t *testing.T) {
	repo := &stubJobRepo{}
	h := NewAIProcessHandler(&stubProcessor{err: errors.New("db gone")})

	h.Run(newJobContext(t, repo, types.JobTypeAIProcess, ""))
	if lastStatus(t, repo) != types.JobStatusFailed {
		t.Fatalf("expected failed status, got updates %+v", repo.updates)
	}
}

func TestContextPayloadHelpers(t *testing.T) {
	repo := &stubJobRepo{}
	jc := newJobContext(t, repo, types.JobTypeScrapeState, `{"state": "TX", "states": ["TX", 7, "NV"]}`)

	state, ok := jc.PayloadString("state")
	if !ok || state != "TX" {
		t.Fatalf("PayloadString: %q %v", state, ok)
	}
	if _, ok := jc.PayloadString("missing"); ok {
		t.Fatal("missing key must not be found")
	}
	states := jc.PayloadStrings("states")
	if len(states) != 2 || states[0] != "TX" || states[1] != "NV" {
		t.Fatalf("PayloadStrings: %+v", states)
	}
}
