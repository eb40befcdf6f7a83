package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

func newTestWorker(t *testing.T, repo *stubJobRepo, registry *Registry) *Worker {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewWorker(nil, log, repo, registry, nil, WorkerConfig{})
}

func TestDispatchFailsJobWhenHandlerNeverTerminates(t *testing.T) {
	repo := &stubJobRepo{}
	registry := NewRegistry()
	registry.Register(types.JobTypeScrapeAll, HandlerFunc(func(jc *Context) {}))
	w := newTestWorker(t, repo, registry)

	job := &types.JobRun{ID: uuid.New(), JobType: types.JobTypeScrapeAll, Status: types.JobStatusRunning}
	w.dispatch(context.Background(), job)

	if lastStatus(t, repo) != types.JobStatusFailed {
		t.Fatalf("expected failed status, got updates %+v", repo.updates)
	}
	last := repo.updates[len(repo.updates)-1]
	if last["stage"] != "dispatch" {
		t.Fatalf("stage: want=dispatch got=%v", last["stage"])
	}
}

func TestDispatchLeavesCompletedJobAlone(t *testing.T) {
	repo := &stubJobRepo{}
	registry := NewRegistry()
	registry.Register(types.JobTypeScrapeAll, HandlerFunc(func(jc *Context) {
		jc.Complete(map[string]int{"scraped": 1})
	}))
	w := newTestWorker(t, repo, registry)

	job := &types.JobRun{ID: uuid.New(), JobType: types.JobTypeScrapeAll, Status: types.JobStatusRunning}
	w.dispatch(context.Background(), job)

	if got := lastStatus(t, repo); got != types.JobStatusDone {
		t.Fatalf("status: want=%q got=%q", types.JobStatusDone, got)
	}
}

func TestDispatchFailsJobOnHandlerPanic(t *testing.T) {
	repo := &stubJobRepo{}
	registry := NewRegistry()
	registry.Register(types.JobTypeScrapeAll, HandlerFunc(func(jc *Context) {
		panic("boom")
	}))
	w := newTestWorker(t, repo, registry)

	job := &types.JobRun{ID: uuid.New(), JobType: types.JobTypeScrapeAll, Status: types.JobStatusRunning}
	w.dispatch(context.Background(), job)

	if got := lastStatus(t, repo); got != types.JobStatusFailed {
		t.Fatalf("status: want=%q got=%q", types.JobStatusFailed, got)
	}
}
