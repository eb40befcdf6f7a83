package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltbase/scooterdex-backend/internal/types"
)

type stubJobRunRepo struct {
	created []*types.JobRun
	byID    map[uuid.UUID]*types.JobRun
}

func (s *stubJobRunRepo) Create(ctx context.Context, tx *gorm.DB, job *types.JobRun) (*types.JobRun, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	s.created = append(s.created, job)
	return job, nil
}

func (s *stubJobRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JobRun, error) {
	return s.byID[id], nil
}

func (s *stubJobRunRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.JobRun, error) {
	return nil, nil
}

func (s *stubJobRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (s *stubJobRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return nil
}

func TestEnqueueReturnsJobIDImmediately(t *testing.T) {
	repo := &stubJobRunRepo{}
	svc := NewJobService(testLog(t), repo)

	id, err := svc.Enqueue(context.Background(), types.JobTypeScrapeState, map[string]any{"state": "TX"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected a job id")
	}
	if len(repo.created) != 1 {
		t.Fatalf("created jobs: want=1 got=%d", len(repo.created))
	}
	job := repo.created[0]
	if job.Status != types.JobStatusQueued {
		t.Fatalf("status: want=%q got=%q", types.JobStatusQueued, job.Status)
	}
	if len(job.Payload) == 0 {
		t.Fatal("expected payload persisted")
	}
}

func TestEnqueueRejectsUnknownJobType(t *testing.T) {
	svc := NewJobService(testLog(t), &stubJobRunRepo{})
	if _, err := svc.Enqueue(context.Background(), "make_coffee", nil); err == nil {
		t.Fatal("expected error for unknown job type")
	}
}

func TestEnqueueOmitsPayloadWhenNil(t *testing.T) {
	repo := &stubJobRunRepo{}
	svc := NewJobService(testLog(t), repo)

	if _, err := svc.Enqueue(context.Background(), types.JobTypeScrapeAll, nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(repo.created[0].Payload) != 0 {
		t.Fatalf("expected empty payload, got %s", repo.created[0].Payload)
	}
}
