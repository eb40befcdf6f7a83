package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/repos"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

// JobService is the submission interface for background work: Enqueue
// returns a job id immediately and the worker picks the row up out-of-band.
// Completion and errors are visible through GetByID and the job event bus,
// never through the enqueuing request.
type JobService interface {
	Enqueue(ctx context.Context, jobType string, payload map[string]any) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	log  *logger.Logger
	repo repos.JobRunRepo
}

func NewJobService(baseLog *logger.Logger, repo repos.JobRunRepo) JobService {
	return &jobService{
		log:  baseLog.With("service", "JobService"),
		repo: repo,
	}
}

func (s *jobService) Enqueue(ctx context.Context, jobType string, payload map[string]any) (uuid.UUID, error) {
	switch jobType {
	case types.JobTypeScrapeAll, types.JobTypeScrapeState, types.JobTypeAIProcess:
	default:
		return uuid.Nil, fmt.Errorf("unknown job type %q", jobType)
	}

	job := &types.JobRun{
		JobType: jobType,
		Status:  types.JobStatusQueued,
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode job payload: %w", err)
		}
		job.Payload = b
	}

	created, err := s.repo.Create(ctx, nil, job)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	s.log.Info("Job enqueued", "job_id", created.ID, "job_type", jobType)
	return created.ID, nil
}

func (s *jobService) GetByID(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	return s.repo.GetByID(ctx, nil, id)
}
