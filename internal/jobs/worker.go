package jobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	redisclient "github.com/voltbase/scooterdex-backend/internal/clients/redis"
	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/repos"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

type WorkerConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

func (c *WorkerConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 1 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 10 * time.Minute
	}
}

// Worker claims runnable jobs off the job_run table and dispatches them to
// registered handlers. One claim at a time; scrape and enrichment runs are
// long, so the worker is intentionally serial.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *Registry
	bus      redisclient.JobEventBus
	cfg      WorkerConfig
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *Registry, bus redisclient.JobEventBus, cfg WorkerConfig) *Worker {
	cfg.applyDefaults()
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		bus:      bus,
		cfg:      cfg,
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job, err := w.repo.ClaimNextRunnable(ctx, w.db, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "error", err)
					continue
				}
				if job == nil {
					continue
				}
				w.dispatch(ctx, job)
			}
		}
	}()
}

func (w *Worker) dispatch(ctx context.Context, job *types.JobRun) {
	jc := NewContext(ctx, w.db, job, w.repo, w.bus, w.log)
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	hb := w.startHeartbeat(ctx, job)
	defer hb()

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
				jc.Fail("panic", &panicError{val: r})
			}
		}()
		h.Run(jc)
	}()

	// A handler that returns without terminating its job would leave the row
	// running until the stale-heartbeat requeue picked it up.
	if !jc.Terminated() {
		w.log.Warn("Handler returned without terminating job", "job_id", job.ID, "job_type", job.JobType)
		jc.Fail("dispatch", errNoTerminalStatus)
	}
}

var errNoTerminalStatus = errors.New("handler returned without completing or failing the job")

func (w *Worker) startHeartbeat(ctx context.Context, job *types.JobRun) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := w.repo.Heartbeat(hbCtx, w.db, job.ID); err != nil {
					w.log.Debug("Heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	return cancel
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}
