package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	redisclient "github.com/voltbase/scooterdex-backend/internal/clients/redis"
	"github.com/voltbase/scooterdex-backend/internal/logger"
	"github.com/voltbase/scooterdex-backend/internal/repos"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

// Context is the execution handle for one claimed job run: the job row, the
// only sanctioned ways to report progress or terminate, and the optional
// event bus. Handlers never touch the job_run table directly.
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	Bus     redisclient.JobEventBus
	Log     *logger.Logger
	payload map[string]any
	// set once Complete or Fail has run; the worker fails jobs whose
	// handler returns without reaching either.
	terminal bool
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, bus redisclient.JobEventBus, log *logger.Logger) *Context {
	c := &Context{
		Ctx:  ctx,
		DB:   db,
		Job:  job,
		Repo: repo,
		Bus:  bus,
		Log:  log,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload never returns nil; handlers validate their own required fields.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadString(key string) (string, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (c *Context) PayloadStrings(key string) []string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (c *Context) SetStage(stage string) {
	c.update(map[string]interface{}{"stage": stage})
	c.publish(types.JobStatusRunning, stage, "")
}

// Complete marks the job done and stores its result document.
func (c *Context) Complete(result any) {
	updates := map[string]interface{}{"status": types.JobStatusDone}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			updates["result"] = b
		}
	}
	c.update(updates)
	c.publish(types.JobStatusDone, "", "")
	c.terminal = true
}

// Fail marks the job failed at the given stage. A later claim may retry it
// while attempts remain.
func (c *Context) Fail(stage string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	now := time.Now()
	c.update(map[string]interface{}{
		"status":        types.JobStatusFailed,
		"stage":         stage,
		"error":         msg,
		"last_error_at": now,
	})
	c.publish(types.JobStatusFailed, stage, msg)
	c.terminal = true
}

// Terminated reports whether the job has been completed or failed.
func (c *Context) Terminated() bool { return c.terminal }

func (c *Context) update(updates map[string]interface{}) {
	if c.Job == nil {
		return
	}
	if err := c.Repo.UpdateFields(c.Ctx, c.DB, c.Job.ID, updates); err != nil {
		c.Log.Warn("Job update failed", "job_id", c.Job.ID, "error", err)
	}
}

func (c *Context) publish(status, stage, errMsg string) {
	if c.Bus == nil || c.Job == nil {
		return
	}
	ev := redisclient.JobEvent{
		JobID:   c.Job.ID.String(),
		JobType: c.Job.JobType,
		Status:  status,
		Stage:   stage,
		Error:   errMsg,
	}
	if err := c.Bus.Publish(c.Ctx, ev); err != nil {
		c.Log.Debug("Job event publish failed", "job_id", c.Job.ID, "error", err)
	}
}

type panicError struct{ val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.val) }
