package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/voltbase/scooterdex-backend/internal/logger"
)

// JobEvent is one lifecycle transition of a background job, published so
// other processes (or an operator tailing the channel) can watch runs without
// polling the job table.
type JobEvent struct {
	JobID   string    `json:"job_id"`
	JobType string    `json:"job_type"`
	Status  string    `json:"status"`
	Stage   string    `json:"stage,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

type JobEventBus interface {
	Publish(ctx context.Context, ev JobEvent) error
	Close() error
}

type jobEventBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewJobEventBus(log *logger.Logger) (JobEventBus, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_JOB_CHANNEL"))
	if ch == "" {
		ch = "jobs"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &jobEventBus{
		log:     log.With("client", "RedisJobEventBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *jobEventBus) Publish(ctx context.Context, ev JobEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.log.Warn("Job event publish failed", "job_id", ev.JobID, "error", err)
		return err
	}
	return nil
}

func (b *jobEventBus) Close() error {
	return b.rdb.Close()
}
