package services

import (
	"context"
	"sync"
	"time"

	"github.com/voltbase/scooterdex-backend/internal/logger"
)

type RateLimitConfig struct {
	RequestsPerWindow int
	TokensPerWindow   int
	Window            time.Duration
}

func (c *RateLimitConfig) applyDefaults() {
	// Ceilings sit below the provider's true limits so a burst never trips
	// the provider-side limiter.
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = 45
	}
	if c.TokensPerWindow <= 0 {
		c.TokensPerWindow = 35000
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
}

// RateLimiter tracks a rolling window of request and token counts and makes
// the caller wait out the window before a call that would exceed either
// ceiling. Safe for concurrent callers; the window state is guarded by a
// single mutex so accounting stays exact.
type RateLimiter struct {
	log *logger.Logger
	cfg RateLimitConfig

	mu          sync.Mutex
	requests    int
	tokens      int
	windowStart time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewRateLimiter(baseLog *logger.Logger, cfg RateLimitConfig) *RateLimiter {
	cfg.applyDefaults()
	return &RateLimiter{
		log:   baseLog.With("component", "RateLimiter"),
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Reserve accounts for one upcoming call of the given estimated token cost.
// It returns immediately while the window has headroom, otherwise it sleeps
// until the current window elapses, resets the counters, and proceeds.
func (rl *RateLimiter) Reserve(ctx context.Context, estimatedTokens int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if rl.windowStart.IsZero() || now.Sub(rl.windowStart) >= rl.cfg.Window {
		rl.resetLocked(now)
	}

	if rl.requests+1 > rl.cfg.RequestsPerWindow || rl.tokens+estimatedTokens > rl.cfg.TokensPerWindow {
		wait := rl.cfg.Window - now.Sub(rl.windowStart)
		if wait > 0 {
			rl.log.Info("Rate limit window exhausted, waiting",
				"requests", rl.requests,
				"request_ceiling", rl.cfg.RequestsPerWindow,
				"window_tokens", rl.tokens,
				"token_ceiling", rl.cfg.TokensPerWindow,
				"wait", wait.String(),
			)
			if err := rl.sleep(ctx, wait); err != nil {
				return err
			}
		}
		rl.resetLocked(rl.now())
	}

	rl.requests++
	rl.tokens += estimatedTokens
	return nil
}

func (rl *RateLimiter) resetLocked(now time.Time) {
	rl.requests = 0
	rl.tokens = 0
	rl.windowStart = now
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
