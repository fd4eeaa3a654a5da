package session

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Retry paces one loop of repeated attempts: client dials, discovery
// datagrams, or a socket read that keeps failing. It counts consecutive
// failures until Reset. Not safe for concurrent use.
type Retry struct {
	cfg      BackoffConfig
	rng      *rand.Rand
	failures int
}

func NewRetry(cfg BackoffConfig) *Retry {
	return newRetry(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func newRetry(cfg BackoffConfig, rng *rand.Rand) *Retry {
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	return &Retry{cfg: cfg, rng: rng}
}

// Failures is the count recorded since the last Reset.
func (r *Retry) Failures() int {
	return r.failures
}

func (r *Retry) Reset() {
	r.failures = 0
}

// Delay is the pause after n consecutive failures: InitialDelay grown by
// Multiplier per failure, capped at MaxDelay, then spread over [0.5, 1.5)
// when Jitter is set.
func (r *Retry) Delay(n int) time.Duration {
	if r.cfg.InitialDelay <= 0 {
		return 0
	}
	if n < 1 {
		n = 1
	}
	delay := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(n-1))
	if r.cfg.MaxDelay > 0 && delay > float64(r.cfg.MaxDelay) {
		delay = float64(r.cfg.MaxDelay)
	}
	if r.cfg.Jitter && r.rng != nil {
		delay *= 0.5 + r.rng.Float64()
	}
	return time.Duration(delay)
}

// Wait records a failure and sleeps for its delay. It returns ctx.Err() if
// ctx ends first.
func (r *Retry) Wait(ctx context.Context) error {
	r.failures++
	timer := time.NewTimer(r.Delay(r.failures))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
