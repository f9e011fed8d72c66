package pipeline

import (
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
)

// RetryPolicy bounds the character wave. Backoff builds a fresh delay curve; the
// N-th value is the wait after attempt N.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func() retry.Backoff
}

// NewRetryPolicy derives the policy from pipeline config. A non-positive delay
// disables waiting between attempts.
func NewRetryPolicy(cfg config.PipelineConfig) RetryPolicy {
	attempts := cfg.CharacterMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	if cfg.RetryDelay <= 0 {
		return RetryPolicy{MaxAttempts: attempts, Backoff: noDelay}
	}
	delay, maxDelay, exponential := cfg.RetryDelay, cfg.RetryMaxDelay, cfg.ExponentialBackoff
	return RetryPolicy{
		MaxAttempts: attempts,
		Backoff: func() retry.Backoff {
			if !exponential {
				return retry.NewConstant(delay)
			}
			b := retry.NewExponential(delay)
			if maxDelay > 0 {
				b = retry.WithCappedDuration(maxDelay, b)
			}
			return b
		},
	}
}

// ImmediateRetry retries without waiting.
func ImmediateRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Backoff: noDelay}
}

func noDelay() retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait that follows the given 1-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff == nil || attempt <= 0 {
		return 0
	}
	b := p.Backoff()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			return 0
		}
		d = next
	}
	return d
}
