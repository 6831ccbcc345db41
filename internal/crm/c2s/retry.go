package c2s

import (
	"math"
	"time"

	"github.com/example/c2s-leadsync/internal/config"
)

const (
	maxRetryDelay = 30 * time.Second
	maxJitterFrac = 0.2

	// callsPerLead counts the lead creation plus its two follow-up calls.
	callsPerLead = 3
)

// backoff returns the delay before retry number attempt (zero based):
// min(base*2^attempt, 30s) plus up to 20% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	delay := cappedDelay(c.retryDelay, attempt)
	if delay == 0 {
		return 0
	}

	c.randMu.Lock()
	jitter := time.Duration(c.rnd.Float64() * maxJitterFrac * float64(delay))
	c.randMu.Unlock()

	return delay + jitter
}

func cappedDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	raw := float64(base) * math.Pow(2, float64(attempt))
	if raw > float64(maxRetryDelay) {
		raw = float64(maxRetryDelay)
	}
	return time.Duration(raw)
}

// CallBudget is the longest CreateEnrichedLead can run with cfg: every
// request times out, waits a full rate limit interval and sleeps the
// largest jittered backoff before its retry.
func CallBudget(cfg config.C2SConfig) time.Duration {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := max(cfg.RetryAttempts, 1)
	base := time.Duration(cfg.RetryDelayMs) * time.Millisecond
	rate := time.Duration(max(cfg.RateLimitMs, 0)) * time.Millisecond

	var perCall time.Duration
	for attempt := 0; attempt < attempts; attempt++ {
		perCall += timeout + rate
		if attempt > 0 {
			delay := cappedDelay(base, attempt-1)
			perCall += delay + time.Duration(maxJitterFrac*float64(delay))
		}
	}
	return callsPerLead * perCall
}
