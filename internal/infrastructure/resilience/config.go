package resilience

import "time"

// halfOpenTrialCalls is how many calls a half-open breaker lets through
// before deciding whether the backend recovered.
const halfOpenTrialCalls = 1

// Config tunes retries and circuit breaking for calls to the similarity
// index, the generative service and the reply queue.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// CallDeadline is the end-to-end budget of one retrieval. When set, the
	// backoff cap shrinks so the waits of a full retry cycle take at most
	// half of it.
	CallDeadline time.Duration

	BreakerEnabled      bool
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:      true,
		BreakerMinRequests:  10,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  30 * time.Second,
	}
}

// WorstCaseBackoff is the total time a call that fails every attempt spends
// waiting between attempts.
func (c Config) WorstCaseBackoff() time.Duration {
	var total time.Duration
	backoff := c.RetryInitialBackoff
	for attempt := 1; attempt < c.RetryMaxAttempts; attempt++ {
		total += min(backoff, c.RetryMaxBackoff)
		backoff = min(time.Duration(float64(backoff)*c.RetryMultiplier), c.RetryMaxBackoff)
	}
	return total
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.CallDeadline > 0 && out.RetryMaxAttempts > 1 {
		limit := out.CallDeadline / time.Duration(2*(out.RetryMaxAttempts-1))
		out.RetryMaxBackoff = min(out.RetryMaxBackoff, limit)
		out.RetryInitialBackoff = min(out.RetryInitialBackoff, out.RetryMaxBackoff)
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}

	return out
}
