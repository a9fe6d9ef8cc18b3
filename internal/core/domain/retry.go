package domain

import "time"

// RetryPolicy is a bounded-attempt exponential backoff schedule.
// Delay is a pure function of the attempt number so retry behaviour
// is testable without real time.
type RetryPolicy struct {
	// MaxAttempts is the retry ceiling. Once an intent's attempt
	// counter reaches it, the intent is dead-lettered.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    2 * time.Minute,
	}
}

// Delay returns the backoff delay that precedes the given attempt.
// Attempt numbers start at 1 for the first retry. Attempts at or below
// zero return zero.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether the attempt counter has reached the ceiling.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
