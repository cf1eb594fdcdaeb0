package enrich

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultBackoff is the pause after a transient service failure.
const DefaultBackoff = 30 * time.Second

// RetryPolicy controls how transient failures of a unit are retried.
type RetryPolicy struct {
	// Backoff returns the pause before retry number attempt (1-based).
	Backoff func(attempt int) time.Duration
	// MaxWait caps any single pause. Zero means no cap.
	MaxWait time.Duration
	// MaxAttempts bounds the calls made for one unit. Zero retries forever.
	MaxAttempts int
	// OnPause is called before each pause.
	OnPause func(attempt int, wait time.Duration, err error)
}

// FixedBackoff returns a backoff function that always waits d.
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// DefaultRetryPolicy retries forever with a fixed 30s pause.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: FixedBackoff(DefaultBackoff)}
}

func (p RetryPolicy) wait(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	d := p.Backoff(attempt)
	if p.MaxWait > 0 && d > p.MaxWait {
		d = p.MaxWait
	}
	if d < 0 {
		d = 0
	}
	return d
}

// exhausted reports whether attempt calls used up the budget.
func (p RetryPolicy) exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

func pause(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
