package service

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// dispatchLimiter enforces a minimum interval between successive upstream
// dispatches, process-wide. It is a global throttle, not a token bucket: the
// burst of 1 means at most one dispatch per interval even after idle periods.
// It applies once per forwarding call, not once per retry attempt.
type dispatchLimiter struct {
	limiter  *rate.Limiter
	counters *Counters
	delay    time.Duration
}

func newDispatchLimiter(delay time.Duration, counters *Counters) *dispatchLimiter {
	l := &dispatchLimiter{
		counters: counters,
		delay:    delay,
	}
	if delay > 0 {
		l.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return l
}

// Wait blocks until the inter-dispatch interval has elapsed since the last
// recorded dispatch, then records the new dispatch timestamp.
func (l *dispatchLimiter) Wait(ctx context.Context) error {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	l.counters.RecordDispatch(time.Now())
	return nil
}
