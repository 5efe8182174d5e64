package stm

import (
	"golang.org/x/time/rate"
)

// limiters bundles the controller's two rate-limited paths: backend
// interrupts (a noisy editor could otherwise flood the backend with
// cancellation requests) and prefetch (how eagerly the command-source
// iterator is advanced ahead of the sentence being submitted, to keep
// parsing from racing arbitrarily far ahead of acceptance).
type limiters struct {
	interrupt *rate.Limiter
	prefetch  *rate.Limiter
}

func newLimiters(cfg Config) limiters {
	return limiters{
		interrupt: rate.NewLimiter(rate.Limit(cfg.InterruptRate), 1),
		prefetch:  rate.NewLimiter(rate.Limit(cfg.PrefetchRate), 1),
	}
}

// allowInterrupt reports whether an interrupt() call should be
// forwarded to the backend right now. A denied interrupt is not an
// error — the caller simply treats it as already in effect (the
// backend is assumed still unwinding from the previous one).
func (l limiters) allowInterrupt() bool {
	return l.interrupt.Allow()
}

// allowPrefetch reports whether the controller may advance the
// command-source iterator one step ahead of the sentence it is
// currently submitting.
func (l limiters) allowPrefetch() bool {
	return l.prefetch.Allow()
}
