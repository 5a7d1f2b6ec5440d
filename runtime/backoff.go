package runtime

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays: min(cap, base*2^(attempt-1)), minus a
// random share of at most Jitter. The jittered delay never exceeds the cap
// and never drops below the nominal delay of the previous attempt, so
// successive delays never decrease.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64
	rand   func() float64
}

func NewBackoff(base, maxDelay time.Duration, jitter float64) Backoff {
	return Backoff{Base: base, Cap: maxDelay, Jitter: jitter, rand: rand.Float64}
}

// Nominal is the delay before jitter for the given attempt, attempts start at 1.
func (b Backoff) Nominal(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		if delay >= b.Cap/2 {
			return b.Cap
		}
		delay *= 2
	}
	return min(delay, b.Cap)
}

func (b Backoff) Delay(attempt int) time.Duration {
	delay := b.Nominal(attempt)
	if b.Jitter <= 0 || b.rand == nil {
		return delay
	}
	jittered := delay - time.Duration(b.Jitter*b.rand()*float64(delay))
	if attempt > 1 {
		return max(jittered, b.Nominal(attempt-1))
	}
	return jittered
}
