package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff_Nominal_IsMonotonicUpToCap(t *testing.T) {
	req := require.New(t)
	b := NewBackoff(100*time.Millisecond, 5*time.Second, 0.3)

	previous := time.Duration(0)
	for attempt := 1; attempt <= 64; attempt++ {
		delay := b.Nominal(attempt)
		req.GreaterOrEqual(delay, previous, "attempt %d", attempt)
		req.LessOrEqual(delay, 5*time.Second)
		previous = delay
	}
	req.Equal(100*time.Millisecond, b.Nominal(1))
	req.Equal(200*time.Millisecond, b.Nominal(2))
	req.Equal(5*time.Second, b.Nominal(64))
}

func TestBackoff_Delay_JitterStaysWithinBounds(t *testing.T) {
	req := require.New(t)
	b := NewBackoff(time.Second, 8*time.Second, 0.25)

	for attempt := 1; attempt <= 10; attempt++ {
		nominal := b.Nominal(attempt)
		for i := 0; i < 100; i++ {
			delay := b.Delay(attempt)
			req.LessOrEqual(delay, nominal)
			req.GreaterOrEqual(delay, nominal-nominal/4)
		}
	}
}

func TestBackoff_Delay_WithoutJitterIsNominal(t *testing.T) {
	req := require.New(t)
	b := NewBackoff(10*time.Millisecond, time.Second, 0)
	for attempt := 1; attempt <= 12; attempt++ {
		req.Equal(b.Nominal(attempt), b.Delay(attempt))
	}
}

func TestBackoff_Delay_ExtremeJitterDraws(t *testing.T) {
	req := require.New(t)
	b := NewBackoff(time.Second, 4*time.Second, 0.5)

	b.rand = func() float64 { return 0 }
	req.Equal(time.Second, b.Delay(1))

	b.rand = func() float64 { return 0.999999 }
	req.Greater(b.Delay(3), 2*time.Second)
}

func TestBackoff_Delay_NeverDecreasesAcrossAttempts(t *testing.T) {
	req := require.New(t)
	b := NewBackoff(time.Second, 3*time.Second, 0.5)

	// Given a low draw followed by a high one as the cap is reached
	draws := []float64{0, 0, 0.99, 0.99, 0, 0.99}
	next := 0
	b.rand = func() float64 {
		d := draws[next%len(draws)]
		next++
		return d
	}

	// Then every delay is at least the previous one and at most the cap
	previous := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		delay := b.Delay(attempt)
		req.GreaterOrEqual(delay, previous, "attempt %d", attempt)
		req.LessOrEqual(delay, 3*time.Second, "attempt %d", attempt)
		if attempt > 1 {
			req.GreaterOrEqual(delay, b.Nominal(attempt-1), "attempt %d", attempt)
		}
		previous = delay
	}

	// And a high draw on the first capped attempt is floored at the previous nominal
	b.rand = func() float64 { return 0.99 }
	req.Equal(2*time.Second, b.Delay(3))
}

func TestBackoff_Delay_NeverDecreasesWithRandomJitter(t *testing.T) {
	req := require.New(t)
	b := NewBackoff(50*time.Millisecond, 2*time.Second, 0.9)

	for run := 0; run < 200; run++ {
		previous := time.Duration(0)
		for attempt := 1; attempt <= 10; attempt++ {
			delay := b.Delay(attempt)
			req.GreaterOrEqual(delay, previous, "run %d attempt %d", run, attempt)
			previous = delay
		}
	}
}
