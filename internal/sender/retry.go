package sender

import (
	"math/rand"
	"time"
)

// ExponentialBackoff computes retry delays that double per attempt up to
// MaxDelay, with a random jitter of ±Jitter applied to each delay.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

func NewExponentialBackoff(initial, max time.Duration) *ExponentialBackoff {
	if max < initial {
		max = initial
	}
	return &ExponentialBackoff{
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// NextDelay returns the wait before retry number attempt+1. Attempt 0 is the
// first retry and waits roughly InitialDelay.
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(b.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= b.Multiplier
		if delay >= float64(b.MaxDelay) {
			delay = float64(b.MaxDelay)
			break
		}
	}

	delay += delay * b.Jitter * (2*rand.Float64() - 1)

	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}
