// Copyright 2024 XDC Network
// Exponential retry-attempt counter for try_init's unbounded retry loop.

package sync

import (
	"math"
	"time"
)

// backoff computes try_init's exponential retry interval, capped at
// TryInitBackoffMax.
type backoff struct {
	base    time.Duration
	factor  float64
	max     time.Duration
	attempt uint64
}

func newBackoff(base time.Duration, factor float64, max time.Duration) *backoff {
	return &backoff{base: base, factor: factor, max: max}
}

// next returns the duration to wait before the next attempt and advances
// the attempt counter.
func (b *backoff) next() time.Duration {
	d := time.Duration(float64(b.base) * math.Pow(b.factor, float64(b.attempt)))
	b.attempt++
	if d > b.max || d <= 0 {
		return b.max
	}
	return d
}

// reset zeroes the attempt counter after a successful try_init.
func (b *backoff) reset() { b.attempt = 0 }
