package transport

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// MaxRetryDelay caps a single wait between attempts.
const MaxRetryDelay = time.Minute

// PowerBackOff waits base^n seconds before attempt n+1, where base is the
// configured delay in seconds. A delay never shrinks below the previous
// one, so bases under one second hold their first delay.
type PowerBackOff struct {
	base    float64
	attempt int
	last    time.Duration
}

var _ backoff.BackOff = (*PowerBackOff)(nil)

// NewPowerBackOff returns a backoff with the given base delay.
func NewPowerBackOff(base time.Duration) *PowerBackOff {
	return &PowerBackOff{base: base.Seconds()}
}

// NextBackOff returns the delay that follows the next failed attempt.
func (b *PowerBackOff) NextBackOff() time.Duration {
	b.attempt++

	seconds := math.Pow(b.base, float64(b.attempt))
	var d time.Duration
	switch {
	case math.IsNaN(seconds) || seconds <= 0:
		d = 0
	case seconds >= MaxRetryDelay.Seconds():
		d = MaxRetryDelay
	default:
		d = time.Duration(seconds * float64(time.Second))
	}

	if d < b.last {
		d = b.last
	}
	b.last = d
	return d
}

// Reset restarts the sequence.
func (b *PowerBackOff) Reset() {
	b.attempt = 0
	b.last = 0
}
