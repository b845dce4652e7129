// Package retry provides exponential backoff for calls to the chat
// platform. Collaborator calls are cosmetic or post-commit, so a failed
// attempt is retried a few times and then surfaced; retries never hold
// a store transaction open.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Config controls backoff behavior.
type Config struct {
	MaxRetries int           // retry attempts after the first try
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap on any single delay
	Multiplier float64       // exponential growth factor
	Jitter     bool          // randomize delays to avoid thundering herd
}

// DefaultConfig returns the backoff used for chat API calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do runs operation, retrying with exponential backoff until it
// succeeds, retries are exhausted, or ctx is done. The last error is
// returned.
func Do(ctx context.Context, config Config, name string, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := config.delay(attempt)
			log.Debug().
				Str("operation", name).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying after backoff")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := operation(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return lastErr
}

func (c Config) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-1)))
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	if c.Jitter {
		// Up to 25% random spread below the computed delay.
		d -= time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	return d
}
