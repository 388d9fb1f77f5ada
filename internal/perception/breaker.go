package perception

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2oast/Bean-Bot/internal/logging"

	"github.com/sony/gobreaker"
)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Failures is the number of consecutive failed calls that opens the breaker.
	Failures int
	// Cooldown is how long the breaker stays open before one trial call.
	Cooldown time.Duration
}

// Breaker stops calling a provider that keeps failing, so requests go
// straight to the fallback responder instead of waiting out the timeout.
// Caller cancellation does not count against the provider.
type Breaker struct {
	underlying Generator
	cb         *gobreaker.CircuitBreaker
}

// NewBreaker wraps g.
func NewBreaker(g Generator, cfg BreakerConfig) *Breaker {
	failures := uint32(5)
	if cfg.Failures > 0 {
		failures = uint32(cfg.Failures)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        g.Name(),
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.APIWarn("[%s] breaker %s -> %s", name, from, to)
		},
	})
	return &Breaker{underlying: g, cb: cb}
}

// Name reports the wrapped generator's name.
func (b *Breaker) Name() string { return b.underlying.Name() }

// Unwrap returns the wrapped generator.
func (b *Breaker) Unwrap() Generator { return b.underlying }

// State reports "closed", "half-open" or "open".
func (b *Breaker) State() string { return b.cb.State().String() }

// Generate implements Generator.
func (b *Breaker) Generate(ctx context.Context, req Request) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.underlying.Generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%s: %w", b.underlying.Name(), ErrCircuitOpen)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
