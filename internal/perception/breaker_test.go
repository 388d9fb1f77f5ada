package perception

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	calls atomic.Int32

	mu  sync.Mutex
	err error
}

func (c *countingGenerator) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *countingGenerator) Name() string { return "counting" }

func (c *countingGenerator) Generate(ctx context.Context, req Request) (string, error) {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return "ok", nil
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	g := &countingGenerator{}
	g.fail(errors.New("connection refused"))
	b := NewBreaker(g, BreakerConfig{Failures: 2, Cooldown: 50 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Generate(ctx, Request{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Generate(ctx, Request{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), g.calls.Load(), "open breaker must not reach the provider")

	c := Complete(ctx, b, Request{}, time.Second)
	assert.Equal(t, FailureCircuitOpen, c.Failure)

	time.Sleep(80 * time.Millisecond)
	g.fail(nil)
	text, err := b.Generate(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	g := &countingGenerator{}
	g.fail(context.Canceled)
	b := NewBreaker(g, BreakerConfig{Failures: 1, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := b.Generate(context.Background(), Request{})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, int32(3), g.calls.Load())
}

func TestBreaker_Delegates(t *testing.T) {
	g := &countingGenerator{}
	b := NewBreaker(g, BreakerConfig{})
	assert.Equal(t, "counting", b.Name())
	assert.Same(t, g, b.Unwrap())
}
