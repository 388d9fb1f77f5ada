package perception

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/2oast/Bean-Bot/internal/logging"
)

// CallStats are cumulative counters for a Traced generator.
type CallStats struct {
	Calls    int64
	Failures int64
}

// Traced wraps a Generator and logs latency and outcome of every call.
// Prompt and reply text are never logged, only their lengths.
type Traced struct {
	underlying Generator
	calls      atomic.Int64
	failures   atomic.Int64
}

// NewTraced wraps g.
func NewTraced(g Generator) *Traced {
	return &Traced{underlying: g}
}

// Name reports the wrapped generator's name.
func (t *Traced) Name() string { return t.underlying.Name() }

// Unwrap returns the wrapped generator.
func (t *Traced) Unwrap() Generator { return t.underlying }

// Generate implements Generator.
func (t *Traced) Generate(ctx context.Context, req Request) (string, error) {
	t.calls.Add(1)
	start := time.Now()

	text, err := t.underlying.Generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		t.failures.Add(1)
		logging.APIWarn("[%s] call failed after %v: %v", t.underlying.Name(), elapsed, err)
		return "", err
	}

	logging.API("[%s] call completed in %v (system_len=%d response_len=%d)",
		t.underlying.Name(), elapsed, len(req.System), len(text))
	return text, nil
}

// Stats returns a snapshot of the counters.
func (t *Traced) Stats() CallStats {
	return CallStats{Calls: t.calls.Load(), Failures: t.failures.Load()}
}
