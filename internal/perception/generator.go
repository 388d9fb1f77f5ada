// Package perception talks to remote language models. Each provider client
// implements Generator; Complete wraps a call with a deadline and folds every
// outcome into a Completion value so callers branch on data, not on errors.
package perception

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2oast/Bean-Bot/internal/logging"
)

// Message roles accepted by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the provider-neutral generation request.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Generator produces a reply for a request. Implementations must honour ctx
// cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

var (
	// ErrUnconfigured is returned by generators that have no credentials.
	ErrUnconfigured = errors.New("generator not configured")
	// ErrMalformed marks a response that could not be decoded.
	ErrMalformed = errors.New("malformed response")
	// ErrCircuitOpen is returned while a Breaker is skipping remote calls.
	ErrCircuitOpen = errors.New("circuit open")
)

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.Code, e.Body)
}

// Failure classifies why a Completion carries no text.
type Failure int

const (
	FailureNone Failure = iota
	FailureUnconfigured
	FailureTimeout
	FailureTransport
	FailureStatus
	FailureMalformed
	FailureEmpty
	FailureCircuitOpen
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureUnconfigured:
		return "unconfigured"
	case FailureTimeout:
		return "timeout"
	case FailureTransport:
		return "transport"
	case FailureStatus:
		return "status"
	case FailureMalformed:
		return "malformed"
	case FailureEmpty:
		return "empty"
	case FailureCircuitOpen:
		return "circuit_open"
	default:
		return fmt.Sprintf("failure(%d)", int(f))
	}
}

// Completion is the outcome of one remote call. Text is non-empty exactly
// when Failure is FailureNone.
type Completion struct {
	Text    string
	Failure Failure
	Err     error
}

// OK reports whether the completion carries usable text.
func (c Completion) OK() bool {
	return c.Failure == FailureNone
}

// Disabled is the generator used when no provider is configured.
type Disabled struct{}

// Generate always fails with ErrUnconfigured.
func (Disabled) Generate(context.Context, Request) (string, error) {
	return "", ErrUnconfigured
}

// Name implements Generator.
func (Disabled) Name() string { return "disabled" }

// Complete runs g under timeout and classifies the result. It never returns
// an error: every failure mode becomes a Completion with Failure set.
func Complete(ctx context.Context, g Generator, req Request, timeout time.Duration) Completion {
	if g == nil {
		return Completion{Failure: FailureUnconfigured, Err: ErrUnconfigured}
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	text, err := g.Generate(callCtx, req)
	if err != nil {
		f := classify(callCtx, err)
		logging.APIDebug("[%s] generate failed (%s): %v", g.Name(), f, err)
		return Completion{Failure: f, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Completion{Failure: FailureEmpty, Err: fmt.Errorf("%s: empty completion", g.Name())}
	}
	return Completion{Text: text}
}

func classify(ctx context.Context, err error) Failure {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrUnconfigured):
		return FailureUnconfigured
	case errors.Is(err, ErrCircuitOpen):
		return FailureCircuitOpen
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return FailureTimeout
	case errors.As(err, &statusErr):
		return FailureStatus
	case errors.Is(err, ErrMalformed):
		return FailureMalformed
	default:
		return FailureTransport
	}
}
