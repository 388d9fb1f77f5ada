// Package chat decides what beanbot says. The Orchestrator logs every
// inbound message, applies memory and consent commands, and otherwise asks
// the remote generator for a reply, falling back to the local responder on
// any generator failure.
//
// Flow per request:
//
//	Received -> Logged -> Classified -> CommandHandled | GeneratingReply -> Replied
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2oast/Bean-Bot/internal/logging"
	"github.com/2oast/Bean-Bot/internal/perception"
	"github.com/2oast/Bean-Bot/internal/types"
)

// DefaultSystemPrompt is the NPC instruction sent with every remote request.
const DefaultSystemPrompt = "You are a friendly in-world NPC living in Second Life.\n" +
	"Keep replies short (<= 2 sentences) and ask occasional follow-ups.\n" +
	"Respect consent: only use 'memory' if the user opted in.\n"

// FactLinePrefix starts the line that lists known facts in the system prompt.
const FactLinePrefix = "Known preferences for this user: "

// DefaultFactLimit caps how many facts go into the system prompt.
const DefaultFactLimit = 10

// Session is the per-request view of the store. Implementations hold one
// connection; Close returns it.
type Session interface {
	AppendTranscript(ctx context.Context, e types.TranscriptEntry) error
	ListFacts(ctx context.Context, agentKey string) ([]string, error)
	AddFact(ctx context.Context, agentKey, fact string) error
	RemoveFact(ctx context.Context, agentKey, fact string) error
	GetConsent(ctx context.Context, agentKey string) (bool, error)
	SetConsent(ctx context.Context, agentKey string, allowed bool) error
	Close() error
}

// Store hands out sessions.
type Store interface {
	Acquire(ctx context.Context) (Session, error)
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context) (Session, error)

// Acquire implements Store.
func (f StoreFunc) Acquire(ctx context.Context) (Session, error) { return f(ctx) }

// Config is everything the orchestrator needs to know about the remote
// generator. It is fixed at construction.
type Config struct {
	RemoteEnabled bool
	SystemPrompt  string
	FactLimit     int
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
}

// Request is one inbound chat message with its metadata.
type Request struct {
	AgentKey   string
	AgentName  string
	Message    string
	ObjectName string
	ObjectKey  string
	Position   string
	Region     string
	Timestamp  int64 // client clock, informational only
}

// Source records which path produced a reply.
type Source string

const (
	SourceCommand  Source = "command"
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Response is the orchestrator's answer.
type Response struct {
	Reply   string
	Source  Source
	Command CommandKind
	// Failure is set when a remote attempt fell back.
	Failure perception.Failure
}

// Orchestrator is the only writer of facts and consent.
type Orchestrator struct {
	store Store
	gen   perception.Generator
	cfg   Config
	now   func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the transcript clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires a store and a generator. A nil generator is treated
// as Disabled.
func NewOrchestrator(store Store, gen perception.Generator, cfg Config, opts ...Option) *Orchestrator {
	if gen == nil {
		gen = perception.Disabled{}
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.FactLimit <= 0 {
		cfg.FactLimit = DefaultFactLimit
	}
	o := &Orchestrator{store: store, gen: gen, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ErrNotCommand is returned by Apply for an ordinary message.
var ErrNotCommand = errors.New("not a command")

// Handle runs one request to completion. A returned error always means the
// store failed; generator failures are absorbed into a fallback reply.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Response, error) {
	sess, err := o.store.Acquire(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("acquire session: %w", err)
	}
	defer release(sess)

	// Logged
	if err := sess.AppendTranscript(ctx, types.TranscriptEntry{
		Timestamp: o.now(),
		AgentKey:  req.AgentKey,
		AgentName: req.AgentName,
		ObjectKey: req.ObjectKey,
		Region:    req.Region,
		Message:   req.Message,
	}); err != nil {
		return Response{}, err
	}

	// Classified
	cmd := Classify(req.Message)
	logging.ChatDebug("Classified message from %s as %s (len=%d)", req.AgentKey, cmd.Kind, len(req.Message))

	if cmd.Kind != KindOrdinary {
		return o.apply(ctx, sess, req.AgentKey, cmd)
	}
	return o.generate(ctx, sess, req)
}

// Apply runs a command for an operator, outside any chat message. Nothing is
// written to the transcript.
func (o *Orchestrator) Apply(ctx context.Context, agentKey string, cmd Command) (Response, error) {
	if cmd.Kind == KindOrdinary {
		return Response{}, ErrNotCommand
	}
	sess, err := o.store.Acquire(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("acquire session: %w", err)
	}
	defer release(sess)
	return o.apply(ctx, sess, agentKey, cmd)
}

func release(sess Session) {
	if err := sess.Close(); err != nil {
		logging.ChatWarn("Failed to release session: %v", err)
	}
}

func (o *Orchestrator) apply(ctx context.Context, sess Session, agentKey string, cmd Command) (Response, error) {
	resp := Response{Source: SourceCommand, Command: cmd.Kind}

	switch cmd.Kind {
	case KindConsent:
		if err := sess.SetConsent(ctx, agentKey, cmd.Allow); err != nil {
			return Response{}, err
		}
		state := "OFF."
		if cmd.Allow {
			state = "ON."
		}
		resp.Reply = "thanks! learning is now " + state

	case KindRemember:
		if err := sess.AddFact(ctx, agentKey, cmd.Payload); err != nil {
			return Response{}, err
		}
		logging.Chat("Stored fact for %s (len=%d)", agentKey, len(cmd.Payload))
		resp.Reply = fmt.Sprintf("saved: '%s'", cmd.Payload)

	case KindForget:
		if err := sess.RemoveFact(ctx, agentKey, cmd.Payload); err != nil {
			return Response{}, err
		}
		logging.Chat("Forgot fact for %s (len=%d)", agentKey, len(cmd.Payload))
		resp.Reply = fmt.Sprintf("forgot: '%s'", cmd.Payload)
	}
	return resp, nil
}

func (o *Orchestrator) generate(ctx context.Context, sess Session, req Request) (Response, error) {
	msg := strings.TrimSpace(req.Message)

	facts, err := sess.ListFacts(ctx, req.AgentKey)
	if err != nil {
		return Response{}, err
	}

	fallback := func(f perception.Failure) Response {
		return Response{Reply: Reply(req.AgentName, msg, facts), Source: SourceFallback, Failure: f}
	}

	if !o.cfg.RemoteEnabled {
		return fallback(perception.FailureUnconfigured), nil
	}

	consent, err := sess.GetConsent(ctx, req.AgentKey)
	if err != nil {
		return Response{}, err
	}

	completion := perception.Complete(ctx, o.gen, perception.Request{
		System: BuildSystemPrompt(o.cfg.SystemPrompt, consent, facts, o.cfg.FactLimit),
		Messages: []perception.Message{
			{Role: perception.RoleUser, Content: req.AgentName + ": " + msg},
		},
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}, o.cfg.Timeout)

	if !completion.OK() {
		logging.ChatWarn("Remote reply for %s failed (%s), using fallback", req.AgentKey, completion.Failure)
		return fallback(completion.Failure), nil
	}
	return Response{Reply: completion.Text, Source: SourceRemote}, nil
}

// BuildSystemPrompt appends the fact line to base only when the agent has
// opted in and has at least one fact. At most limit facts are listed.
func BuildSystemPrompt(base string, consent bool, facts []string, limit int) string {
	if !consent || len(facts) == 0 {
		return base
	}
	if limit <= 0 || limit > len(facts) {
		limit = len(facts)
	}
	return base + FactLinePrefix + strings.Join(facts[:limit], "; ") + "\n"
}
