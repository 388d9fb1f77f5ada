package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2oast/Bean-Bot/internal/logging"
	"github.com/2oast/Bean-Bot/internal/perception"
	"github.com/2oast/Bean-Bot/internal/store"
	"github.com/2oast/Bean-Bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- memStore ---

// memStore is an in-memory Store that counts open sessions.
type memStore struct {
	mu         sync.Mutex
	facts      map[string][]string
	consent    map[string]bool
	transcript []types.TranscriptEntry
	open       int

	acquireErr error
	appendErr  error
	listErr    error
	closeErr   error
}

func newMemStore() *memStore {
	return &memStore{facts: map[string][]string{}, consent: map[string]bool{}}
}

func (m *memStore) Acquire(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	m.open++
	return &memSession{m: m}, nil
}

func (m *memStore) openSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

type memSession struct {
	m      *memStore
	closed bool
}

func (s *memSession) AppendTranscript(ctx context.Context, e types.TranscriptEntry) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.appendErr != nil {
		return s.m.appendErr
	}
	s.m.transcript = append(s.m.transcript, e)
	return nil
}

func (s *memSession) ListFacts(ctx context.Context, agentKey string) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.listErr != nil {
		return nil, s.m.listErr
	}
	return append([]string{}, s.m.facts[agentKey]...), nil
}

func (s *memSession) AddFact(ctx context.Context, agentKey, fact string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	fact = strings.TrimSpace(fact)
	for _, f := range s.m.facts[agentKey] {
		if f == fact {
			return nil
		}
	}
	s.m.facts[agentKey] = append(s.m.facts[agentKey], fact)
	return nil
}

func (s *memSession) RemoveFact(ctx context.Context, agentKey, fact string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	fact = strings.TrimSpace(fact)
	kept := s.m.facts[agentKey][:0]
	for _, f := range s.m.facts[agentKey] {
		if f != fact {
			kept = append(kept, f)
		}
	}
	s.m.facts[agentKey] = kept
	return nil
}

func (s *memSession) GetConsent(ctx context.Context, agentKey string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.consent[agentKey], nil
}

func (s *memSession) SetConsent(ctx context.Context, agentKey string, allowed bool) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.consent[agentKey] = allowed
	return nil
}

func (s *memSession) Close() error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.m.open--
	}
	return s.m.closeErr
}

// --- fakeGenerator ---

type fakeGenerator struct {
	text  string
	err   error
	block bool
	calls int
	last  perception.Request
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, req perception.Request) (string, error) {
	f.calls++
	f.last = req
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

var fixedNow = time.Unix(1_700_000_000, 0)

func newTestOrchestrator(st Store, gen perception.Generator, remote bool) *Orchestrator {
	return NewOrchestrator(st, gen, Config{
		RemoteEnabled: remote,
		Temperature:   0.7,
		MaxTokens:     120,
		Timeout:       time.Second,
	}, WithClock(func() time.Time { return fixedNow }))
}

func janeSays(msg string) Request {
	return Request{
		AgentKey:   "uuid-jane",
		AgentName:  "Jane Doe",
		Message:    msg,
		ObjectName: "Bean",
		ObjectKey:  "obj-1",
		Region:     "Ahern",
		Timestamp:  42,
	}
}

func TestHandle_LogsEveryMessageWithServerTime(t *testing.T) {
	st := newMemStore()
	o := newTestOrchestrator(st, nil, false)

	for _, msg := range []string{"hello", "consent: yes", "remember: x", "forget: x"} {
		_, err := o.Handle(context.Background(), janeSays(msg))
		require.NoError(t, err)
	}

	require.Len(t, st.transcript, 4)
	e := st.transcript[0]
	assert.Equal(t, types.TranscriptEntry{
		Timestamp: fixedNow,
		AgentKey:  "uuid-jane",
		AgentName: "Jane Doe",
		ObjectKey: "obj-1",
		Region:    "Ahern",
		Message:   "hello",
	}, e)
	assert.Equal(t, 0, st.openSessions())
}

func TestHandle_ConsentCommand(t *testing.T) {
	st := newMemStore()
	o := newTestOrchestrator(st, nil, false)

	resp, err := o.Handle(context.Background(), janeSays("consent: yes"))
	require.NoError(t, err)
	assert.Equal(t, "thanks! learning is now ON.", resp.Reply)
	assert.Equal(t, SourceCommand, resp.Source)
	assert.True(t, st.consent["uuid-jane"])

	resp, err = o.Handle(context.Background(), janeSays("Consent: nope"))
	require.NoError(t, err)
	assert.Equal(t, "thanks! learning is now OFF.", resp.Reply)
	assert.False(t, st.consent["uuid-jane"])
}

func TestHandle_RememberAndForget(t *testing.T) {
	st := newMemStore()
	gen := &fakeGenerator{text: "unused"}
	o := newTestOrchestrator(st, gen, true)
	ctx := context.Background()

	resp, err := o.Handle(ctx, janeSays("remember: likes oolong tea"))
	require.NoError(t, err)
	assert.Equal(t, "saved: 'likes oolong tea'", resp.Reply)
	assert.Equal(t, KindRemember, resp.Command)

	_, err = o.Handle(ctx, janeSays("REMEMBER:   likes oolong tea "))
	require.NoError(t, err)
	assert.Equal(t, []string{"likes oolong tea"}, st.facts["uuid-jane"])

	resp, err = o.Handle(ctx, janeSays("forget: likes oolong tea"))
	require.NoError(t, err)
	assert.Equal(t, "forgot: 'likes oolong tea'", resp.Reply)
	assert.Empty(t, st.facts["uuid-jane"])

	resp, err = o.Handle(ctx, janeSays("forget: never said this"))
	require.NoError(t, err)
	assert.Equal(t, "forgot: 'never said this'", resp.Reply)

	assert.Zero(t, gen.calls, "commands never reach the generator")
}

func TestApply_SkipsTranscript(t *testing.T) {
	st := newMemStore()
	o := newTestOrchestrator(st, nil, false)
	ctx := context.Background()

	resp, err := o.Apply(ctx, "uuid-jane", Command{Kind: KindRemember, Payload: "likes tea"})
	require.NoError(t, err)
	assert.Equal(t, "saved: 'likes tea'", resp.Reply)

	_, err = o.Apply(ctx, "uuid-jane", Command{Kind: KindConsent, Allow: true})
	require.NoError(t, err)

	_, err = o.Apply(ctx, "uuid-jane", Command{Kind: KindOrdinary})
	assert.ErrorIs(t, err, ErrNotCommand)

	assert.Equal(t, []string{"likes tea"}, st.facts["uuid-jane"])
	assert.True(t, st.consent["uuid-jane"])
	assert.Empty(t, st.transcript)
	assert.Equal(t, 0, st.openSessions())
}

func TestSessionCloseErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(zap.NewNop()) })

	st := newMemStore()
	st.closeErr = errors.New("conn busy")
	o := newTestOrchestrator(st, nil, false)
	ctx := context.Background()

	_, err := o.Handle(ctx, janeSays("hello"))
	require.NoError(t, err)
	_, err = o.Apply(ctx, "uuid-jane", Command{Kind: KindRemember, Payload: "likes tea"})
	require.NoError(t, err)

	released := logs.FilterMessageSnippet("Failed to release session").All()
	require.Len(t, released, 2, "both Handle and Apply report a failed release")
	for _, e := range released {
		assert.Equal(t, zapcore.WarnLevel, e.Level)
		assert.Contains(t, e.Message, "conn busy")
	}
}

func TestHandle_CommandsIgnoreConsent(t *testing.T) {
	st := newMemStore()
	o := newTestOrchestrator(st, nil, false)

	_, err := o.Handle(context.Background(), janeSays("remember: plays chess"))
	require.NoError(t, err)
	assert.False(t, st.consent["uuid-jane"])
	assert.Equal(t, []string{"plays chess"}, st.facts["uuid-jane"])
}

func TestHandle_RemoteReply(t *testing.T) {
	st := newMemStore()
	gen := &fakeGenerator{text: "  hey Jane, nice hat!  "}
	o := newTestOrchestrator(st, gen, true)

	resp, err := o.Handle(context.Background(), janeSays("  what do you think?  "))
	require.NoError(t, err)
	assert.Equal(t, "hey Jane, nice hat!", resp.Reply)
	assert.Equal(t, SourceRemote, resp.Source)

	assert.Equal(t, []perception.Message{{Role: perception.RoleUser, Content: "Jane Doe: what do you think?"}}, gen.last.Messages)
	assert.Equal(t, 0.7, gen.last.Temperature)
	assert.Equal(t, 120, gen.last.MaxTokens)
	assert.Equal(t, DefaultSystemPrompt, gen.last.System)
}

func TestHandle_ConsentGatesFactInjection(t *testing.T) {
	st := newMemStore()
	st.facts["uuid-jane"] = []string{"likes tea", "plays chess"}
	gen := &fakeGenerator{text: "ok"}
	o := newTestOrchestrator(st, gen, true)

	_, err := o.Handle(context.Background(), janeSays("hi"))
	require.NoError(t, err)
	assert.NotContains(t, gen.last.System, FactLinePrefix)
	assert.NotContains(t, gen.last.System, "likes tea")

	st.consent["uuid-jane"] = true
	_, err = o.Handle(context.Background(), janeSays("hi"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(gen.last.System, FactLinePrefix+"likes tea; plays chess\n"))
}

func TestHandle_ConsentWithoutFactsAddsNoLine(t *testing.T) {
	st := newMemStore()
	st.consent["uuid-jane"] = true
	gen := &fakeGenerator{text: "ok"}
	o := newTestOrchestrator(st, gen, true)

	_, err := o.Handle(context.Background(), janeSays("hi"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemPrompt, gen.last.System)
}

func TestHandle_FallbackMatchesResponder(t *testing.T) {
	facts := []string{"likes tea", "plays chess"}
	gens := map[string]perception.Generator{
		"disabled":  perception.Disabled{},
		"error":     &fakeGenerator{err: errors.New("connection reset")},
		"empty":     &fakeGenerator{text: "  "},
		"status":    &fakeGenerator{err: &perception.StatusError{Code: 503}},
		"timeout":   &fakeGenerator{block: true},
		"malformed": &fakeGenerator{err: perception.ErrMalformed},
	}
	for name, gen := range gens {
		t.Run(name, func(t *testing.T) {
			st := newMemStore()
			st.facts["uuid-jane"] = facts
			st.consent["uuid-jane"] = true
			o := NewOrchestrator(st, gen, Config{RemoteEnabled: true, Timeout: 20 * time.Millisecond})

			for _, msg := range []string{"hello", "need help", "whats new"} {
				resp, err := o.Handle(context.Background(), janeSays(msg))
				require.NoError(t, err)
				assert.Equal(t, Reply("Jane Doe", msg, facts), resp.Reply)
				assert.Equal(t, SourceFallback, resp.Source)
				assert.NotEqual(t, perception.FailureNone, resp.Failure)
			}
		})
	}
}

func TestHandle_RemoteDisabledSkipsGenerator(t *testing.T) {
	st := newMemStore()
	gen := &fakeGenerator{text: "should not be used"}
	o := newTestOrchestrator(st, gen, false)

	resp, err := o.Handle(context.Background(), janeSays("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hey Jane! what are you up to?", resp.Reply)
	assert.Zero(t, gen.calls)
}

func TestHandle_StoreFailuresAreFatal(t *testing.T) {
	boom := errors.New("disk full")

	t.Run("acquire", func(t *testing.T) {
		st := newMemStore()
		st.acquireErr = boom
		_, err := newTestOrchestrator(st, nil, false).Handle(context.Background(), janeSays("hi"))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("transcript", func(t *testing.T) {
		st := newMemStore()
		st.appendErr = boom
		_, err := newTestOrchestrator(st, nil, false).Handle(context.Background(), janeSays("remember: x"))
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, st.facts, "nothing happens after a failed transcript write")
		assert.Equal(t, 0, st.openSessions())
	})

	t.Run("list facts", func(t *testing.T) {
		st := newMemStore()
		st.listErr = boom
		_, err := newTestOrchestrator(st, nil, true).Handle(context.Background(), janeSays("hi"))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, st.openSessions())
	})
}

func TestBuildSystemPrompt(t *testing.T) {
	var facts []string
	for i := 0; i < 12; i++ {
		facts = append(facts, string(rune('a'+i)))
	}

	got := BuildSystemPrompt("base\n", true, facts, DefaultFactLimit)
	assert.Equal(t, "base\n"+FactLinePrefix+"a; b; c; d; e; f; g; h; i; j\n", got)

	assert.Equal(t, "base\n", BuildSystemPrompt("base\n", false, facts, DefaultFactLimit))
	assert.Equal(t, "base\n", BuildSystemPrompt("base\n", true, nil, DefaultFactLimit))
}

// TestHandle_EndToEnd runs against the real SQLite store.
func TestHandle_EndToEnd(t *testing.T) {
	st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	defer st.Close()

	sessions := StoreFunc(func(ctx context.Context) (Session, error) {
		s, err := st.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	o := NewOrchestrator(sessions, nil, Config{})
	ctx := context.Background()

	resp, err := o.Handle(ctx, janeSays("remember: likes oolong tea"))
	require.NoError(t, err)
	assert.Equal(t, "saved: 'likes oolong tea'", resp.Reply)

	_, err = o.Handle(ctx, janeSays("remember: likes oolong tea"))
	require.NoError(t, err)

	sess, err := st.Acquire(ctx)
	require.NoError(t, err)
	defer sess.Close()

	facts, err := sess.ListFacts(ctx, "uuid-jane")
	require.NoError(t, err)
	assert.Equal(t, []string{"likes oolong tea"}, facts)

	resp, err = o.Handle(ctx, janeSays("anything new?"))
	require.NoError(t, err)
	assert.Equal(t, "noted! btw i remember: likes oolong tea", resp.Reply)

	entries, err := sess.RecentTranscript(ctx, "uuid-jane", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
