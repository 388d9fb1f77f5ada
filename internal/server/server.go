// Package server is the HTTP front of beanbot: POST /chat and GET /health.
// It owns authentication and payload validation; everything past that is
// the chat orchestrator's business.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/2oast/Bean-Bot/internal/chat"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

// AuthHeader carries the shared secret on every chat request.
const AuthHeader = "X-Auth"

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds a chat payload.
const maxBodyBytes = 64 << 10

// Replier produces a reply for a validated request. *chat.Orchestrator
// satisfies it.
type Replier interface {
	Handle(ctx context.Context, req chat.Request) (chat.Response, error)
}

// Options are the transport settings taken from the server config section.
type Options struct {
	MaxConnections  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// Generator is reported by /health.
	Generator string
}

// Server serves the chat API.
type Server struct {
	replier Replier
	log     *zap.Logger
	opts    Options
	secret  atomic.Pointer[string]
	started time.Time
	handler http.Handler
}

// New builds a Server. A nil logger is replaced by zap.NewNop.
func New(replier Replier, secret string, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		replier: replier,
		log:     logger.Named("http"),
		opts:    opts,
		started: time.Now(),
	}
	s.secret.Store(&secret)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /health", s.handleHealth)
	s.handler = s.withRequestID(s.withAccessLog(s.withRecover(mux)))
	return s
}

// SetSecret rotates the shared secret. In-flight requests keep the value
// they already checked against.
func (s *Server) SetSecret(secret string) {
	s.secret.Store(&secret)
	s.log.Info("shared secret rotated")
}

func (s *Server) authorized(r *http.Request) bool {
	want := *s.secret.Load()
	got := r.Header.Get(AuthHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		ErrorLog:          zap.NewStdLog(s.log),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()), zap.Int("max_connections", s.opts.MaxConnections))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down", zap.Duration("timeout", s.opts.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
