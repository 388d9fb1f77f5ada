package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2oast/Bean-Bot/internal/chat"

	"go.uber.org/zap"
)

// chatPayload is the POST /chat body. Pointer fields distinguish a missing
// key from an empty value.
type chatPayload struct {
	AgentKey   *string `json:"agent_key"`
	AgentName  *string `json:"agent_name"`
	Message    *string `json:"message"`
	ObjectName string  `json:"object_name"`
	ObjectKey  string  `json:"object_key"`
	Position   string  `json:"position"`
	Region     string  `json:"region"`
	Timestamp  int64   `json:"timestamp"`
}

type chatReply struct {
	Reply string `json:"reply"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

var (
	errMissingAgentKey  = errors.New("agent_key is required")
	errMissingAgentName = errors.New("agent_name is required")
	errMissingMessage   = errors.New("message is required")
)

func (p *chatPayload) validate() error {
	switch {
	case p.AgentKey == nil || *p.AgentKey == "":
		return errMissingAgentKey
	case p.AgentName == nil:
		return errMissingAgentName
	case p.Message == nil:
		return errMissingMessage
	}
	return nil
}

func (p *chatPayload) request() chat.Request {
	return chat.Request{
		AgentKey:   *p.AgentKey,
		AgentName:  *p.AgentName,
		Message:    *p.Message,
		ObjectName: p.ObjectName,
		ObjectKey:  p.ObjectKey,
		Position:   p.Position,
		Region:     p.Region,
		Timestamp:  p.Timestamp,
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(zap.String("request_id", requestID(r.Context())))

	if !s.authorized(r) {
		log.Warn("rejected chat request", zap.String("reason", "bad secret"))
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "bad secret"})
		return
	}

	var p chatPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid payload: " + err.Error()})
		return
	}
	if err := p.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
		return
	}

	resp, err := s.replier.Handle(r.Context(), p.request())
	if err != nil {
		log.Error("chat failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal error"})
		return
	}

	fields := []zap.Field{
		zap.String("agent_key", *p.AgentKey),
		zap.String("source", string(resp.Source)),
		zap.Int("message_len", len(*p.Message)),
		zap.Int("reply_len", len(resp.Reply)),
	}
	if resp.Source == chat.SourceFallback {
		fields = append(fields, zap.Stringer("failure", resp.Failure))
	}
	log.Info("chat handled", fields...)

	writeJSON(w, http.StatusOK, chatReply{Reply: resp.Reply})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"generator": s.opts.Generator,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
