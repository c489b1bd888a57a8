// Package http exposes the dialog engine as an HTTP messaging channel.
//
// Clients post events to a session and receive the messages the turn produced in the
// response. Messages are also pushed to Server-Sent Events subscribers of the session,
// so proactive output (e.g. a timeout sweep) reaches connected clients.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/output"
	"github.com/aretw0/parley/pkg/session"
	"github.com/go-chi/chi/v5"
)

// Engine is the part of *parley.Engine the channel needs.
type Engine interface {
	ProcessMessage(ctx context.Context, sessionID string, event domain.Event) domain.State
	JumpTo(ctx context.Context, sessionID, flowID, nodeID string, opts parley.JumpOptions) error
	EndFlow(ctx context.Context, sessionID string) (domain.State, error)
	CurrentPosition(ctx context.Context, sessionID string) (domain.Position, error)
	Flows(ctx context.Context) ([]domain.Flow, error)
	RegisterOutputProcessor(p output.Processor)
}

// TurnResponse is the body returned for a posted event.
type TurnResponse struct {
	Messages []domain.Message `json:"messages"`
	State    domain.State     `json:"state"`
	Position domain.Position  `json:"position"`
	Ended    bool             `json:"ended"`
}

// JumpRequest is the body of POST /sessions/{id}/jump.
type JumpRequest struct {
	Flow       string `json:"flow"`
	Node       string `json:"node,omitempty"`
	ResetState bool   `json:"resetState,omitempty"`
}

// Server implements the channel endpoints.
type Server struct {
	engine   Engine
	sessions *session.Manager
	streams  *StreamManager
	turns    *session.Collector
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates the channel and registers it as the engine's output processor.
// Turns are serialized per session through sessions.
func NewServer(engine Engine, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		sessions: sessions,
		streams:  NewStreamManager(),
		turns:    session.NewCollector(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	engine.RegisterOutputProcessor(output.ProcessorFunc{Name: "http", Fn: s.deliver})
	return s
}

// Handler returns the routes of the channel.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/flows", s.GetFlows)

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/messages", s.PostMessage)
		r.Post("/jump", s.PostJump)
		r.Get("/position", s.GetPosition)
		r.Get("/events", s.SubscribeEvents)
		r.Delete("/", s.DeleteSession)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// deliver is the engine output processor. It runs inside a turn.
func (s *Server) deliver(ctx context.Context, out output.Output) error {
	if out.Context == nil {
		return nil
	}
	if err := s.turns.Send(ctx, out); err != nil {
		return err
	}
	if data, err := json.Marshal(out.Message); err == nil {
		s.streams.Broadcast(out.Context.SessionID, string(data))
	}
	return nil
}

// PostMessage handles POST /sessions/{id}/messages.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var event domain.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostMessage: Invalid request body", "err", err)
		return
	}
	if event.Type == "" {
		event.Type = domain.EventText
	}
	if event.Text != "" {
		clean, err := session.SanitizeInput(event.Text)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
			s.logger.Warn("PostMessage: Input rejected", "err", err, "size", len(event.Text))
			return
		}
		event.Text = clean
	}

	var resp TurnResponse
	err := s.sessions.WithLock(r.Context(), sessionID, func(ctx context.Context) error {
		resp.Messages = s.turns.Capture(sessionID, func() {
			resp.State = s.engine.ProcessMessage(ctx, sessionID, event)
		})

		resp.Ended = resp.State == nil
		if !resp.Ended {
			pos, err := s.engine.CurrentPosition(ctx, sessionID)
			if err != nil {
				return err
			}
			resp.Position = pos
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Turn error: %v", err), http.StatusInternalServerError)
		s.logger.Error("PostMessage failed", "err", err, "session_id", sessionID)
		return
	}

	writeJSON(w, http.StatusOK, resp, s.logger)
}

// PostJump handles POST /sessions/{id}/jump.
func (s *Server) PostJump(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body JumpRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Flow == "" {
		http.Error(w, "Invalid request body: flow is required", http.StatusBadRequest)
		return
	}

	err := s.sessions.WithLock(r.Context(), sessionID, func(ctx context.Context) error {
		return s.engine.JumpTo(ctx, sessionID, body.Flow, body.Node, parley.JumpOptions{ResetState: body.ResetState})
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Jump error: %v", err), statusFor(err))
		s.logger.Warn("PostJump failed", "err", err, "session_id", sessionID)
		return
	}

	s.GetPosition(w, r)
}

// GetPosition handles GET /sessions/{id}/position.
func (s *Server) GetPosition(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	pos, err := s.engine.CurrentPosition(r.Context(), sessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Position error: %v", err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, pos, s.logger)
}

// DeleteSession handles DELETE /sessions/{id}: it ends the active flow.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	err := s.sessions.WithLock(r.Context(), sessionID, func(ctx context.Context) error {
		_, err := s.engine.EndFlow(ctx, sessionID)
		return err
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("End error: %v", err), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFlows handles GET /flows.
func (s *Server) GetFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.engine.Flows(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Flows error: %v", err), http.StatusInternalServerError)
		s.logger.Error("GetFlows failed", "err", err)
		return
	}
	writeJSON(w, http.StatusOK, flows, s.logger)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "parley-http",
		"version": strings.TrimSpace(parley.Version),
	}, s.logger)
}

// SubscribeEvents handles GET /sessions/{id}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe(sessionID)
	defer cancel()

	s.logger.Info("SSE: Subscribing to session messages", "session_id", sessionID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrFlowNotFound), errors.Is(err, domain.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoCurrentFlow):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}
