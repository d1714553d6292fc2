// Package http exposes sessions over a JSON API built on chi.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/keeper"
	"github.com/aretw0/keeper/internal/logging"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/phase"
	"github.com/aretw0/keeper/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server serves the session API.
type Server struct {
	sessions *session.Manager
	streams  *StreamManager
	metrics  http.Handler
	logger   *slog.Logger
	version  string
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported by GET /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// CreateRequest is the body of POST /sessions.
type CreateRequest struct {
	SessionID  string          `json:"session_id,omitempty"`
	ScenarioID string          `json:"scenario_id"`
	Characters []*domain.Actor `json:"characters"`
	// Start moves the new session straight into the intro.
	Start bool `json:"start,omitempty"`
}

// CreateResponse is returned by POST /sessions.
type CreateResponse struct {
	Session *domain.Snapshot `json:"session"`
	Opening string           `json:"opening,omitempty"`
}

// PushRequest is the body of POST /sessions/{id}/push.
type PushRequest struct {
	ActorID string `json:"character_id"`
	Seed    *int64 `json:"seed,omitempty"`
}

// PhaseRequest is the body of POST /sessions/{id}/phase.
type PhaseRequest struct {
	Phase string `json:"phase"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler creates the HTTP handler for the manager.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	return NewServer(sessions, opts...).Handler()
}

// NewServer creates a Server for the manager.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		streams:  NewStreamManager(),
		logger:   logging.NewNop(),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams.logger = s.logger
	return s
}

// Handler returns the chi router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.list)
		r.Post("/", s.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.get)
			r.Delete("/", s.delete)
			r.Post("/start", s.start)
			r.Post("/actions", s.act)
			r.Post("/push", s.push)
			r.Post("/phase", s.transition)
			r.Get("/events", s.events)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var body CreateRequest
	if !s.decode(w, r, &body) {
		return
	}
	if len(body.Characters) == 0 {
		s.writeStatus(w, http.StatusBadRequest, "characters are required")
		return
	}
	for _, a := range body.Characters {
		if a == nil {
			s.writeStatus(w, http.StatusBadRequest, "null character")
			return
		}
		if err := a.Validate(); err != nil {
			s.writeStatus(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx := r.Context()
	snap, err := s.sessions.Create(ctx, body.SessionID, body.ScenarioID, body.Characters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := CreateResponse{Session: snap}
	if body.Start {
		resp.Opening, err = s.sessions.Start(ctx, snap.SessionID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if resp.Session, err = s.sessions.Get(ctx, snap.SessionID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	text, err := s.sessions.Start(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.broadcast(id, map[string]string{"opening": text})
	s.writeJSON(w, http.StatusOK, map[string]string{"narrative": text})
}

func (s *Server) act(w http.ResponseWriter, r *http.Request) {
	var body keeper.ActionRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.ActorID == "" {
		s.writeStatus(w, http.StatusBadRequest, "character_id is required")
		return
	}
	id := chi.URLParam(r, "id")
	res, err := s.sessions.Play(r.Context(), id, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.Error == "" {
		s.broadcast(id, res)
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) push(w http.ResponseWriter, r *http.Request) {
	var body PushRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.ActorID == "" {
		s.writeStatus(w, http.StatusBadRequest, "character_id is required")
		return
	}
	id := chi.URLParam(r, "id")
	res, err := s.sessions.Push(r.Context(), id, body.ActorID, body.Seed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.Error == "" {
		s.broadcast(id, res)
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request) {
	var body PhaseRequest
	if !s.decode(w, r, &body) {
		return
	}
	to, err := phase.Parse(body.Phase)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	snap, err := s.sessions.Transition(r.Context(), id, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.broadcast(id, map[string]any{"phase": snap.Phase, "turn_state": snap.Turn})
	s.writeJSON(w, http.StatusOK, snap)
}

// events streams action results of one session as server-sent events. The
// first event carries the full session as a diff against nothing so clients
// can sync before applying updates.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeStatus(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	id := chi.URLParam(r, "id")
	snap, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	initial, err := json.Marshal(domain.Diff(nil, snap))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ch, cancel := s.streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", initial)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "session_id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) broadcast(sessionID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("broadcast encode failed", "session_id", sessionID, "err", err)
		return
	}
	s.streams.Broadcast(sessionID, string(b))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		s.writeStatus(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// Streams returns the SSE fan-out of the server.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionBusy),
		errors.Is(err, phase.ErrIllegalTransition),
		errors.Is(err, domain.ErrInactivePhase),
		errors.Is(err, domain.ErrNoPendingPush),
		errors.Is(err, session.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidInput),
		errors.Is(err, phase.ErrUnknownPhase),
		errors.Is(err, domain.ErrMissingActor):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
	}
	s.writeStatus(w, code, err.Error())
}

func (s *Server) writeStatus(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// ListenAndServe runs h on addr until ctx is canceled, then shuts down
// gracefully within timeout.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, timeout time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
