// Package http exposes the triage engine over HTTP with chi.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/triage"
	"github.com/aretw0/triage/internal/logging"
	"github.com/aretw0/triage/internal/presentation/graph"
	"github.com/aretw0/triage/pkg/consumer"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Publisher enqueues messages for the background consumer.
type Publisher interface {
	Publish(ctx context.Context, queue string, env ports.Envelope) error
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	Engine    ports.Engine
	Sessions  ports.SessionReader
	Publisher Publisher
	Queue     string
	Streams   *StreamManager
	Metrics   http.Handler
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSessions enables the /sessions routes.
func WithSessions(r ports.SessionReader) Option {
	return func(s *Server) { s.Sessions = r }
}

// WithPublisher enables POST /messages, publishing to queue.
func WithPublisher(p Publisher, queue string) Option {
	return func(s *Server) {
		s.Publisher = p
		s.Queue = queue
	}
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.Metrics = h }
}

// WithStreams shares a StreamManager, so outcomes from other surfaces reach SSE clients.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.Streams = sm }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine ports.Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Post("/agent", s.Agent)
	r.Post("/messages", s.Enqueue)
	r.Get("/graph", s.GetGraph)
	r.Get("/events", s.SubscribeEvents)
	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/sessions/{id}", s.GetSession)
	r.Delete("/sessions/{id}", s.DeleteSession)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}
	return r
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

// AgentResponse is the body returned by POST /agent.
type AgentResponse struct {
	SessionID string   `json:"session_id"`
	Response  string   `json:"response"`
	Sender    string   `json:"sender"`
	Decision  string   `json:"decision"`
	Steps     int      `json:"steps"`
	Path      []string `json:"path"`
	Notice    string   `json:"notice,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Agent handles POST /agent. The message comes from ?string= (or ?message=), or from
// the body as JSON or plain text. ?session_id= overrides the body's session.
func (s *Server) Agent(w http.ResponseWriter, r *http.Request) {
	in, err := s.readInbound(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		s.logger.Warn("Agent: invalid request", "error", err)
		return
	}

	out, err := s.Engine.Handle(r.Context(), in)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrEmptyMessage):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrStepLimitExceeded):
			status = http.StatusUnprocessableEntity
		}
		s.writeError(w, status, err)
		s.logger.Error("Agent: handle failed", "error", err, "session_id", in.Key())
		return
	}

	s.publishOutcome(out)

	resp := AgentResponse{
		SessionID: out.SessionID,
		Response:  out.Reply,
		Sender:    out.Sender,
		Decision:  out.Decision.String(),
		Steps:     out.Steps,
		Path:      out.Path,
		Notice:    out.Notice,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Enqueue handles POST /messages by publishing the message for the consumer.
func (s *Server) Enqueue(w http.ResponseWriter, r *http.Request) {
	if s.Publisher == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("queue publishing is not enabled"))
		return
	}

	in, err := s.readInbound(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if in.Key() == "" {
		in.SessionID = uuid.NewString()
	}

	body, err := consumer.Encode(in)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.Publisher.Publish(r.Context(), s.Queue, ports.Envelope{Body: body}); err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		s.logger.Error("Enqueue: publish failed", "error", err, "queue", s.Queue)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "queued",
		"queue":      s.Queue,
		"session_id": in.Key(),
	})
}

// GetGraph handles GET /graph. ?format=mermaid returns a Mermaid flowchart.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	desc := s.Engine.Inspect()
	if r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, graph.GenerateMermaid(desc, nil))
		return
	}
	s.writeJSON(w, http.StatusOK, desc)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("sessions are not exposed"))
		return
	}
	sess, err := s.Sessions.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("sessions are not exposed"))
		return
	}
	if err := s.Sessions.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "triage-http",
		"version": strings.TrimSpace(triage.Version),
	})
}

// SubscribeEvents handles GET /events?session_id=..., streaming outcomes as SSE.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()
	s.logger.Info("SSE: subscribed", "session_id", sessionID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: outcome\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// publishOutcome forwards out to SSE subscribers of its session.
func (s *Server) publishOutcome(out *domain.Outcome) {
	s.Streams.PublishOutcome(out)
}

func (s *Server) readInbound(r *http.Request) (domain.Inbound, error) {
	q := r.URL.Query()
	text := q.Get("string")
	if text == "" {
		text = q.Get("message")
	}

	var in domain.Inbound
	if text != "" {
		in.Message = strings.TrimSpace(text)
		if in.Message == "" {
			return in, domain.ErrEmptyMessage
		}
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return in, fmt.Errorf("reading body: %w", err)
		}
		in, err = consumer.Decode(body)
		if err != nil {
			return in, err
		}
	}

	if id := q.Get("session_id"); id != "" {
		in.SessionID = id
	}
	if id := q.Get("user_id"); id != "" {
		in.UserID = id
	}
	return in, nil
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
	s.logger.Error("session request failed", "error", err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

// StreamManager fans outcomes out to SSE connections by session id.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: client buffer full, dropping message", "session_id", sessionID)
		}
	}
}

// PublishOutcome broadcasts out as JSON to the subscribers of its session.
func (sm *StreamManager) PublishOutcome(out *domain.Outcome) {
	if out == nil {
		return
	}
	b, err := json.Marshal(out)
	if err != nil {
		sm.logger.Error("SSE: outcome encode failed", "error", err)
		return
	}
	sm.Broadcast(out.SessionID, string(b))
}

// Subscribers reports how many connections watch sessionID.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}
