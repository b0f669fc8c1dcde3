package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/tapes/internal/broker"
	"github.com/casualjim/tapes/pkg/slogx"
	"github.com/casualjim/tapes/provider"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
)

const defaultSessionID = "default"

// SessionFactory creates the session for an id the server has not seen yet.
type SessionFactory func(id string) *Session

type chatRequest struct {
	Session string `json:"session"`
	Message string `json:"message"`
	Stream  bool   `json:"stream"`
}

type chatResponse struct {
	Session string `json:"session"`
	Reply   string `json:"reply"`
}

type historyResponse struct {
	Session  string             `json:"session"`
	Messages []provider.Message `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes sessions over HTTP.
//
//	POST   /chat                  {"session":"…","message":"…","stream":false}
//	GET    /sessions/{id}/history
//	GET    /sessions/{id}/events  server-sent events of every turn on the session
//	DELETE /sessions/{id}
//	GET    /healthz
//
// Streaming chats answer with newline delimited JSON stream events. Every event of every
// turn is also published on the session's topic of the feed broker.
type Server struct {
	sessions   *haxmap.Map[string, *Session]
	newSession SessionFactory
	feed       broker.Broker
	log        *slog.Logger

	rateLimit  int
	rateWindow time.Duration
}

// NewServer creates a server. A nil feed means an in-process broker.
func NewServer(factory SessionFactory, feed broker.Broker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if feed == nil {
		feed = broker.Local()
	}
	return &Server{
		sessions:   haxmap.New[string, *Session](),
		newSession: factory,
		feed:       feed,
		log:        log.With(slogx.LoggerName("chat-server")),
	}
}

// WithRateLimit caps the chat requests a single client IP may make per window. A limit of
// zero or less disables the cap.
func (s *Server) WithRateLimit(limit int, window time.Duration) *Server {
	s.rateLimit = limit
	s.rateWindow = window
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Group(func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(httprate.LimitByIP(s.rateLimit, s.rateWindow))
		}
		r.Post("/chat", s.handleChat)
	})
	r.Get("/sessions/{id}/history", s.handleHistory)
	r.Get("/sessions/{id}/events", s.handleEvents)
	r.Delete("/sessions/{id}", s.handleDelete)
	return r
}

func (s *Server) session(id string) *Session {
	sess, _ := s.sessions.GetOrCompute(id, func() *Session {
		return s.newSession(id)
	})
	return sess
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrEmptyMessage.Error()})
		return
	}
	if req.Session == "" {
		req.Session = defaultSessionID
	}
	sess := s.session(req.Session)

	if req.Stream {
		s.streamChat(w, r, sess, req.Message)
		return
	}

	reply, err := sess.Send(r.Context(), req.Message, false, s.publisher(r.Context(), sess.ID()))
	if err != nil {
		s.log.ErrorContext(r.Context(), "chat turn failed",
			slog.String("session", req.Session),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slogx.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Session: req.Session, Reply: reply.Content})
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, sess *Session, message string) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	var wrote bool
	publish := s.publisher(r.Context(), sess.ID())

	_, err := sess.Send(r.Context(), message, true, func(ev provider.StreamEvent) {
		wrote = true
		publish(ev)
		if encErr := enc.Encode(ev); encErr != nil {
			s.log.WarnContext(r.Context(), "failed to write stream event", slogx.Error(encErr))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err == nil {
		return
	}
	if !wrote {
		_ = enc.Encode(errorResponse{Error: err.Error()})
	}
	if !errors.Is(err, ErrNoResponse) {
		s.log.ErrorContext(r.Context(), "streaming chat turn failed",
			slog.String("session", sess.ID()),
			slogx.Error(err))
	}
}

func (s *Server) publisher(ctx context.Context, id string) func(provider.StreamEvent) {
	topic := s.feed.Topic(ctx, id)
	return func(ev provider.StreamEvent) {
		if err := topic.Publish(ctx, ev); err != nil {
			s.log.WarnContext(ctx, "failed to publish stream event",
				slog.String("session", id),
				slogx.Error(err))
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	events := make(chan provider.StreamEvent, 16)
	sub, err := s.feed.Topic(ctx, id).Subscribe(ctx, func(ctx context.Context, ev provider.StreamEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.WarnContext(ctx, "failed to encode stream event", slogx.Error(err))
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown session"})
		return
	}
	msgs := sess.History()
	if msgs == nil {
		msgs = []provider.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Session: id, Messages: msgs})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.sessions.Del(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
