// Package server exposes the chat engine over HTTP, a streaming WebSocket
// and a gRPC health service.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/travel-memory/engine"
	"github.com/becomeliminal/travel-memory/llm"
	"github.com/becomeliminal/travel-memory/observability"
)

// Config configures the HTTP surface.
type Config struct {
	// AllowAnyOrigin accepts websocket upgrades from any browser origin.
	// Otherwise only same-host origins (or none) are accepted.
	AllowAnyOrigin bool

	// StoreKind is reported by /health, e.g. "chromem".
	StoreKind string
}

// Server serves the chat API.
type Server struct {
	engine   *engine.Engine
	metrics  *observability.Metrics
	cfg      Config
	upgrader websocket.Upgrader
}

// New creates a server around eng. metrics may be nil.
func New(eng *engine.Engine, metrics *observability.Metrics, cfg Config) *Server {
	return &Server{
		engine:  eng,
		metrics: metrics,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Post("/api/chat", s.handleChat)
	r.Get("/api/chat/ws", s.handleChatWS)
	r.Get("/api/stats", s.handleOverview)
	r.Get("/api/memory/{user_id}", s.handleStats)
	r.Delete("/api/memory/{user_id}", s.handleForget)
	r.Get("/api/memory/{user_id}/history", s.handleHistory)
	r.Get("/api/memory/{user_id}/conversations", s.handleConversations)

	return r
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	reply, err := s.engine.Chat(r.Context(), req.UserID, req.Message)
	if err != nil {
		status, code := chatErrorStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

// chatErrorStatus maps a chat failure to an HTTP status and error code.
func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrEmptyUser), errors.Is(err, engine.ErrEmptyMessage):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, llm.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, llm.ErrProvider), errors.Is(err, llm.ErrMalformed):
		return http.StatusBadGateway, "completion_failed"
	default:
		return http.StatusServiceUnavailable, "unavailable"
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Stats(r.Context(), chi.URLParam(r, "user_id")))
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Overview(r.Context()))
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if err := s.engine.Forget(r.Context(), userID); err != nil {
		if errors.Is(err, engine.ErrEmptyUser) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "wipe_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "deleted",
		"user_id": userID,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	turns := []any{}
	for _, ex := range s.engine.History(userID) {
		for _, t := range ex.Turns() {
			turns = append(turns, t)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"turns":   turns,
	})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":       userID,
		"conversations": s.engine.Conversations(userID),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"provider":       s.engine.Provider(),
		"memory_store":   s.cfg.StoreKind,
		"recall_enabled": s.engine.RecallEnabled(),
		"active_users":   len(s.engine.ActiveUsers()),
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().Str("component", "server").
			Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", ww.Status()).Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
