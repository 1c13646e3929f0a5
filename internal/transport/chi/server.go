package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/db"
	"github.com/MARYCOMPLEX/food-agent/internal/domain"
	"github.com/MARYCOMPLEX/food-agent/internal/usecase/stream"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the search session API: submit a turn, follow its event
// stream, recover after a disconnect, and browse turn history.
type Server struct {
	sessions      *stream.Manager
	pinger        db.Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. pinger may be nil; health then
// only reports the process itself.
func NewServer(sessions *stream.Manager, pinger db.Pinger, logger *zap.Logger) *Server {
	s := &Server{
		sessions: sessions,
		pinger:   pinger,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, "empty_query"),
		sentinelHandler(domain.ErrSessionBusy, http.StatusConflict, "session_busy"),
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found"),
		sentinelHandler(domain.ErrTurnNotFound, http.StatusNotFound, "turn_not_found"),
	}
	return s
}

// Routes mounts the API onto a router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/search", s.submitTurn)
	r.Get("/v1/search/stream/{sessionID}", s.streamEvents)
	r.Get("/v1/search/recover/{sessionID}", s.recoverSession)
	r.Get("/v1/search/{sessionID}/turns", s.listTurns)
	r.Get("/v1/search/{sessionID}/turns/{turnID}", s.getTurn)
	r.Delete("/v1/search/{sessionID}", s.resetSession)
	r.Get("/health", s.healthCheck)
	r.Get("/metrics", s.metricsHandler)
}

type submitRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query"`
}

type submitResponse struct {
	SessionID string `json:"session_id"`
	TurnID    int    `json:"turn_id"`
	StreamURL string `json:"stream_url"`
}

// submitTurn handles POST /v1/search. One endpoint covers both a new
// session (empty session_id) and a follow-up turn.
func (s *Server) submitTurn(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	ref, err := s.sessions.SubmitTurn(r.Context(), req.SessionID, req.Query)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		SessionID: ref.SessionID,
		TurnID:    ref.TurnID,
		StreamURL: "/v1/search/stream/" + ref.SessionID,
	})
}

// streamEvents handles GET /v1/search/stream/{sessionID}. Replays from
// lastEventIndex (query param or Last-Event-ID header), then follows live.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	from := int64(0)
	if raw := lastEventIndex(r); raw != "" {
		last, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "lastEventIndex must be an integer")
			return
		}
		from = last + 1
	}

	events, err := s.sessions.Subscribe(r.Context(), sessionID, from)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	serveSSE(w, r, events, s.logger)
}

// recoverSession handles GET /v1/search/recover/{sessionID}.
func (s *Server) recoverSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Recover(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// listTurns handles GET /v1/search/{sessionID}/turns.
func (s *Server) listTurns(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	turns, err := s.sessions.Turns(r.Context(), sessionID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// getTurn handles GET /v1/search/{sessionID}/turns/{turnID}.
func (s *Server) getTurn(w http.ResponseWriter, r *http.Request) {
	turnID, err := strconv.Atoi(chi.URLParam(r, "turnID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "turn id must be an integer")
		return
	}

	rec, err := s.sessions.Turn(r.Context(), chi.URLParam(r, "sessionID"), turnID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// resetSession handles DELETE /v1/search/{sessionID}.
func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Reset(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			checks["redis"] = "unhealthy"
			healthy = false
		} else {
			checks["redis"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// metricsHandler handles GET /metrics.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func lastEventIndex(r *http.Request) string {
	if v := r.URL.Query().Get("lastEventIndex"); v != "" {
		return v
	}
	return r.Header.Get("Last-Event-ID")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuery,
		domain.ErrSessionBusy,
		domain.ErrSessionNotFound,
		domain.ErrTurnNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
