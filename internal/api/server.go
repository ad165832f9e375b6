// Package api exposes the tracking service over HTTP.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/apperrors"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility-tracker/services"
)

const serviceName = "senso-visibility-tracker"

const maxBodyBytes = 1 << 20

type Server struct {
	tracking services.TrackingService
	router   chi.Router
}

// NewServer builds the router. extra handlers (for example the Inngest serve
// handler) are mounted under their path.
func NewServer(tracking services.TrackingService, extra map[string]http.Handler) *Server {
	s := &Server{tracking: tracking, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api/tracking", func(r chi.Router) {
		r.Post("/start", s.handleStartTracking)
		r.Get("/{sessionId}/status", s.handleSessionStatus)
		r.Post("/{sessionId}/stop", s.handleStopTracking)
		r.Post("/{sessionId}/resubmit", s.handleResubmit)
	})

	s.router.Route("/api/results", func(r chi.Router) {
		r.Get("/recent", s.handleRecentSessions)
		r.Get("/{sessionId}", s.handleResults)
		r.Get("/{sessionId}/leaderboard", s.handleLeaderboard)
		r.Get("/{sessionId}/competitive-matrix", s.handleCompetitiveMatrix)
		r.Get("/{sessionId}/prompts", s.handlePrompts)
		r.Get("/{sessionId}/prompt/{promptId}", s.handlePromptDetail)
		r.Get("/{sessionId}/search", s.handleSearch)
		r.Delete("/{sessionId}/delete", s.handleDeleteSession)
	})

	for pattern, handler := range extra {
		s.router.Handle(pattern, handler)
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Resource not found"})
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": serviceName, "status": "running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStartTracking(w http.ResponseWriter, r *http.Request) {
	var req services.StartTrackingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, apperrors.NewValidationError("invalid JSON body"))
		return
	}

	result, err := s.tracking.StartTracking(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":    result.SessionID,
		"status":       "started",
		"totalPrompts": result.TotalPrompts,
		"message":      "Tracking session started successfully",
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	status, err := s.tracking.GetSessionStatus(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStopTracking(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	session, err := s.tracking.StopTracking(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":     session.ID,
		"status":        "stopped",
		"sessionStatus": session.Status,
		"message":       "Tracking session stopped",
	})
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	if err := s.tracking.Resubmit(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessionId": sessionID, "status": "queued"})
}

func (s *Server) handleRecentSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := s.tracking.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	results, err := s.tracking.GetResults(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	leaderboard, err := s.tracking.GetLeaderboard(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": leaderboard})
}

func (s *Server) handleCompetitiveMatrix(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	matrix, err := s.tracking.GetCompetitiveMatrix(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matrix)
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	prompts, err := s.tracking.GetPrompts(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": prompts})
}

func (s *Server) handlePromptDetail(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	promptID, err := uuid.Parse(chi.URLParam(r, "promptId"))
	if err != nil {
		writeError(w, apperrors.NewNotFoundError("Prompt not found"))
		return
	}
	detail, err := s.tracking.GetPromptDetail(r.Context(), sessionID, promptID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := s.tracking.SearchResponses(r.Context(), sessionID, r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hits": hits})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	if err := s.tracking.DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Session deleted successfully"})
}

// sessionParam parses {sessionId}; a malformed id cannot name a session, so it is a 404
func sessionParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, apperrors.NewNotFoundError("Session not found"))
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(err error) int {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeNotReady:
		return http.StatusConflict
	case apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("component", "API").Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": apperrors.Message(err)})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Str("component", "API").Msg("failed to write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()

		log.Info().
			Str("component", "API").
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}
