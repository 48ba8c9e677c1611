package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	wsadapter "cyberquest/adapters/websocket"
	"cyberquest/analytics"
	"cyberquest/core"
	"cyberquest/engine"
	"cyberquest/leaderboard"
	"cyberquest/realtime"
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowedOrigins enables CORS for the given origins (use "*" for any).
	AllowedOrigins []string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	Logger         *slog.Logger
}

type server struct {
	svc      *engine.Service
	hub      *realtime.Hub
	funnel   *analytics.Funnel
	validate *validator.Validate
	logger   *slog.Logger
	origins  []string
}

// NewRouter builds an http.Handler exposing the CyberQuest REST API and
// WebSocket stream. Routes (under the prefix):
//   - GET    /healthz
//   - GET    /catalog
//   - POST   /sessions
//   - GET    /sessions/{id}, DELETE /sessions/{id}
//   - PUT    /sessions/{id}/player
//   - POST   /sessions/{id}/scores
//   - GET    /sessions/{id}/levels/{level}
//   - POST   /sessions/{id}/levels/{level}/complete
//   - POST   /sessions/{id}/reset
//   - POST   /sessions/{id}/submit
//   - GET    /leaderboard, POST /leaderboard, GET /leaderboard/status
//   - GET    /analytics
//   - WS     /ws
//
// hub and funnel are optional; their routes are omitted when nil.
func NewRouter(svc *engine.Service, hub *realtime.Hub, funnel *analytics.Funnel, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &server{
		svc:      svc,
		hub:      hub,
		funnel:   funnel,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   opts.Logger,
		origins:  opts.AllowedOrigins,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(s.recoverer)
	r.Use(withReportingTags)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	routes := func(r chi.Router) {
		r.Get("/healthz", s.healthCheck)

		r.Group(func(r chi.Router) {
			if len(opts.APIKeys) > 0 {
				r.Use(withAPIKeyAuth(opts.APIKeys))
			}
			if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
				r.Use(withRateLimit(newLimiterStore(opts.RateLimitRPM, opts.RateLimitBurst)))
			}

			r.Get("/catalog", s.catalog)

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", s.startSession)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getSession)
					r.Delete("/", s.endSession)
					r.Put("/player", s.setPlayer)
					r.Post("/scores", s.addScore)
					r.Get("/levels/{level}", s.getLevel)
					r.Post("/levels/{level}/complete", s.completeLevel)
					r.Post("/reset", s.resetSession)
					r.Post("/submit", s.submitSession)
				})
			})

			r.Route("/leaderboard", func(r chi.Router) {
				r.Get("/", s.topScores)
				r.Post("/", s.saveScore)
				r.Get("/status", s.leaderboardStatus)
			})

			if s.funnel != nil {
				r.Get("/analytics", s.analytics)
			}
			if s.hub != nil {
				r.Handle("/ws", wsadapter.Handler(s.hub, wsadapter.Options{AllowedOrigins: s.origins, Logger: s.logger}))
			}
		})
	}
	if prefix := routePrefix(opts.PathPrefix); prefix != "" {
		r.Route(prefix, routes)
	} else {
		routes(r)
	}
	return r
}

func routePrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix != "" && prefix[0] != '/' {
		prefix = "/" + prefix
	}
	return prefix
}

// Request bodies

type startSessionRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar" validate:"omitempty,max=32"`
}

type setPlayerRequest struct {
	Name   string `json:"name" validate:"required"`
	Avatar string `json:"avatar" validate:"omitempty,max=32"`
}

type addScoreRequest struct {
	Category core.Category `json:"category" validate:"required"`
	Delta    *int64        `json:"delta" validate:"required"`
}

type completeLevelRequest struct {
	Stars *int `json:"stars" validate:"required,min=0,max=3"`
}

type submitRequest struct {
	Name string `json:"name"`
}

type saveScoreRequest struct {
	Name  string   `json:"name" validate:"required"`
	Score *float64 `json:"score" validate:"required"`
}

// Handlers

func (s *server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":   "healthy",
		"sessions": s.svc.SessionCount(),
		"checks": map[string]any{
			"leaderboard": "ok",
		},
	}
	// The game keeps working without the leaderboard, so an outage only degrades.
	if !s.svc.LeaderboardAvailable(r.Context()) {
		status["status"] = "degraded"
		status["checks"].(map[string]any)["leaderboard"] = "unavailable"
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *server) catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"levels": s.svc.Catalog()})
}

func (s *server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.svc.StartSession(r.Context(), req.Name, req.Avatar)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Session(r.Context(), sessionID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) endSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.EndSession(r.Context(), sessionID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) setPlayer(w http.ResponseWriter, r *http.Request) {
	var req setPlayerRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.svc.SetPlayer(r.Context(), sessionID(r), req.Name, req.Avatar)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) addScore(w http.ResponseWriter, r *http.Request) {
	var req addScoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	categoryTotal, total, err := s.svc.AddScore(r.Context(), sessionID(r), req.Category, *req.Delta)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":         total,
		"category":      req.Category,
		"categoryTotal": categoryTotal,
	})
}

func (s *server) getLevel(w http.ResponseWriter, r *http.Request) {
	level, ok := levelID(w, r)
	if !ok {
		return
	}
	l, err := s.svc.Level(r.Context(), sessionID(r), level)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *server) completeLevel(w http.ResponseWriter, r *http.Request) {
	level, ok := levelID(w, r)
	if !ok {
		return
	}
	var req completeLevelRequest
	if !s.decode(w, r, &req) {
		return
	}
	unlocked, st, err := s.svc.CompleteLevel(r.Context(), sessionID(r), level, *req.Stars)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unlockedNext": unlocked, "session": st})
}

func (s *server) resetSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.ResetSession(r.Context(), sessionID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) submitSession(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := s.svc.SubmitSession(r.Context(), sessionID(r), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *server) topScores(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.svc.TopScores(r.Context(), leaderboard.ClampLimit(limit))
	resp := map[string]any{"entries": entries}
	if err != nil {
		s.logger.WarnContext(r.Context(), "serving empty leaderboard", "error", err)
		resp["degraded"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) saveScore(w http.ResponseWriter, r *http.Request) {
	var req saveScoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := s.svc.SaveScore(r.Context(), req.Name, *req.Score)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *server) leaderboardStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"available": s.svc.LeaderboardAvailable(r.Context())})
}

func (s *server) analytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.funnel.Snapshot())
}

// Helpers

func sessionID(r *http.Request) core.SessionID {
	return core.SessionID(strings.TrimSpace(chi.URLParam(r, "id")))
}

func levelID(w http.ResponseWriter, r *http.Request) (core.LevelID, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_level", "level must be an integer", nil)
		return 0, false
	}
	return core.LevelID(n), true
}

// decode reads an optional JSON body into dst and validates it. An empty
// body leaves dst at its zero value.
func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]map[string]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, map[string]string{"field": fe.Field(), "rule": fe.Tag()})
			}
			writeError(w, http.StatusBadRequest, "invalid_input", "request validation failed", details)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
		return false
	}
	return true
}

// fail maps domain errors onto status codes.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, engine.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error(), nil)
	case errors.Is(err, core.ErrUnknownLevel):
		writeError(w, http.StatusNotFound, "level_not_found", err.Error(), nil)
	case errors.Is(err, core.ErrOverflow):
		writeError(w, http.StatusUnprocessableEntity, "overflow", err.Error(), nil)
	case errors.Is(err, core.ErrUnavailable), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "leaderboard_unavailable", "the leaderboard could not be reached, try again later", nil)
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, apiError{Code: code, Message: msg, Details: details})
}
