// Package api provides the HTTP server for studyforge.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studyforge/studyforge/internal/app/activity"
	"github.com/studyforge/studyforge/internal/app/challenge"
	"github.com/studyforge/studyforge/internal/app/scoreboard"
	"github.com/studyforge/studyforge/internal/app/tasks"
	"github.com/studyforge/studyforge/internal/domain"
	"github.com/studyforge/studyforge/internal/health"
	"github.com/studyforge/studyforge/internal/infra/metrics"
)

// Header names carrying the caller's identity.
const (
	UserHeader  = "X-User-ID"
	AdminHeader = "X-Admin-Token"
)

// Config configures the HTTP layer.
type Config struct {
	AdminToken      string        // Empty disables the admin routes
	RequestTimeout  time.Duration // Per-request deadline
	GenerateTimeout time.Duration // Deadline of synchronous admin generation
	XPBoardSize     int           // Entries on the XP leaderboard
}

// Services are the application services the routes call into.
type Services struct {
	Challenges *challenge.Engine
	Activity   *activity.Recorder
	Scores     *scoreboard.Service
	Tasks      *tasks.Runner
	Health     *health.Checker // optional
}

// Server is the studyforge HTTP API server.
type Server struct {
	cfg            Config
	svc            Services
	log            *slog.Logger
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(cfg Config, svc Services, log *slog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 2 * time.Minute
	}
	if cfg.XPBoardSize <= 0 {
		cfg.XPBoardSize = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, svc: svc, log: log.With(slog.String("component", "api"))}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
			r.Use(requireUser)

			r.Get("/challenges", s.handleAllChallenges)
			r.Get("/challenges/today", s.handleTodayChallenges)
			r.Route("/challenges/{id}", func(r chi.Router) {
				r.Get("/progress", s.handleProgress)
				r.Get("/leaderboard", s.handleLeaderboard)
				r.Post("/join", s.handleJoin)
				r.Post("/leave", s.handleLeave)
				r.Post("/start", s.handleStart)
				r.Post("/complete", s.handleComplete)
				r.Post("/quizzes/{quizID}/complete", s.handleCompleteQuiz)
			})

			r.Post("/activity", s.handleActivity)
			r.Get("/xp", s.handleXP)
			r.Get("/xp/leaderboard", s.handleXPLeaderboard)
		})

		// Admin routes bound their own deadline; generation can outlast RequestTimeout.
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/challenges/generate/{cadence}", s.handleGenerate)
			r.Delete("/challenges/{id}", s.handleDeleteChallenge)
			r.Get("/jobs/{id}", s.handleJob)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.svc.Health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.svc.Health.Statuses(),
	})
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    kind,
		},
	})
}

// writeDomainError maps an error to its HTTP status by kind.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	case errors.Is(err, tasks.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		s.log.Error("request failed",
			slog.String("method", r.Method), slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decode reads a JSON body into v. An empty body, chunked or not, leaves v
// untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return errors.Join(domain.ErrInvalidInput, err)
	}
	return nil
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// observe records request latency by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(started)
		metrics.RequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
		s.log.Debug("request",
			slog.String("method", r.Method), slog.String("route", route),
			slog.Int("status", status), slog.Duration("elapsed", elapsed))
	})
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader+", "+AdminHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
