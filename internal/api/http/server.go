package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appChallenge "github.com/tradeduel/tradeduel/internal/application/challenge"
	appLedger "github.com/tradeduel/tradeduel/internal/application/ledger"
	appStats "github.com/tradeduel/tradeduel/internal/application/stats"
	"github.com/tradeduel/tradeduel/internal/clock"
	"github.com/tradeduel/tradeduel/internal/infrastructure/sse"
)

// RequestRecorder receives per-request metrics.
type RequestRecorder interface {
	RecordRequest(method, route, status string, seconds float64)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server holds dependencies for HTTP handlers.
type Server struct {
	challengeSvc   *appChallenge.Service
	ledgerSvc      *appLedger.Service
	statsSvc       *appStats.Service
	sseHub         *sse.Hub
	clock          clock.Clock
	metrics        RequestRecorder
	metricsHandler http.Handler
	health         HealthCheck
	operatorKey    string
	validate       *validator.Validate
	logger         zerolog.Logger
}

// NewServer creates the HTTP server. metrics, metricsHandler and health may be
// nil. An empty operatorKey disables the token credit route.
func NewServer(
	challengeSvc *appChallenge.Service,
	ledgerSvc *appLedger.Service,
	statsSvc *appStats.Service,
	sseHub *sse.Hub,
	clk clock.Clock,
	metrics RequestRecorder,
	metricsHandler http.Handler,
	health HealthCheck,
	operatorKey string,
	logger zerolog.Logger,
) *Server {
	return &Server{
		challengeSvc:   challengeSvc,
		ledgerSvc:      ledgerSvc,
		statsSvc:       statsSvc,
		sseHub:         sseHub,
		clock:          clk,
		metrics:        metrics,
		metricsHandler: metricsHandler,
		health:         health,
		operatorKey:    operatorKey,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		logger:         logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.healthz)
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// Streams outlive the request timeout.
		r.Get("/events", s.eventStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/challenges", func(r chi.Router) {
				r.With(s.requireActor).Post("/", s.createChallenge)
				r.Get("/active", s.listActiveChallenges)
				r.Get("/{challengeId}", s.getChallenge)
				r.With(s.requireActor).Post("/{challengeId}/respond", s.respondChallenge)
				r.With(s.requireActor).Post("/{challengeId}/trades", s.recordTrade)
				r.Get("/{challengeId}/trades", s.listTrades)
				r.Get("/{challengeId}/standings", s.getStandings)
				r.With(s.requireActor).Post("/{challengeId}/finalize", s.finalizeChallenge)
				r.With(s.requireActor).Post("/{challengeId}/cancel", s.cancelChallenge)
			})

			r.Route("/users/{userId}", func(r chi.Router) {
				r.Get("/challenges", s.listUserChallenges)
				r.Get("/tokens", s.getTokenBalance)
				r.Get("/tokens/history", s.listTokenHistory)
				r.With(s.requireOperator).Post("/tokens/credits", s.creditTokens)
				r.Get("/tokens/reconcile", s.reconcileTokens)
				r.Get("/stats", s.getUserStats)
			})

			r.Get("/leaderboard", s.getLeaderboard)
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "UNHEALTHY", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument records request count and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
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
		s.metrics.RecordRequest(r.Method, route, strconv.Itoa(status), time.Since(start).Seconds())
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeOptionalBody treats an empty body as the zero value.
func decodeOptionalBody(r *http.Request, v interface{}) error {
	if err := decodeBody(r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// bind decodes and validates a request body, writing the error response on failure.
func (s *Server) bind(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeBody(r, v); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error())
		return false
	}
	return true
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
