// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/drivescore/internal/adapters/repository"
	service "github.com/okian/drivescore/internal/app"
	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/internal/domain/session"
	"github.com/okian/drivescore/internal/domain/statistics"
	"github.com/okian/drivescore/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Register(ctx context.Context, user session.User) (service.Registration, error)
	Questionnaire(ctx context.Context, sessionID string) (service.Catalogue, error)
	SaveProgress(ctx context.Context, sessionID string, answers scoring.RawAnswers, index int) (time.Time, error)
	LoadProgress(ctx context.Context, sessionID string) (service.Progress, error)
	Submit(ctx context.Context, sessionID string, answers scoring.RawAnswers) (service.Submission, error)
	Statistics(ctx context.Context) (statistics.Statistics, error)
	Result(ctx context.Context, id string) (repository.Result, error)
}

// User-facing messages.
const (
	msgNotFound         = "Endpoint not found"
	msgInternal         = "Internal server error"
	msgInvalidBody      = "Invalid JSON body"
	msgInvalidSession   = "Invalid session ID"
	msgSessionNotFound  = "Session not found"
	msgAlreadyCompleted = "Questionnaire already completed"
	msgInFlight         = "Submission already in progress"
	msgResultNotFound   = "Result not found"
)

// Server wires HTTP routes for the questionnaire API.
type Server struct {
	deps   Dependencies
	logger logger.Logger
	now    func() time.Time
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the logger used for request failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time reported by the health endpoint.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", MetricsMiddleware(s.handleHealth, "health"))
	mux.HandleFunc("POST /api/register", MetricsMiddleware(s.handleRegister, "register"))
	mux.HandleFunc("GET /api/questionnaire", MetricsMiddleware(s.handleQuestionnaire, "questionnaire"))
	mux.HandleFunc("POST /api/save-progress", MetricsMiddleware(s.handleSaveProgress, "save_progress"))
	mux.HandleFunc("GET /api/load-progress/{session_id}", MetricsMiddleware(s.handleLoadProgress, "load_progress"))
	mux.HandleFunc("POST /api/submit", MetricsMiddleware(s.handleSubmit, "submit"))
	mux.HandleFunc("GET /api/statistics", MetricsMiddleware(s.handleStatistics, "statistics"))
	mux.HandleFunc("GET /api/results/{result_id}", MetricsMiddleware(s.handleResult, "result"))
	mux.Handle("GET /metrics", MetricsHandler())
	mux.HandleFunc("/", MetricsMiddleware(handleNotFound, "not_found"))
}

// Handler returns every route behind the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return CORS(mux)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, msgNotFound)
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// failure translates a workflow error to a response. notFound is the status
// and message used for unknown sessions, which differ per route.
func (s *Server) failure(w http.ResponseWriter, r *http.Request, op string, err error, notFound int, notFoundMsg string) {
	var verr *scoring.ValidationError
	var ferr *session.FieldError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.As(err, &ferr):
		writeError(w, http.StatusBadRequest, ferr.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, notFound, notFoundMsg)
	case errors.Is(err, session.ErrCompleted):
		writeError(w, http.StatusBadRequest, msgAlreadyCompleted)
	case errors.Is(err, service.ErrInFlight):
		writeError(w, http.StatusConflict, msgInFlight)
	default:
		s.logger.Error(r.Context(), "request failed", logger.Error(WrapKind(op, ErrInternal, err)))
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func (s *Server) badBody(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Debug(r.Context(), "rejecting request body", logger.Error(WrapKind(op, ErrBadRequest, err)))
	writeError(w, http.StatusBadRequest, msgInvalidBody)
}
