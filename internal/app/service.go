// Package service provides the questionnaire workflow used by the HTTP API:
// registration, progress tracking, submission and statistics.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/drivescore/internal/adapters/repository"
	"github.com/okian/drivescore/internal/domain/analysis"
	"github.com/okian/drivescore/internal/domain/dedupe"
	"github.com/okian/drivescore/internal/domain/questionnaire"
	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/internal/domain/session"
	"github.com/okian/drivescore/internal/domain/statistics"
	"github.com/okian/drivescore/pkg/logger"
	"github.com/okian/drivescore/pkg/metrics"
)

// Sentinel kinds for workflow errors.
var (
	ErrInFlight        = errors.New("submission already in progress")
	ErrPersistence     = errors.New("persistence failed")
	ErrNoQuestionnaire = errors.New("questionnaire not configured")
)

// Service implements the API dependencies for the questionnaire.
type Service struct {
	mu sync.RWMutex

	questions questionnaire.Provider
	sessions  session.Store
	stats     *statistics.Aggregator
	results   repository.ResultStore
	analyzer  analysis.Analyzer
	engine    *scoring.Engine
	inflight  dedupe.Deduper

	now   func() time.Time
	newID func() string

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithQuestionnaire sets the question catalogue source.
func WithQuestionnaire(p questionnaire.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.questions = p
		}
	}
}

// WithSessionStore replaces the in-memory session store.
func WithSessionStore(store session.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.sessions = store
		}
	}
}

// WithStatisticsPersister sets where the statistics record lives.
func WithStatisticsPersister(p statistics.Persister) Option {
	return func(s *Service) {
		if p != nil {
			s.stats = statistics.NewAggregator(p, statistics.WithClock(func() time.Time { return s.now() }))
		}
	}
}

// WithResultStore sets where completed results are written.
func WithResultStore(r repository.ResultStore) Option {
	return func(s *Service) {
		if r != nil {
			s.results = r
		}
	}
}

// WithAnalyzer sets the narrative collaborator. Without one every submission
// uses the rule-based fallback.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(s *Service) {
		s.analyzer = a
	}
}

// WithEngine replaces the default scoring engine.
func WithEngine(e *scoring.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New constructs a Service. Sessions, statistics and results default to
// in-memory stores.
func New(opts ...Option) *Service {
	s := &Service{
		sessions: session.NewMemoryStore(),
		results:  repository.NewResultMemory(),
		engine:   scoring.NewEngine(),
		inflight: dedupe.NewInMemoryDeduper(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = statistics.NewAggregator(repository.NewStatisticsMemory(), statistics.WithClock(func() time.Time { return s.now() }))
	}
	return s
}

// Start checks that the questionnaire loads. It is safe to call twice.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.questions == nil {
		return ErrNoQuestionnaire
	}

	q, err := s.questions.Questionnaire(ctx)
	if err != nil {
		return err
	}

	s.started = true
	s.logger.Info(ctx, "questionnaire service started",
		logger.Int("sections", len(q.Sections)),
		logger.Int("questions", q.TotalQuestions()),
		logger.Bool("analyzer", s.analyzer != nil),
	)
	return nil
}

// Stop releases the result store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.results.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing result store failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "questionnaire service stopped")
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	l := s.logger
	s.mu.RUnlock()
	if l == nil {
		return logger.Get()
	}
	return l
}

func (s *Service) catalogue(ctx context.Context) (*questionnaire.Questionnaire, error) {
	if s.questions == nil {
		return nil, ErrNoQuestionnaire
	}
	return s.questions.Questionnaire(ctx)
}

// Registration is returned by Register.
type Registration struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Register validates the user, opens a session and counts it as started.
func (s *Service) Register(ctx context.Context, user session.User) (Registration, error) {
	if err := user.Validate(); err != nil {
		return Registration{}, err
	}

	sess := session.New(s.newID(), user, s.now())
	if err := s.sessions.Create(ctx, sess); err != nil {
		metrics.RecordPersistenceError("sessions")
		return Registration{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if _, err := s.stats.IncrementStarted(ctx); err != nil {
		metrics.RecordPersistenceError("statistics")
		s.log().Error(ctx, "recording started session failed", logger.String("session_id", sess.ID), logger.Error(err))
		return Registration{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	metrics.RecordRegistration()
	metrics.RecordStatisticsUpdate("started")
	s.refreshSessionGauge(ctx)
	s.log().Info(ctx, "user registered", logger.String("session_id", sess.ID))
	return Registration{SessionID: sess.ID, Message: "Registration successful"}, nil
}

// Catalogue is the questionnaire as served to a client.
type Catalogue struct {
	Questions      []questionnaire.FlatQuestion `json:"questions"`
	Answers        []questionnaire.AnswerOption `json:"answers"`
	TotalQuestions int                          `json:"total_questions"`
}

// Questionnaire returns every question shuffled. A known session id gives the
// same order on every call.
func (s *Service) Questionnaire(ctx context.Context, sessionID string) (Catalogue, error) {
	q, err := s.catalogue(ctx)
	if err != nil {
		return Catalogue{}, err
	}

	known := false
	if sessionID != "" {
		_, err := s.sessions.Get(ctx, sessionID)
		switch {
		case err == nil:
			known = true
		case !errors.Is(err, session.ErrNotFound):
			s.log().Warn(ctx, "session lookup failed, serving unseeded order",
				logger.String("session_id", sessionID), logger.Error(err))
		}
	}

	flat := questionnaire.ShuffleFor(q.Flatten(), sessionID, known)
	return Catalogue{Questions: flat, Answers: q.Answers, TotalQuestions: len(flat)}, nil
}

// SaveProgress stores partial answers and the current position. Returns the
// save time.
func (s *Service) SaveProgress(ctx context.Context, sessionID string, answers scoring.RawAnswers, index int) (time.Time, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return time.Time{}, err
	}

	now := s.now()
	sess.SaveProgress(answers, index, now)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return time.Time{}, err
	}
	s.log().Debug(ctx, "progress saved",
		logger.String("session_id", sessionID),
		logger.Int("answers", len(sess.Answers)),
		logger.Int("index", index),
	)
	return now, nil
}

// Progress is a resumable snapshot of an open session.
type Progress struct {
	User                 session.User       `json:"user"`
	Answers              scoring.RawAnswers `json:"answers"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	LastSaved            *time.Time         `json:"last_saved"`
}

// LoadProgress returns the saved state of an open session.
func (s *Service) LoadProgress(ctx context.Context, sessionID string) (Progress, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Progress{}, err
	}
	if sess.Completed {
		return Progress{}, session.ErrCompleted
	}
	return Progress{
		User:                 sess.User,
		Answers:              sess.Answers,
		CurrentQuestionIndex: sess.CurrentQuestionIndex,
		LastSaved:            sess.LastSaved,
	}, nil
}

// Submission is the outcome of a successful Submit.
type Submission struct {
	User        session.User    `json:"user"`
	Scores      scoring.Scores  `json:"scores"`
	Analysis    analysis.Result `json:"llm_analysis"`
	CompletedAt time.Time       `json:"completed_at"`
	ResultID    string          `json:"result_id"`
}

// Submit validates and scores the answers, obtains the narrative, closes the
// session, stores the result and updates statistics. Validation failures
// change nothing. The session is closed before anything is counted, and is
// reopened if the result cannot be stored, so a retry never counts twice.
func (s *Service) Submit(ctx context.Context, sessionID string, raw scoring.RawAnswers) (Submission, error) {
	if sessionID == "" {
		return Submission{}, session.ErrNotFound
	}
	if s.inflight.SeenAndRecord(ctx, sessionID) {
		metrics.RecordSubmission("rejected")
		return Submission{}, ErrInFlight
	}
	metrics.UpdateSubmissionsInFlight(s.inflight.Size())
	defer func() {
		s.inflight.Unrecord(ctx, sessionID)
		metrics.UpdateSubmissionsInFlight(s.inflight.Size())
	}()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Submission{}, err
	}
	if sess.Completed {
		metrics.RecordSubmission("rejected")
		return Submission{}, session.ErrCompleted
	}

	q, err := s.catalogue(ctx)
	if err != nil {
		return Submission{}, err
	}

	answers, err := scoring.Validate(raw, q.Sections)
	if err != nil {
		metrics.RecordValidationFailure()
		metrics.RecordSubmission("invalid")
		s.log().Info(ctx, "submission rejected", logger.String("session_id", sessionID), logger.Error(err))
		return Submission{}, err
	}

	scores := s.engine.Calculate(answers, q.Sections)
	out := analysis.Resolve(ctx, s.analyzer, scores)
	s.recordAnalysis(ctx, sessionID, out)

	now := s.now()
	if err := sess.Complete(now); err != nil {
		return Submission{}, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return Submission{}, s.persistenceFailure(ctx, "sessions", sessionID, err)
	}

	ref, err := s.results.Save(ctx, repository.Result{
		Timestamp: now,
		User:      sess.User,
		Scores:    scores,
		Analysis:  out.Result,
	})
	if err != nil {
		s.reopen(ctx, sess)
		return Submission{}, s.persistenceFailure(ctx, "results", sessionID, err)
	}

	// The result is stored, so the session stays closed even when the
	// aggregate cannot be updated.
	if _, err := s.stats.RecordCompletion(ctx, scores.Values(), out.Result.DrivingStyle); err != nil {
		return Submission{}, s.persistenceFailure(ctx, "statistics", sessionID, err)
	}
	metrics.RecordStatisticsUpdate("completion")

	metrics.RecordSubmission("accepted")
	s.log().Info(ctx, "submission completed",
		logger.String("session_id", sessionID),
		logger.String("result", ref),
		logger.String("analysis_source", string(out.Source)),
	)
	return Submission{User: sess.User, Scores: scores, Analysis: out.Result, CompletedAt: now, ResultID: ref}, nil
}

// reopen puts a closed session back so the client can retry.
func (s *Service) reopen(ctx context.Context, sess *session.Session) {
	sess.Reopen()
	if err := s.sessions.Save(ctx, sess); err != nil {
		metrics.RecordPersistenceError("sessions")
		s.log().Error(ctx, "reopening session failed", logger.String("session_id", sess.ID), logger.Error(err))
	}
}

// Result returns a stored result by the id Submit reported.
func (s *Service) Result(ctx context.Context, id string) (repository.Result, error) {
	r, err := s.results.Get(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return repository.Result{}, err
	case err != nil:
		metrics.RecordPersistenceError("results")
		return repository.Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return r, nil
}

func (s *Service) recordAnalysis(ctx context.Context, sessionID string, out analysis.Outcome) {
	metrics.RecordAnalysis(string(out.Source), out.Reason)
	if out.Latency > 0 {
		metrics.RecordAnalysisLatency(float64(out.Latency.Microseconds()) / 1000)
	}
	if out.Source == analysis.SourceFallback && out.Reason != "not_configured" {
		s.log().Warn(ctx, "analysis collaborator failed, using fallback",
			logger.String("session_id", sessionID),
			logger.String("reason", out.Reason),
			logger.Error(out.Err),
		)
	}
}

func (s *Service) persistenceFailure(ctx context.Context, store, sessionID string, err error) error {
	metrics.RecordPersistenceError(store)
	metrics.RecordSubmission("error")
	s.log().Error(ctx, "persisting submission failed",
		logger.String("store", store),
		logger.String("session_id", sessionID),
		logger.Error(err),
	)
	return fmt.Errorf("%w: %s: %w", ErrPersistence, store, err)
}

// Statistics returns the aggregate record.
func (s *Service) Statistics(ctx context.Context) (statistics.Statistics, error) {
	st, err := s.stats.Read(ctx)
	if err != nil {
		metrics.RecordPersistenceError("statistics")
		return statistics.Statistics{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return st, nil
}

// ActiveSessions counts stored sessions.
func (s *Service) ActiveSessions(ctx context.Context) (int, error) {
	return s.sessions.Count(ctx)
}

func (s *Service) refreshSessionGauge(ctx context.Context) {
	if n, err := s.sessions.Count(ctx); err == nil {
		metrics.UpdateActiveSessions(n)
	}
}
