// Package session defines questionnaire sessions and their storage contract.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/okian/drivescore/internal/domain/scoring"
)

// Sentinel kinds for session errors.
var (
	ErrNotFound     = errors.New("session not found")
	ErrCompleted    = errors.New("questionnaire already completed")
	ErrInvalidUser  = errors.New("invalid registration")
	ErrStoreFailure = errors.New("session store failure")
)

// User is the registration payload.
type User struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Gender   string `json:"gender"`
	AgeGroup string `json:"age_group"`
}

// FieldError names a required registration field that was left empty.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string { return "Missing required field: " + e.Field }

// Is makes errors.Is(err, ErrInvalidUser) hold.
func (e *FieldError) Is(target error) bool { return target == ErrInvalidUser }

// Validate reports the first missing required field, in registration form order.
func (u User) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"full_name", u.FullName},
		{"email", u.Email},
		{"gender", u.Gender},
		{"age_group", u.AgeGroup},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &FieldError{Field: f.name}
		}
	}
	return nil
}

// Session is one user's pass through the questionnaire.
type Session struct {
	ID                   string             `json:"id"`
	User                 User               `json:"user"`
	CreatedAt            time.Time          `json:"created_at"`
	Answers              scoring.RawAnswers `json:"answers"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	Completed            bool               `json:"completed"`
	LastSaved            *time.Time         `json:"last_saved,omitempty"`
	CompletedAt          *time.Time         `json:"completed_at,omitempty"`
}

// New creates an open session with no answers.
func New(id string, user User, now time.Time) *Session {
	return &Session{
		ID:        id,
		User:      user,
		CreatedAt: now,
		Answers:   scoring.RawAnswers{},
	}
}

// SaveProgress replaces the stored answers and position.
func (s *Session) SaveProgress(answers scoring.RawAnswers, index int, now time.Time) {
	if answers == nil {
		answers = scoring.RawAnswers{}
	}
	s.Answers = answers
	s.CurrentQuestionIndex = index
	s.LastSaved = &now
}

// Complete marks the session done. Completing twice is an error.
func (s *Session) Complete(now time.Time) error {
	if s.Completed {
		return ErrCompleted
	}
	s.Completed = true
	s.CompletedAt = &now
	return nil
}

// Reopen undoes Complete.
func (s *Session) Reopen() {
	s.Completed = false
	s.CompletedAt = nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	out := *s
	out.Answers = make(scoring.RawAnswers, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	if s.LastSaved != nil {
		t := *s.LastSaved
		out.LastSaved = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Store keeps sessions by id. Get returns ErrNotFound for unknown ids.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Count(ctx context.Context) (int, error)
}
