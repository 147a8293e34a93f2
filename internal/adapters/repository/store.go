// Package repository persists completed results and the statistics record.
package repository

import (
	"context"
	"strings"
	"time"

	"github.com/okian/drivescore/internal/domain/analysis"
	"github.com/okian/drivescore/internal/domain/scoring"
	"github.com/okian/drivescore/internal/domain/session"
)

// Result is one completed assessment as written to storage.
type Result struct {
	Timestamp time.Time       `json:"timestamp"`
	User      session.User    `json:"user"`
	Scores    scoring.Scores  `json:"scores"`
	Analysis  analysis.Result `json:"llm_analysis"`
}

// ResultStore writes completed results.
type ResultStore interface {
	// Save stores r and returns a reference that Get accepts.
	Save(ctx context.Context, r Result) (string, error)

	// Get loads a stored result. Returns ErrNotFound for unknown refs.
	Get(ctx context.Context, ref string) (Result, error)

	Close() error
}

// safeEmail turns an email address into a file name fragment.
func safeEmail(email string) string {
	return strings.NewReplacer("@", "_at_", ".", "_").Replace(email)
}
