// Package analysis produces the narrative driving-style description for a set
// of domain scores, either from an external collaborator or from fixed rules.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/drivescore/internal/domain/scoring"
)

// Sentinel kinds for collaborator failures.
var (
	ErrNotConfigured = errors.New("analysis collaborator not configured")
	ErrMalformed     = errors.New("malformed analysis response")
	ErrUnavailable   = errors.New("analysis collaborator unavailable")
)

// Result is the narrative returned to the user.
type Result struct {
	DrivingStyle      string `json:"driving_style"`
	RecommendedCourse string `json:"recommended_course"`
}

// Validate reports a malformed result when a required field is empty.
func (r Result) Validate() error {
	switch {
	case strings.TrimSpace(r.DrivingStyle) == "":
		return fmt.Errorf("%w: missing driving_style", ErrMalformed)
	case strings.TrimSpace(r.RecommendedCourse) == "":
		return fmt.Errorf("%w: missing recommended_course", ErrMalformed)
	}
	return nil
}

// Analyzer is the external narrative generator. Implementations may fail in any
// way; callers go through Resolve.
type Analyzer interface {
	Analyze(ctx context.Context, scores scoring.Scores) (Result, error)
}

// Source says who produced a Result.
type Source string

// Result sources.
const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Outcome describes how Resolve obtained its Result.
type Outcome struct {
	Result  Result
	Source  Source
	Reason  string // fallback reason, empty for collaborator results
	Err     error  // collaborator error that triggered the fallback
	Latency time.Duration
}

// Resolve asks the analyzer and substitutes Fallback on any failure, including a
// nil analyzer. It never returns an error.
func Resolve(ctx context.Context, a Analyzer, scores scoring.Scores) Outcome {
	if a == nil {
		return fallbackOutcome(scores, ErrNotConfigured, 0)
	}

	start := time.Now()
	res, err := a.Analyze(ctx, scores)
	latency := time.Since(start)
	if err == nil {
		err = res.Validate()
	}
	if err != nil {
		return fallbackOutcome(scores, err, latency)
	}
	return Outcome{Result: res, Source: SourceLLM, Latency: latency}
}

func fallbackOutcome(scores scoring.Scores, err error, latency time.Duration) Outcome {
	return Outcome{
		Result:  Fallback(scores),
		Source:  SourceFallback,
		Reason:  reason(err),
		Err:     err,
		Latency: latency,
	}
}

// reason maps a collaborator error to a short metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unavailable"
	}
}

// Prompt renders scores as the user message sent to the collaborator.
func Prompt(scores scoring.Scores) string {
	var b strings.Builder
	b.WriteString("Analyze this driver's assessment results:\n\n")
	for _, name := range scores.Names() {
		ds, _ := scores.Get(name)
		fmt.Fprintf(&b, "- %s: %.2f/4.0 (%s - %s)\n", name, ds.Score, ds.Category, ds.CategoryLabel)
	}
	b.WriteString("\nBased on these results, provide:\n" +
		"1. A clear 2-3 sentence description of their overall driving style\n" +
		"2. A specific recommended improvement course with a brief description\n\n" +
		"Consider their strengths and areas for improvement. Be constructive and encouraging.")
	return b.String()
}

// SystemPrompt instructs the collaborator on tone and response shape.
const SystemPrompt = "You are an expert driving instructor analyzing a driver's assessment results. " +
	"Provide clear, constructive feedback about their driving style and recommend " +
	"an appropriate improvement course. Return your response as JSON with two fields: " +
	"'driving_style' (2-3 sentences) and 'recommended_course' (specific course name and brief description)."
