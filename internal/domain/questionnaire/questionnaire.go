// Package questionnaire models the question catalogue and its per-session presentation.
package questionnaire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Sentinel kinds for questionnaire errors.
var (
	ErrLoad    = errors.New("load questionnaire failed")
	ErrInvalid = errors.New("invalid questionnaire")
)

// Question is a single Likert item. Reverse flips the answer scale.
type Question struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Reverse bool   `json:"reverse,omitempty"`
}

// Section groups questions; its Name selects the scored domain.
type Section struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// AnswerOption is one point of the answer scale shown to users.
type AnswerOption struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// Questionnaire is the full catalogue as stored on disk.
type Questionnaire struct {
	Sections []Section      `json:"sections"`
	Answers  []AnswerOption `json:"answers"`
}

// TotalQuestions counts questions across all sections.
func (q *Questionnaire) TotalQuestions() int {
	n := 0
	for _, s := range q.Sections {
		n += len(s.Questions)
	}
	return n
}

// Validate rejects catalogues with empty or duplicated question ids.
func (q *Questionnaire) Validate() error {
	if len(q.Sections) == 0 {
		return fmt.Errorf("%w: no sections", ErrInvalid)
	}
	seen := make(map[string]struct{}, q.TotalQuestions())
	for _, s := range q.Sections {
		for _, question := range s.Questions {
			if question.ID == "" {
				return fmt.Errorf("%w: section %q has a question without id", ErrInvalid, s.Name)
			}
			if _, dup := seen[question.ID]; dup {
				return fmt.Errorf("%w: duplicate question id %q", ErrInvalid, question.ID)
			}
			seen[question.ID] = struct{}{}
		}
	}
	return nil
}

// Provider returns the questionnaire used for scoring and presentation.
type Provider interface {
	Questionnaire(ctx context.Context) (*Questionnaire, error)
}

// FileProvider loads the questionnaire from a JSON file once and caches it.
type FileProvider struct {
	path string

	mu     sync.Mutex
	cached *Questionnaire
}

// NewFileProvider creates a provider reading path lazily.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

var _ Provider = (*FileProvider)(nil)

// Questionnaire returns the cached catalogue, loading it on first use. A failed
// load is not cached so a fixed file is picked up by the next call.
func (p *FileProvider) Questionnaire(ctx context.Context) (*Questionnaire, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return p.cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	var q Questionnaire
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrLoad, p.path, err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	p.cached = &q
	return p.cached, nil
}

// Static serves a fixed questionnaire, used by tests and embedded setups.
type Static struct {
	Q *Questionnaire
}

// Questionnaire returns the wrapped value.
func (s Static) Questionnaire(_ context.Context) (*Questionnaire, error) {
	if s.Q == nil {
		return nil, fmt.Errorf("%w: nil questionnaire", ErrLoad)
	}
	return s.Q, nil
}
