// Package scoring turns questionnaire answers into per-domain scores and categories.
package scoring

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/okian/drivescore/internal/domain/questionnaire"
)

// Likert scale bounds.
const (
	MinAnswer = 1
	MaxAnswer = 4
)

// Answers maps question id to an answer in [MinAnswer, MaxAnswer].
type Answers map[string]int

// DomainScore is the computed result for one domain.
type DomainScore struct {
	Score         float64 `json:"score"`
	Category      string  `json:"category"`
	CategoryLabel string  `json:"category_label"`
	DomainKey     string  `json:"domain_key"`
}

// Scores holds domain scores keyed by section name and remembers the order the
// sections were scored in. The zero value is empty and ready to use.
type Scores struct {
	order  []string
	byName map[string]DomainScore
}

// Set adds or replaces a score. New names are appended to the order.
func (s *Scores) Set(name string, ds DomainScore) {
	if s.byName == nil {
		s.byName = make(map[string]DomainScore)
	}
	if _, ok := s.byName[name]; !ok {
		s.order = append(s.order, name)
	}
	s.byName[name] = ds
}

// Get returns the score for a section name.
func (s Scores) Get(name string) (DomainScore, bool) {
	ds, ok := s.byName[name]
	return ds, ok
}

// Len returns the number of scored domains.
func (s Scores) Len() int { return len(s.order) }

// Names returns section names in scoring order.
func (s Scores) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Values returns the bare numeric scores keyed by section name.
func (s Scores) Values() map[string]float64 {
	out := make(map[string]float64, len(s.byName))
	for name, ds := range s.byName {
		out[name] = ds.Score
	}
	return out
}

// MarshalJSON encodes scores as an object keyed by section name.
func (s Scores) MarshalJSON() ([]byte, error) {
	if s.byName == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.byName)
}

// UnmarshalJSON decodes an object; the order becomes lexical since JSON objects
// carry none.
func (s *Scores) UnmarshalJSON(data []byte) error {
	var m map[string]DomainScore
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	*s = Scores{}
	for _, name := range names {
		s.Set(name, m[name])
	}
	return nil
}

// Engine scores answers against a threshold configuration.
type Engine struct {
	thresholds Thresholds
	domains    map[string]string
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithThresholds replaces the default threshold tables.
func WithThresholds(th Thresholds) Option {
	return func(e *Engine) {
		if len(th) > 0 {
			e.thresholds = th
		}
	}
}

// WithDomainMap replaces the section name to domain key lookup.
func WithDomainMap(m map[string]string) Option {
	return func(e *Engine) {
		if len(m) > 0 {
			e.domains = m
		}
	}
}

// NewEngine creates an engine with the stock thresholds and domain map.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		thresholds: DefaultThresholds(),
		domains:    DomainMap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Contribution is the value a single answer adds to its domain average.
func Contribution(answer int, reverse bool) int {
	if reverse {
		return MinAnswer + MaxAnswer - answer
	}
	return answer
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Calculate averages the answered questions of every mapped section. Questions
// without an answer are skipped; sections with no answered question and sections
// with no domain mapping are left out of the result.
func (e *Engine) Calculate(answers Answers, sections []questionnaire.Section) Scores {
	var out Scores
	for _, section := range sections {
		key, ok := e.domains[section.Name]
		if !ok {
			continue
		}

		sum, n := 0, 0
		for _, q := range section.Questions {
			v, ok := answers[q.ID]
			if !ok {
				continue
			}
			sum += Contribution(v, q.Reverse)
			n++
		}
		if n == 0 {
			continue
		}

		score := Round2(float64(sum) / float64(n))
		cat := e.thresholds.Categorize(key, score)
		out.Set(section.Name, DomainScore{
			Score:         score,
			Category:      cat.Tag,
			CategoryLabel: cat.Label,
			DomainKey:     key,
		})
	}
	return out
}

// CalculateScores scores with the stock configuration.
func CalculateScores(answers Answers, sections []questionnaire.Section) Scores {
	return NewEngine().Calculate(answers, sections)
}
