// Package statistics maintains aggregate completion statistics as a single
// persisted record updated by read-modify-write under one lock.
package statistics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrPersist wraps every failure of the underlying Persister.
var ErrPersist = errors.New("statistics persistence failed")

// UnknownStyle is recorded when a completion carries no driving style.
const UnknownStyle = "Unknown"

// Statistics is the aggregate record.
type Statistics struct {
	TotalCompletions int                `json:"total_completions"`
	TotalStarted     int                `json:"total_started"`
	CompletionRate   float64            `json:"completion_rate"`
	AverageScores    map[string]float64 `json:"average_scores"`
	DriverStyles     map[string]int     `json:"driver_styles"`
	LastUpdated      *time.Time         `json:"last_updated"`
}

// Empty returns a record with zero counters and empty maps.
func Empty() Statistics {
	return Statistics{
		AverageScores: map[string]float64{},
		DriverStyles:  map[string]int{},
	}
}

// Clone returns a deep copy.
func (s Statistics) Clone() Statistics {
	out := s
	out.AverageScores = make(map[string]float64, len(s.AverageScores))
	for k, v := range s.AverageScores {
		out.AverageScores[k] = v
	}
	out.DriverStyles = make(map[string]int, len(s.DriverStyles))
	for k, v := range s.DriverStyles {
		out.DriverStyles[k] = v
	}
	if s.LastUpdated != nil {
		t := *s.LastUpdated
		out.LastUpdated = &t
	}
	return out
}

// Persister loads and stores the record. Load returns nil and no error when
// nothing has been stored yet.
type Persister interface {
	Load(ctx context.Context) (*Statistics, error)
	Save(ctx context.Context, s Statistics) error
}

// Aggregator serializes every mutation of the record.
type Aggregator struct {
	mu    sync.Mutex
	store Persister
	now   func() time.Time
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source used for last_updated.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store Persister, opts ...Option) *Aggregator {
	a := &Aggregator{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IncrementStarted counts one more started assessment.
func (a *Aggregator) IncrementStarted(ctx context.Context) (Statistics, error) {
	return a.update(ctx, func(s *Statistics) {
		s.TotalStarted++
	})
}

// RecordCompletion folds one completed assessment into the record.
//
// Averages are updated incrementally with n = completions after the increment.
// A domain seen for the first time takes the score as its average, so domains
// missing from earlier completions drift from their true mean.
func (a *Aggregator) RecordCompletion(ctx context.Context, scores map[string]float64, style string) (Statistics, error) {
	if style == "" {
		style = UnknownStyle
	}
	return a.update(ctx, func(s *Statistics) {
		s.TotalCompletions++
		n := float64(s.TotalCompletions)
		for domain, score := range scores {
			old, ok := s.AverageScores[domain]
			if !ok {
				s.AverageScores[domain] = score
				continue
			}
			s.AverageScores[domain] = round2((old*(n-1) + score) / n)
		}
		s.DriverStyles[style]++
		if s.TotalStarted > 0 {
			s.CompletionRate = round2(float64(s.TotalCompletions) / float64(s.TotalStarted) * 100)
		}
	})
}

// Read returns the current record, or Empty when none exists.
func (a *Aggregator) Read(ctx context.Context) (Statistics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, err := a.load(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return cur, nil
}

func (a *Aggregator) update(ctx context.Context, mutate func(*Statistics)) (Statistics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, err := a.load(ctx)
	if err != nil {
		return Statistics{}, err
	}
	mutate(&cur)
	ts := a.now()
	cur.LastUpdated = &ts

	if err := a.store.Save(ctx, cur); err != nil {
		return Statistics{}, fmt.Errorf("%w: save: %w", ErrPersist, err)
	}
	return cur.Clone(), nil
}

func (a *Aggregator) load(ctx context.Context) (Statistics, error) {
	got, err := a.store.Load(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("%w: load: %w", ErrPersist, err)
	}
	if got == nil {
		return Empty(), nil
	}
	cur := got.Clone()
	return cur, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
