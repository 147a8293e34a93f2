package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/okian/drivescore/internal/domain/statistics"
)

// StatisticsFile keeps the statistics record in one JSON file.
type StatisticsFile struct {
	mu   sync.Mutex
	path string
	opts fileOptions
}

var _ statistics.Persister = (*StatisticsFile)(nil)

// NewStatisticsFile creates a persister for path. The file is created on the
// first Save.
func NewStatisticsFile(path string, opts ...Option) *StatisticsFile {
	o := defaultFileOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &StatisticsFile{path: path, opts: o}
}

// Load reads the record; a missing file yields nil.
func (s *StatisticsFile) Load(context.Context) (*statistics.Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, s.path, err)
	}

	var st statistics.Statistics
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, s.path, err)
	}
	return &st, nil
}

// Save replaces the record.
func (s *StatisticsFile) Save(_ context.Context, st statistics.Statistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.path, st, s.opts)
}

// StatisticsMemory keeps the record in memory.
type StatisticsMemory struct {
	mu  sync.Mutex
	rec *statistics.Statistics
}

var _ statistics.Persister = (*StatisticsMemory)(nil)

// NewStatisticsMemory creates an empty in-memory persister.
func NewStatisticsMemory() *StatisticsMemory {
	return &StatisticsMemory{}
}

func (m *StatisticsMemory) Load(context.Context) (*statistics.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, nil
	}
	c := m.rec.Clone()
	return &c, nil
}

func (m *StatisticsMemory) Save(_ context.Context, st statistics.Statistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := st.Clone()
	m.rec = &c
	return nil
}
