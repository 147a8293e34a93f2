package repository

import (
	"context"
	"strconv"
	"sync"
)

// ResultMemory keeps results in memory; refs are sequence numbers.
type ResultMemory struct {
	mu      sync.RWMutex
	results []Result
}

var _ ResultStore = (*ResultMemory)(nil)

// NewResultMemory creates an empty store.
func NewResultMemory() *ResultMemory {
	return &ResultMemory{}
}

func (m *ResultMemory) Save(_ context.Context, r Result) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return strconv.Itoa(len(m.results)), nil
}

func (m *ResultMemory) Get(_ context.Context, ref string) (Result, error) {
	n, err := strconv.Atoi(ref)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err != nil || n < 1 || n > len(m.results) {
		return Result{}, ErrNotFound
	}
	return m.results[n-1], nil
}

// Len returns the number of stored results.
func (m *ResultMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}

func (m *ResultMemory) Close() error { return nil }
