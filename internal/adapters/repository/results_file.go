package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const resultTimeLayout = "20060102_150405"

// ResultFiles writes one pretty-printed JSON file per result.
type ResultFiles struct {
	dir  string
	opts fileOptions
}

var _ ResultStore = (*ResultFiles)(nil)

// NewResultFiles stores results under dir, creating it on demand.
func NewResultFiles(dir string, opts ...Option) *ResultFiles {
	o := defaultFileOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &ResultFiles{dir: dir, opts: o}
}

// Save writes <timestamp>_<email>.json and returns the file name. A second
// result for the same email within the same second replaces the first.
func (f *ResultFiles) Save(_ context.Context, r Result) (string, error) {
	name := fmt.Sprintf("%s_%s.json", r.Timestamp.Format(resultTimeLayout), safeEmail(r.User.Email))
	if err := writeJSONAtomic(filepath.Join(f.dir, name), r, f.opts); err != nil {
		return "", err
	}
	return name, nil
}

// Get reads a result by file name.
func (f *ResultFiles) Get(_ context.Context, ref string) (Result, error) {
	if ref == "" || strings.ContainsAny(ref, `/\`) {
		return Result{}, ErrNotFound
	}
	path := filepath.Join(f.dir, ref)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrRead, path, err)
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	return r, nil
}

// Close is a no-op.
func (f *ResultFiles) Close() error { return nil }
