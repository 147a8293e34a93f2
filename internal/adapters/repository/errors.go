package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound = errors.New("record not found")
	ErrRead     = errors.New("storage read failed")
	ErrWrite    = errors.New("storage write failed")
	ErrCorrupt  = errors.New("stored record is corrupt")
)
