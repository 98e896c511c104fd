package storage

import "errors"

// Common storage errors
var (
	ErrNotFound = errors.New("not found")
	ErrNoTTL    = errors.New("session TTL must be positive")
)
