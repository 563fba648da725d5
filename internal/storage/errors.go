package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned when a write violates a uniqueness constraint
// the caller is expected to handle.
var ErrConflict = errors.New("storage: conflict")
