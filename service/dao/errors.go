package dao

import "errors"

// Storage errors returned by the process table and the history log.
var (
	// ErrNotFound is returned when no record is stored under the pid.
	ErrNotFound = errors.New("dao: not found")

	// ErrNilEntity is returned by Save for a nil record.
	ErrNilEntity = errors.New("dao: nil entity")
)
