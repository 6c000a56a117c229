// Package repository implements SQLite persistence for templates, campaigns,
// subscribers and send logs.
package repository

import "errors"

var (
	// ErrNotFound is returned when the addressed record does not exist and
	// the caller needs to distinguish that from an empty result.
	ErrNotFound = errors.New("repository: not found")

	// ErrInvalidTransition is returned when a campaign status change is not
	// permitted by the lifecycle.
	ErrInvalidTransition = errors.New("repository: invalid status transition")
)
