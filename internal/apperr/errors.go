// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrReadOnly      = errors.New("read only")
	ErrInsufficient  = errors.New("insufficient ingredients")
	ErrAborted       = errors.New("aborted")

	// Sync errors.
	ErrCodeNotFound       = errors.New("sync code not found")
	ErrNoData             = errors.New("no data for sync code")
	ErrNotInitialized     = errors.New("sync service not initialized")
	ErrNotAuthenticated   = errors.New("sync identity not established")
	ErrBackendUnavailable = errors.New("sync backend unavailable")
)
