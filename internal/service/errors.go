// Package service provides business logic for the application.
package service

import "errors"

// Service error kinds. Handlers match them with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidCode       = errors.New("invalid or expired merge code")
	ErrStaleCode         = errors.New("the account behind this merge code no longer exists")
	ErrSelfMerge         = errors.New("cannot merge an account with itself")
	ErrLookupFailed      = errors.New("account lookup failed")
	ErrStorageFailed     = errors.New("storage operation failed")
	ErrInvalidConversion = errors.New("invalid conversion")
	ErrNoCollision       = errors.New("no linked identity collides with that account")
	ErrMergeInProgress   = errors.New("a merge for this account is already in progress")
	ErrMergeTimeout      = errors.New("merge did not finish in time; retry to resume it")
	ErrLastIdentity      = errors.New("cannot unlink the last linked identity")
	ErrBadRequest        = errors.New("bad request")
)
