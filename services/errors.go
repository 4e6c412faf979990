package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrValidation marks malformed input rejected before any I/O.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing walk, user or template.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks an operation against a walk in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrCollaboratorUnavailable marks a failing external dependency.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// errDuplicateEvent aborts a ledger transaction; it never leaves this package.
	errDuplicateEvent = errors.New("event already registered")
)

// isDuplicateKey reports whether err is a unique-constraint violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
