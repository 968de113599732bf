// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Zone store errors.
	ErrNotFound    = errors.New("not found")
	ErrTableExists = errors.New("table already exists")
	ErrUnknownZone = errors.New("unknown zone")

	// Upstream errors.
	ErrUpstreamAuth    = errors.New("upstream authentication failed")
	ErrUpstreamGone    = errors.New("upstream unreachable")
	ErrUpstreamPayload = errors.New("upstream payload malformed")

	// Join errors.
	ErrKeyDomainDisjoint = errors.New("key domains share no values")

	// Derivation errors.
	ErrNoConvergence  = errors.New("model did not converge")
	ErrSingularMatrix = errors.New("design matrix is singular")
	ErrDegenerate     = errors.New("input too sparse to model")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	// Check for specific retryable errors
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrUpstreamGone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Check for retryable error type
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
