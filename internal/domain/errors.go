package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbiddenOrigin   = errors.New("forbidden_origin")
	ErrNotFound          = errors.New("not_found")
	ErrAlreadySubscribed = errors.New("already_subscribed")
	ErrRateLimited       = errors.New("rate_limited")
	ErrMisconfigured     = errors.New("misconfigured")
	ErrUpstream          = errors.New("upstream_failure")
	ErrMailNotConfigured = errors.New("mail_not_configured")
	ErrNoRecipients      = errors.New("no_recipients")
	ErrValidation        = errors.New("validation")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Message returns the first field message in key order, suitable for a
// single-line client response.
func (e *ValidationError) Message() string {
	if len(e.Fields) == 0 {
		return "Invalid request"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return e.Fields[keys[0]]
}

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfterSeconds rounds up so a client never retries early.
func (e *RateLimitError) RetryAfterSeconds() int {
	return CeilSeconds(e.RetryAfter)
}

func NewRateLimitError(retryAfter time.Duration) error {
	return &RateLimitError{RetryAfter: retryAfter}
}

func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
