package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the bearer token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrContentUnavailable indicates no content candidates could be
	// bound to a plan's activities
	ErrContentUnavailable = errors.New("no content available")

	// ErrEmbeddingUnavailable indicates the embedding service could not
	// be used; retrieval degrades to filter/recency mode
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrInvalidTransition indicates a disallowed activity status change
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrRunInProgress indicates an indexing run is already running for
	// the subject
	ErrRunInProgress = errors.New("indexing run already in progress")

	// ErrServiceUnavailable indicates a backing service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)

// SchemaMismatchError reports payload fields that are not declared in
// the content index schema. Never retried; the offending fields are
// part of the message so they land in logs.
type SchemaMismatchError struct {
	Fields []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("undeclared schema fields: %s", strings.Join(e.Fields, ", "))
}

// TransientError wraps a network or timeout failure that was retried
// with backoff before being surfaced.
type TransientError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ExtractionFailure records a single catalog entry that could not be
// extracted. Collected into the batch report, never aborts the batch.
type ExtractionFailure struct {
	URL    string `json:"url"`
	Stage  string `json:"stage"` // fetch, classify, embed, store
	Reason string `json:"reason"`
}
