package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for outcomes that callers branch on with errors.Is.
var (
	// ErrNoPredictionAvailable means every inference backend was exhausted.
	// The transaction still persists uncategorized; this is not a pipeline failure.
	ErrNoPredictionAvailable = errors.New("no prediction available")

	// ErrInferenceTimeout marks a remote backend call that exceeded its
	// deadline. It triggers the local fallback and never reaches the caller
	// of the resolver directly.
	ErrInferenceTimeout = errors.New("inference timeout")

	// ErrTransactionNotFound is returned when a lookup targets a transaction
	// that was never stored.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// NoTemplateMatchedError means no configured template recognized the message.
// Fatal for that message; the sender and subject are carried for later
// template authoring.
type NoTemplateMatchedError struct {
	MessageID string
	Sender    string
	Subject   string
}

func (e *NoTemplateMatchedError) Error() string {
	return fmt.Sprintf("no template matched message %s (sender=%q subject=%q)", e.MessageID, e.Sender, e.Subject)
}

// NormalizationError means a required captured field could not be coerced to
// its target type. Always rejects the candidate, never defaults silently.
type NormalizationError struct {
	Field string
	Value string
	Err   error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("cannot normalize field %q from %q: %v", e.Field, e.Value, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// ValidationError carries every violated constraint, not just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("transaction validation failed: %s", strings.Join(e.Violations, "; "))
}

// StoreUnavailableError wraps an infrastructure failure of the transaction
// store. It propagates: the message is retried on the next scheduled batch
// because persistence never happened, and the whole batch aborts early.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("transaction store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// IsStoreUnavailable reports whether err is (or wraps) a store outage.
func IsStoreUnavailable(err error) bool {
	var su *StoreUnavailableError
	return errors.As(err, &su)
}
