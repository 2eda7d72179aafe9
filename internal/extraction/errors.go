package extraction

import (
	"fmt"
	"strings"
)

// NotConfiguredError reports that a provider has no credential. It is
// returned before any network call is made.
type NotConfiguredError struct {
	Provider string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("provider %q is not configured: missing API key", e.Provider)
}

// NotFoundError reports a request for a provider name with no registered
// adapter.
type NotFoundError struct {
	Provider string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found", e.Provider)
}

// UpstreamError wraps a network or API-level failure from a provider's
// backend.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %q upstream call failed: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// RefusedError reports that the backend explicitly declined to answer,
// e.g. a safety refusal. Distinct from a parse failure.
type RefusedError struct {
	Provider string
	Reason   string
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("provider %q refused to extract receipt data", e.Provider)
}

// UnparsableError reports that the backend returned text but no valid JSON
// object could be extracted from it. Raw carries the response for operator
// logs; Error never includes it.
type UnparsableError struct {
	Provider string
	Raw      string
}

func (e *UnparsableError) Error() string {
	return fmt.Sprintf("provider %q returned a response that could not be parsed as JSON", e.Provider)
}

// ShapeError aggregates every structural violation found in an extraction
// result so the caller sees everything wrong at once.
type ShapeError struct {
	Violations []string
}

func (e *ShapeError) Error() string {
	return "invalid extraction shape: " + strings.Join(e.Violations, "; ")
}
