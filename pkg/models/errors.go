package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Typed errors below match these via errors.Is.
var (
	ErrInvalidSymbol    = errors.New("symbol must be a non-empty ticker")
	ErrNotFound         = errors.New("symbol not found")
	ErrUpstream         = errors.New("upstream request failed")
	ErrNoFilingFound    = errors.New("no 10-K or 10-Q filing found")
	ErrSectionNotFound  = errors.New("narrative section not found")
	ErrMissingConcept   = errors.New("required concept missing from filing")
	ErrZeroDenominator  = errors.New("ratio denominator is zero")
	ErrMalformedRating  = errors.New("narrative rating response is malformed")
	ErrComponentTimeout = errors.New("component timed out")
)

// NotFoundError is returned when a symbol has no known CIK mapping.
type NotFoundError struct {
	Symbol string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ticker %s not found in SEC database", e.Symbol)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UpstreamError describes a failed request against an external feed.
type UpstreamError struct {
	Source     string // "companyfacts", "submissions", "archives", "tickers"
	URL        string
	StatusCode int // 0 when the request never got a response
	Attempts   int
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d from %s after %d attempt(s)", e.Source, e.StatusCode, e.URL, e.Attempts)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Source, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s: request to %s failed", e.Source, e.URL)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Retryable reports whether the failure belongs to a transient class
// (transport error, 429, 5xx).
func (e *UpstreamError) Retryable() bool {
	if e.StatusCode == 0 {
		return e.Err != nil
	}
	return IsRetryableStatus(e.StatusCode)
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// SectionNotFoundError is returned when a narrative section cannot be located.
type SectionNotFoundError struct {
	Section string // "risk_factors" or "mda"
	Reason  string
}

func (e *SectionNotFoundError) Error() string {
	return fmt.Sprintf("section %s not found: %s", e.Section, e.Reason)
}

func (e *SectionNotFoundError) Is(target error) bool { return target == ErrSectionNotFound }

// MissingConceptError is returned when a ratio's required concept is absent.
type MissingConceptError struct {
	Metric string
}

func (e *MissingConceptError) Error() string {
	return fmt.Sprintf("no facts for concept family %q", e.Metric)
}

func (e *MissingConceptError) Is(target error) bool { return target == ErrMissingConcept }
