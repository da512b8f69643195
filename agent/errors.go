package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed provider call. The dispatcher's retry and
// fallback decisions depend only on this classification.
type ErrorKind int

const (
	// KindUnauthorized means a bad or missing credential. Waiting will not
	// fix it, so the provider is skipped without retry.
	KindUnauthorized ErrorKind = iota

	// KindRateLimited means the provider rejected the call with a rate
	// limit. Retried with backoff.
	KindRateLimited

	// KindTimeout means the per-attempt deadline expired. Retried.
	KindTimeout

	// KindTransient covers network failures and provider 5xx. Retried.
	KindTransient

	// KindInvalidResponse means the provider answered but the response was
	// malformed or missing the answer. Skipped without retry.
	KindInvalidResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt against the same provider may
// resolve this kind of failure.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindTransient:
		return true
	}
	return false
}

// ProviderError is the typed failure every provider returns on a
// non-success outcome.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with the provider name and classification.
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// KindOf extracts the classification from an arbitrary provider call error.
// A deadline expiry counts as a timeout; anything unclassified is treated
// as transient, the only safe assumption for an unknown failure.
func KindOf(err error) ErrorKind {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransient
}

// ClassifyStatus maps an HTTP status code from a provider API to an
// ErrorKind. Unlisted 4xx are deterministic contract failures and mapped
// to KindInvalidResponse so they are never retried.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == 401 || code == 403:
		return KindUnauthorized
	case code == 429:
		return KindRateLimited
	case code == 408:
		return KindTimeout
	case code >= 500:
		return KindTransient
	default:
		return KindInvalidResponse
	}
}
