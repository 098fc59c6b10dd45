package subtitles

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a provider produced no candidate
type FailureKind int

const (
	// NoMatch means the search ran and nothing qualified
	NoMatch FailureKind = iota
	// UpstreamError covers network failures, timeouts and non-2xx responses
	UpstreamError
	// UnsupportedContent means the provider returned something it cannot handle
	UnsupportedContent
)

func (k FailureKind) String() string {
	switch k {
	case NoMatch:
		return "no_match"
	case UpstreamError:
		return "upstream_error"
	case UnsupportedContent:
		return "unsupported_content"
	}
	return "unknown"
}

// ProviderError is returned by providers instead of a candidate
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewNoMatch builds a NoMatch error for provider
func NewNoMatch(provider, format string, args ...interface{}) error {
	return &ProviderError{Provider: provider, Kind: NoMatch, Err: fmt.Errorf(format, args...)}
}

// NewUpstreamError wraps a transport or status failure
func NewUpstreamError(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: UpstreamError, Err: err}
}

// NewUnsupportedContent builds an UnsupportedContent error for provider
func NewUnsupportedContent(provider, format string, args ...interface{}) error {
	return &ProviderError{Provider: provider, Kind: UnsupportedContent, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the failure kind of err. Errors that are not a
// ProviderError count as upstream errors.
func KindOf(err error) FailureKind {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return UpstreamError
}
