// Package aierr defines the library error taxonomy. Every failure surfaced to
// callers is an *Error with a Kind and an optional wrapped cause.
package aierr

import (
	"errors"
	"fmt"
)

// Kind classifies a library error.
type Kind string

const (
	// KindSettings covers missing or invalid configuration, including API keys.
	KindSettings Kind = "settings"
	// KindProvider covers adapter construction and provider-call failures.
	KindProvider Kind = "provider"
	// KindModelResolution covers unresolvable provider/model selections.
	KindModelResolution Kind = "model_resolution"
	// KindFileExtraction covers attachment text extraction failures.
	KindFileExtraction Kind = "file_extraction"
	// KindGeneral wraps unexpected errors caught at the entry point.
	KindGeneral Kind = "general"
)

// Error is the base library error. Cause holds the original error when one
// exists and participates in errors.Is/errors.As chains.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Settings builds a configuration error.
func Settings(format string, args ...any) *Error {
	return newf(KindSettings, nil, format, args...)
}

// SettingsWrap builds a configuration error around cause.
func SettingsWrap(cause error, format string, args ...any) *Error {
	return newf(KindSettings, cause, format, args...)
}

// Provider builds a provider error.
func Provider(format string, args ...any) *Error {
	return newf(KindProvider, nil, format, args...)
}

// ProviderWrap builds a provider error around cause.
func ProviderWrap(cause error, format string, args ...any) *Error {
	return newf(KindProvider, cause, format, args...)
}

// ModelResolution builds a model resolution error.
func ModelResolution(format string, args ...any) *Error {
	return newf(KindModelResolution, nil, format, args...)
}

// FileExtraction builds a file extraction error around cause.
func FileExtraction(cause error, format string, args ...any) *Error {
	return newf(KindFileExtraction, cause, format, args...)
}

// General wraps an unexpected error, naming the original in the message.
func General(cause error, format string, args ...any) *Error {
	return newf(KindGeneral, cause, format, args...)
}

// IsKind reports whether err (or anything it wraps) is a library error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		if e.Cause == nil {
			break
		}
		err = e.Cause
	}
	return false
}

// IsLibraryError reports whether err is any *Error.
func IsLibraryError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
