package simpleai

import "github.com/blocher/simpleai/pkg/aierr"

// Error is the library error type returned by RunPrompt.
type Error = aierr.Error

// Error kinds, re-exported for callers.
const (
	KindSettings        = aierr.KindSettings
	KindProvider        = aierr.KindProvider
	KindModelResolution = aierr.KindModelResolution
	KindFileExtraction  = aierr.KindFileExtraction
	KindGeneral         = aierr.KindGeneral
)

// IsSettingsError reports whether err is a configuration failure, including a
// missing API key.
func IsSettingsError(err error) bool { return aierr.IsKind(err, aierr.KindSettings) }

// IsProviderError reports whether err is an adapter construction or
// provider-call failure.
func IsProviderError(err error) bool { return aierr.IsKind(err, aierr.KindProvider) }

// IsModelResolutionError reports whether err is an unresolvable provider or
// model selection.
func IsModelResolutionError(err error) bool { return aierr.IsKind(err, aierr.KindModelResolution) }

// IsFileExtractionError reports whether err is an attachment extraction
// failure.
func IsFileExtractionError(err error) bool { return aierr.IsKind(err, aierr.KindFileExtraction) }
