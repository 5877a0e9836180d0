package extractor

import "errors"

// Error taxonomy for extraction attempts. None of these ever reach the
// caller of the pipeline; the orchestrator absorbs them into flags and
// audit steps.
var (
	// ErrServiceUnavailable indicates the backing capability failed its
	// health check or timed out.
	ErrServiceUnavailable = errors.New("extraction service unavailable")

	// ErrMalformedDocument indicates the document bytes do not decode
	// according to the declared MIME type.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrUnsupportedFormat indicates no adapter is registered for the
	// MIME/category combination.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrLowConfidence indicates signal was present but below the trust
	// threshold.
	ErrLowConfidence = errors.New("low confidence extraction")

	// ErrValidationFailure indicates extracted values failed sanity bounds.
	ErrValidationFailure = errors.New("extraction validation failure")
)

// IsRetryable reports whether a failed attempt is worth retrying against
// the same adapter. Malformed or unsupported documents will not improve on
// retry; transient service failures might.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedDocument) || errors.Is(err, ErrUnsupportedFormat) {
		return false
	}
	return true
}
