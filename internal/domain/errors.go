package domain

import "unicode/utf8"

// ErrorCode is a stable, provider-independent failure label. These are the
// only error identifiers ever surfaced to users or recorded on jobs; raw
// provider error strings stay in internal diagnostics.
type ErrorCode string

const (
	ErrCodeTimeout             ErrorCode = "Timeout"
	ErrCodeTokenQuotaExceeded  ErrorCode = "TokenQuotaExceeded"
	ErrCodeRateLimitExceeded   ErrorCode = "RateLimitExceeded"
	ErrCodeServiceUnavailable  ErrorCode = "ServiceUnavailable"
	ErrCodeAccessDenied        ErrorCode = "AccessDenied"
	ErrCodeResourceNotFound    ErrorCode = "ResourceNotFound"
	ErrCodeAuthenticationError ErrorCode = "AuthenticationError"
	ErrCodeInvalidRequest      ErrorCode = "InvalidRequest"
	ErrCodeUnknownProvider     ErrorCode = "UnknownProviderError"
	ErrCodeUnsupportedFormat   ErrorCode = "ExtractionUnsupportedFormat"
	ErrCodeMalformedMessage    ErrorCode = "MalformedMessage"
	ErrCodeJobNotFound         ErrorCode = "JobNotFound"

	// ErrCodeContentBlocked marks a review stopped by the provider's safety
	// guardrail. It is a business outcome, kept distinct from transport
	// failures such as Timeout.
	ErrCodeContentBlocked ErrorCode = "ContentBlocked"
)

// maxUserErrorLen bounds the error message stored on a job record.
const maxUserErrorLen = 200

// NewJobError builds a user-safe JobError, truncating long messages at
// a rune boundary so the stored text stays valid UTF-8.
func NewJobError(code ErrorCode, message string) *JobError {
	if len(message) > maxUserErrorLen {
		cut := maxUserErrorLen
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut]
	}
	return &JobError{Message: message, Code: code}
}
