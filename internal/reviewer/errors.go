package reviewer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/domain"
)

// Error is a reviewer failure normalized into the stable error taxonomy.
// Callers branch on Code, never on provider-specific identifiers.
type Error struct {
	Code    domain.ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reviewer: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("reviewer: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the taxonomy code from any error, defaulting to
// UnknownProviderError for errors the client did not classify.
func CodeOf(err error) domain.ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return domain.ErrCodeUnknownProvider
}

// classifyTransport maps connection-level failures that never produced
// an HTTP response.
func classifyTransport(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: domain.ErrCodeTimeout, Message: "review request timed out", Err: err}
	case isNetTimeout(err):
		return &Error{Code: domain.ErrCodeTimeout, Message: "review request timed out", Err: err}
	default:
		return &Error{Code: domain.ErrCodeServiceUnavailable, Message: "review service unreachable", Err: err}
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyStatus maps an HTTP error response into the taxonomy. The
// provider's own error type string refines the 429 case, where quota
// exhaustion and request-rate throttling need different handling.
func classifyStatus(status int, providerType, providerMsg string) *Error {
	err := fmt.Errorf("provider returned HTTP %d (%s)", status, providerType)

	switch status {
	case 400:
		return &Error{Code: domain.ErrCodeInvalidRequest, Message: "review request was rejected", Err: err}
	case 401:
		return &Error{Code: domain.ErrCodeAuthenticationError, Message: "review service authentication failed", Err: err}
	case 403:
		return &Error{Code: domain.ErrCodeAccessDenied, Message: "review service access denied", Err: err}
	case 404:
		return &Error{Code: domain.ErrCodeResourceNotFound, Message: "review model not found", Err: err}
	case 408, 504:
		return &Error{Code: domain.ErrCodeTimeout, Message: "review request timed out", Err: err}
	case 429:
		lowered := strings.ToLower(providerType + " " + providerMsg)
		if strings.Contains(lowered, "quota") || strings.Contains(lowered, "token") {
			return &Error{Code: domain.ErrCodeTokenQuotaExceeded, Message: "review token quota exceeded", Err: err}
		}
		return &Error{Code: domain.ErrCodeRateLimitExceeded, Message: "review service rate limit exceeded", Err: err}
	case 500, 502, 503:
		return &Error{Code: domain.ErrCodeServiceUnavailable, Message: "review service unavailable", Err: err}
	default:
		return &Error{Code: domain.ErrCodeUnknownProvider, Message: "review service failed", Err: err}
	}
}
