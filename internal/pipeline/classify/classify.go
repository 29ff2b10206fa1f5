// Package classify maps transport responses to canonical errors.
//
// Classification happens exactly once, at the transport boundary. Every
// other component branches on the resulting *Error, never on raw payloads.
package classify

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vietddude/b24/internal/core/domain"
)

// Error is the canonical error shape consumed by the whole pipeline.
type Error struct {
	Code         string
	Message      string
	Status       int
	System       bool
	Retryable    bool
	AuthRequired bool

	// ResetAt is set for resource-exhausted errors: the instant at which
	// the blocked method becomes callable again.
	ResetAt time.Time
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Local error codes produced by the pipeline itself.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNoCredentials      = "NO_CREDENTIALS"
	CodeCredentialsExpired = "CREDENTIALS_EXPIRED"
	CodeReauthRequired     = "REAUTH_REQUIRED"
	CodeQueueFull          = "QUEUE_FULL"
	CodeQueueTimeout       = "QUEUE_TIMEOUT"
	CodeDestroyed          = "DESTROYED"
	CodeTransport          = "TRANSPORT_ERROR"
)

// Well-known remote error codes.
const (
	CodeQueryLimitExceeded = "QUERY_LIMIT_EXCEEDED"
	CodeOperatingExceeded  = "OPERATION_TIME_LIMIT"
	CodeExpiredToken       = "expired_token"
	CodeInvalidToken       = "invalid_token"
	CodeInvalidGrant       = "invalid_grant"
	CodeInvalidClient      = "invalid_client"
	CodeNoAuthFound        = "NO_AUTH_FOUND"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeMethodNotFound     = "ERROR_METHOD_NOT_FOUND"
	CodeInternalServer     = "INTERNAL_SERVER_ERROR"
	CodeOverloadLimit      = "OVERLOAD_LIMIT"
)

// knownCodes maps remote error codes to their canonical classification.
// The table wins over the transport status when both disagree.
var knownCodes = map[string]Error{
	CodeQueryLimitExceeded: {Status: http.StatusTooManyRequests, System: true, Retryable: true, Message: "request rate limit exceeded"},
	CodeOperatingExceeded:  {Status: http.StatusTooManyRequests, System: true, Retryable: false, Message: "method operating time limit exceeded"},
	CodeOverloadLimit:      {Status: http.StatusServiceUnavailable, System: true, Retryable: true, Message: "portal is overloaded"},
	CodeInternalServer:     {Status: http.StatusInternalServerError, System: true, Retryable: true, Message: "portal internal error"},
	CodeExpiredToken:       {Status: http.StatusUnauthorized, AuthRequired: true, Message: "access token expired"},
	CodeInvalidToken:       {Status: http.StatusUnauthorized, AuthRequired: true, Message: "access token rejected"},
	CodeInvalidGrant:       {Status: http.StatusBadRequest, AuthRequired: true, Message: "refresh token rejected"},
	CodeInvalidClient:      {Status: http.StatusUnauthorized, AuthRequired: true, Message: "client credentials rejected"},
	CodeNoAuthFound:        {Status: http.StatusUnauthorized, AuthRequired: true, Message: "no authorization found"},
	CodeAccessDenied:       {Status: http.StatusForbidden, AuthRequired: true, Message: "access denied"},
	CodeMethodNotFound:     {Status: http.StatusNotFound, Message: "method not found"},
}

// FromResponse classifies a portal response. remoteErr may be nil when the
// body carried no structured error; timeInfo, when present, supplies the
// reset instant for resource-exhausted classifications.
func FromResponse(status int, remoteErr *domain.RemoteError, timeInfo *domain.TimeInfo) *Error {
	if remoteErr != nil && remoteErr.Code != "" {
		e := classifyCode(remoteErr.Code, status)
		if remoteErr.Description != "" {
			e.Message = remoteErr.Description
		}
		if e.Code == CodeOperatingExceeded {
			e.ResetAt = timeInfo.ResetAt()
		}
		return e
	}
	return classifyStatus(status)
}

func classifyCode(code string, status int) *Error {
	if known, ok := knownCodes[code]; ok {
		e := known
		e.Code = code
		return &e
	}
	// Unknown codes: nothing retryable, keep the transport status.
	return &Error{
		Code:    code,
		Message: "unclassified portal error",
		Status:  status,
	}
}

// classifyStatus classifies purely from the HTTP status when the response
// body carried no structured error.
func classifyStatus(status int) *Error {
	e := &Error{Code: CodeTransport, Status: status, Message: http.StatusText(status)}
	switch {
	case status == http.StatusTooManyRequests:
		e.Code = CodeQueryLimitExceeded
		e.System = true
		e.Retryable = true
	case status == http.StatusUnauthorized:
		e.AuthRequired = true
	case status == http.StatusForbidden:
		e.AuthRequired = true
	case status >= 500:
		e.System = true
		e.Retryable = true
	}
	return e
}

// From coerces any error into canonical form. Already-canonical errors pass
// through unchanged; everything else becomes a non-retryable transport error.
func From(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Code: CodeTransport, Message: err.Error()}
}

// SuggestedDelay returns a recovery hint for retry pacing. Rate-limit
// errors suggest a long pause, server-side failures a short one; zero
// means the caller's default applies.
func SuggestedDelay(err *Error) time.Duration {
	switch {
	case err == nil:
		return 0
	case IsRateLimit(err):
		return time.Minute
	case err.Status >= 500:
		return 2 * time.Second
	default:
		return 0
	}
}

// IsRateLimit reports whether the error is global request throttling.
func IsRateLimit(err *Error) bool {
	return err != nil && (err.Code == CodeQueryLimitExceeded ||
		err.Code == CodeOverloadLimit ||
		(err.Code == CodeTransport && err.Status == http.StatusTooManyRequests))
}

// IsResourceExhausted reports whether the error is a per-method operating
// time block.
func IsResourceExhausted(err *Error) bool {
	return err != nil && err.Code == CodeOperatingExceeded
}

// CodeOf extracts the canonical code from any error, or "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return From(err).Code
}
