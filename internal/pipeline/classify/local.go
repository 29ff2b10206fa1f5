package classify

import (
	"fmt"
	"net/http"
)

// Constructors for the pipeline's own error taxonomy. Keeping them here
// means every component hands out the same canonical shape.

// Validation builds a fatal malformed-input error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg, Status: http.StatusBadRequest}
}

// NoCredentials is returned when no credential set is held.
func NoCredentials() *Error {
	return &Error{Code: CodeNoCredentials, Message: "no credentials set", AuthRequired: true}
}

// CredentialsExpired is terminal: the token is stale and no refresh token
// is available, so the caller must re-authenticate.
func CredentialsExpired() *Error {
	return &Error{Code: CodeCredentialsExpired, Message: "credentials expired and no refresh token available", AuthRequired: true}
}

// ReauthRequired is returned after the refresh token itself was rejected.
func ReauthRequired() *Error {
	return &Error{Code: CodeReauthRequired, Message: "refresh token rejected, re-authentication required", AuthRequired: true}
}

// QueueFull is returned when a submission exceeds queue capacity.
func QueueFull(capacity int) *Error {
	return &Error{Code: CodeQueueFull, Message: fmt.Sprintf("request queue is full (capacity %d)", capacity)}
}

// QueueTimeout is returned when a queued unit aged out before service.
func QueueTimeout(method string) *Error {
	return &Error{Code: CodeQueueTimeout, Message: "queued request timed out waiting for admission: " + method}
}

// Destroyed is returned for units pending when the controller is torn down.
func Destroyed() *Error {
	return &Error{Code: CodeDestroyed, Message: "admission controller destroyed"}
}
