package bitable

import "fmt"

// Remote error codes the client distinguishes. Anything else non-zero is an
// APIError.
const (
	codeOK               = 0
	codeTokenInvalid     = 99991663
	codeTokenExpired     = 99991664
	codeRateLimited      = 99991400
)

// ConfigError means the client is missing credentials or table identifiers.
// It is raised before any network call and is not retried.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "bitable config: " + e.Msg
}

// AuthError means the remote rejected our credentials or access token.
type AuthError struct {
	Code int
	Msg  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("bitable auth rejected (code %d): %s", e.Code, e.Msg)
}

// NetworkError wraps a transport-level failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "bitable request failed: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RateLimitError means the remote is throttling us. It is propagated without
// retry at this layer; callers own the backoff policy.
type RateLimitError struct {
	Code int
	Msg  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("bitable rate limited (code %d): %s", e.Code, e.Msg)
}

// APIError is any other non-zero remote code, with the remote's message
// attached.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitable error (code %d): %s", e.Code, e.Msg)
}

// classifyCode maps a non-zero remote response code onto the error taxonomy.
func classifyCode(code int, msg string) error {
	switch code {
	case codeOK:
		return nil
	case codeTokenInvalid, codeTokenExpired:
		return &AuthError{Code: code, Msg: msg}
	case codeRateLimited:
		return &RateLimitError{Code: code, Msg: msg}
	default:
		return &APIError{Code: code, Msg: msg}
	}
}
