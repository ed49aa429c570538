package errors

import (
	"errors"
	"fmt"
)

// SMTP reply codes used by the AUTH dialogue (RFC 4954)
const (
	CodeContinue       = 334
	CodeAuthSuccessful = 235
	CodeAuthFailed     = 535
	CodeSyntaxError    = 501
	CodeNotImplemented = 504
)

// Reason classifies an authentication failure
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonMalformedResponse
	ReasonMechanismDisabled
	ReasonMechanismUnsupported
	ReasonPasswordMismatch
	ReasonBackendUnavailable
	ReasonAborted
)

func (r Reason) String() string {
	switch r {
	case ReasonMalformedResponse:
		return "malformed_response"
	case ReasonMechanismDisabled:
		return "mechanism_disabled"
	case ReasonMechanismUnsupported:
		return "mechanism_unsupported"
	case ReasonPasswordMismatch:
		return "password_mismatch"
	case ReasonBackendUnavailable:
		return "backend_unavailable"
	case ReasonAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// AuthError represents an authentication failure with its SMTP reply mapping
type AuthError struct {
	Code     int    `json:"code"`
	Enhanced string `json:"enhanced"`
	Reason   Reason `json:"reason"`
	Message  string `json:"message"`
	Cause    error  `json:"cause,omitempty"`
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error %d (%s): %s: %v", e.Code, e.Reason, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error %d (%s): %s", e.Code, e.Reason, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

func (e *AuthError) As(target interface{}) bool {
	if authErr, ok := target.(**AuthError); ok {
		*authErr = e
		return true
	}
	return false
}

// ReplyText returns the client-facing reply line text, enhanced status
// code included. The message never reveals whether a username exists.
func (e *AuthError) ReplyText() string {
	if e.Enhanced == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Enhanced, e.Message)
}

// NewMalformedResponse reports bad base64, a missing separator or an
// empty required field in a client response. Reply class 501.
func NewMalformedResponse(detail string, cause error) *AuthError {
	msg := "Authentication failed: malformed response"
	if detail != "" {
		msg = fmt.Sprintf("Authentication failed: malformed %s", detail)
	}
	return &AuthError{
		Code:     CodeSyntaxError,
		Enhanced: "5.5.4",
		Reason:   ReasonMalformedResponse,
		Message:  msg,
		Cause:    cause,
	}
}

// NewMechanismDisabled reports a mechanism known to the server but
// switched off by policy. Reply class 504.
func NewMechanismDisabled(mechanism string) *AuthError {
	return &AuthError{
		Code:     CodeNotImplemented,
		Enhanced: "5.7.4",
		Reason:   ReasonMechanismDisabled,
		Message:  "Authentication method not enabled",
		Cause:    fmt.Errorf("mechanism %s disabled by policy", mechanism),
	}
}

// NewMechanismUnsupported reports a mechanism no backend claims.
// Reply class 504.
func NewMechanismUnsupported(mechanism string) *AuthError {
	return &AuthError{
		Code:     CodeNotImplemented,
		Enhanced: "5.7.4",
		Reason:   ReasonMechanismUnsupported,
		Message:  "Unsupported authentication method",
		Cause:    fmt.Errorf("no backend claims mechanism %s", mechanism),
	}
}

// NewPasswordMismatch reports a credential verification failure. The
// reply is identical for unknown users and wrong passwords.
func NewPasswordMismatch() *AuthError {
	return &AuthError{
		Code:     CodeAuthFailed,
		Enhanced: "5.7.8",
		Reason:   ReasonPasswordMismatch,
		Message:  "Error: authentication failed",
	}
}

// NewBackendUnavailable reports an unreachable credential store or
// negotiation library. The client sees the generic 535 failure.
func NewBackendUnavailable(cause error) *AuthError {
	return &AuthError{
		Code:     CodeAuthFailed,
		Enhanced: "5.7.8",
		Reason:   ReasonBackendUnavailable,
		Message:  "Error: authentication failed",
		Cause:    cause,
	}
}

// NewAborted reports a client abort ("*" during the dialogue) or a
// connection loss mid-dialogue. Reply class 501.
func NewAborted(cause error) *AuthError {
	return &AuthError{
		Code:     CodeSyntaxError,
		Enhanced: "5.7.0",
		Reason:   ReasonAborted,
		Message:  "Authentication aborted",
		Cause:    cause,
	}
}

// AsAuthError extracts an *AuthError from err, converting unclassified
// errors into the generic 535 failure so nothing leaks past the
// dispatcher boundary.
func AsAuthError(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &AuthError{
		Code:     CodeAuthFailed,
		Enhanced: "5.7.8",
		Reason:   ReasonUnknown,
		Message:  "Error: authentication failed",
		Cause:    err,
	}
}

// ReasonOf returns the failure reason carried by err, or ReasonUnknown
func ReasonOf(err error) Reason {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return ReasonUnknown
}
