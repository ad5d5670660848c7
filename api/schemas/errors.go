// api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a login failure. Callers branch on the kind, never on message text.
type ErrorKind string

const (
	KindNetwork                  ErrorKind = "NetworkError"
	KindTokenNotFound            ErrorKind = "TokenNotFound"
	KindInvalidRollNumber        ErrorKind = "InvalidRollNumber"
	KindSecurityAnswerMismatch   ErrorKind = "SecurityAnswerMismatch"
	KindInvalidPassword          ErrorKind = "InvalidPassword"
	KindInvalidOTP               ErrorKind = "InvalidOtp"
	KindNoMatchingSecurityAnswer ErrorKind = "NoMatchingSecurityAnswer"
	KindOTPTimeout               ErrorKind = "OtpTimeout"
	KindOTPRequestFailed         ErrorKind = "OtpRequestFailed"
	KindLoginFailed              ErrorKind = "LoginFailed"
	KindNoCredentials            ErrorKind = "NoCredentials"
	KindMailboxNotConnected      ErrorKind = "MailboxNotConnected"
	KindCaptchaUnsupported       ErrorKind = "CaptchaUnsupported"
)

// ErrorCategory is the coarse, user-facing grouping of an ErrorKind.
type ErrorCategory string

const (
	CategoryCredential       ErrorCategory = "credential"
	CategorySecurityQuestion ErrorCategory = "security-question"
	CategoryOTP              ErrorCategory = "otp"
	CategoryNetwork          ErrorCategory = "network"
	CategoryUnknown          ErrorCategory = "unknown"
)

// Category maps a kind onto the four categories a UI renders.
func (k ErrorKind) Category() ErrorCategory {
	switch k {
	case KindInvalidRollNumber, KindInvalidPassword, KindNoCredentials:
		return CategoryCredential
	case KindSecurityAnswerMismatch, KindNoMatchingSecurityAnswer:
		return CategorySecurityQuestion
	case KindInvalidOTP, KindOTPTimeout, KindOTPRequestFailed, KindMailboxNotConnected:
		return CategoryOTP
	case KindNetwork, KindTokenNotFound:
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

// Retryable reports whether the orchestrator may retry after this kind. Only an OTP
// mismatch qualifies.
func (k ErrorKind) Retryable() bool {
	return k == KindInvalidOTP
}

// Error carries a kind plus the raw message so classification can happen outside the core.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindInvalidOTP}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error around a cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from anywhere in err's chain. Unclassified errors report "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
