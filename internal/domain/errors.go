package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable identifier surfaced to API clients.
type ErrorCode string

const (
	CodeEmailExists         ErrorCode = "EmailExists"
	CodeWeakPassword        ErrorCode = "WeakPassword"
	CodeInvalidCredentials  ErrorCode = "InvalidCredentials"
	CodeAccountLocked       ErrorCode = "AccountLocked"
	CodeAccountDisabled     ErrorCode = "AccountDisabled"
	CodeInvalidRefreshToken ErrorCode = "InvalidRefreshToken"
	CodeInvalidToken        ErrorCode = "InvalidToken"
	CodeSessionError        ErrorCode = "SessionError"
	CodeTokenError          ErrorCode = "TokenError"
	CodeCryptoError         ErrorCode = "CryptoError"
	CodeNotFound            ErrorCode = "NotFound"
	CodeInvalidInput        ErrorCode = "InvalidInput"
)

type Error struct {
	Code    ErrorCode
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinels below work with
// errors.Is regardless of message or wrapped cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

var (
	ErrEmailExists         = &Error{Code: CodeEmailExists, Message: "email already registered"}
	ErrWeakPassword        = &Error{Code: CodeWeakPassword, Message: "password does not meet strength requirements"}
	ErrInvalidCredentials  = &Error{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	ErrAccountLocked       = &Error{Code: CodeAccountLocked, Message: "account is temporarily locked"}
	ErrAccountDisabled     = &Error{Code: CodeAccountDisabled, Message: "account is disabled"}
	ErrInvalidRefreshToken = &Error{Code: CodeInvalidRefreshToken, Message: "invalid refresh token"}
	ErrInvalidToken        = &Error{Code: CodeInvalidToken, Message: "invalid token"}
	ErrSession             = &Error{Code: CodeSessionError, Message: "session error"}
	ErrToken               = &Error{Code: CodeTokenError, Message: "token error"}
	ErrCrypto              = &Error{Code: CodeCryptoError, Message: "cryptographic failure"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidInput        = &Error{Code: CodeInvalidInput, Message: "invalid input"}
)

// WeakPasswordError carries the individual strength failures.
func WeakPasswordError(reasons []string) *Error {
	return &Error{Code: CodeWeakPassword, Message: ErrWeakPassword.Message, Fields: append([]string(nil), reasons...)}
}

func CryptoError(message string, cause error) *Error {
	return &Error{Code: CodeCryptoError, Message: message, Err: cause}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
