package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies terminal relay pipeline failures. Handlers map kinds
// to HTTP statuses; everything upstream just wraps.
type ErrorKind string

const (
	ErrKindValidation     ErrorKind = "validation"     // malformed/missing fields
	ErrKindAuthentication ErrorKind = "authentication" // recovered signer != claimed user
	ErrKindExpired        ErrorKind = "expired"        // deadline passed
	ErrKindReplay         ErrorKind = "replay"         // digest already consumed
	ErrKindUpstream       ErrorKind = "upstream"       // chain/network failure after retries
	ErrKindInternal       ErrorKind = "internal"       // unexpected fault
)

// RelayError is a terminal pipeline error with a classified kind
type RelayError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// NewValidationError reports a malformed or missing request field
func NewValidationError(field, reason string) *RelayError {
	return &RelayError{Kind: ErrKindValidation, Message: fmt.Sprintf("invalid %s: %s", field, reason)}
}

// NewAuthenticationError reports a signature that does not match the claimed user
func NewAuthenticationError(message string) *RelayError {
	return &RelayError{Kind: ErrKindAuthentication, Message: message}
}

// NewExpiredError reports a request past its signed deadline
func NewExpiredError() *RelayError {
	return &RelayError{Kind: ErrKindExpired, Message: "Transaction expired"}
}

// NewReplayError reports a previously consumed authorization
func NewReplayError() *RelayError {
	return &RelayError{Kind: ErrKindReplay, Message: "Authorization already used"}
}

// NewUpstreamError wraps a chain/network failure surfaced after retries
func NewUpstreamError(message string, err error) *RelayError {
	return &RelayError{Kind: ErrKindUpstream, Message: message, Err: err}
}

// NewInternalError wraps an unexpected fault
func NewInternalError(err error) *RelayError {
	return &RelayError{Kind: ErrKindInternal, Message: "internal error", Err: err}
}

// KindOf extracts the error kind, defaulting to internal
func KindOf(err error) ErrorKind {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ErrKindInternal
}
