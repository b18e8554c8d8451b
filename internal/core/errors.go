package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeDuplicateChannel = "duplicate_channel"
	ErrCodeDuplicateClient  = "duplicate_client"
	ErrCodeClientNotFound   = "client_not_found"
	ErrCodeDecode           = "decode_error"
)

var (
	ErrChannelExists  = errors.New("channel already exists")
	ErrClientExists   = errors.New("client already registered")
	ErrClientNotFound = errors.New("client not found")
	ErrSenderClosed   = errors.New("sender closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}
