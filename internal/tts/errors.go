package tts

import (
	"errors"
	"fmt"
)

// Common pipeline errors
var (
	// ErrDisabled indicates speech is switched off in the settings
	ErrDisabled = errors.New("speech is disabled")

	// ErrBusy indicates a request was dropped because another one is in flight
	ErrBusy = errors.New("a request is already in flight")

	// ErrNoLocalEngine indicates the local backend was forced but no engine qualifies
	ErrNoLocalEngine = errors.New("no on-device engine with usable voices")

	// ErrEmptyText indicates there is nothing to speak
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrPlayback indicates audio could not be played
	ErrPlayback = errors.New("audio playback failed")
)

// ErrorCode identifies the backend error taxonomy.
type ErrorCode string

const (
	ErrorCodeNetwork   ErrorCode = "NETWORK_ERROR"
	ErrorCodeServer    ErrorCode = "SERVER_ERROR"
	ErrorCodeEngine    ErrorCode = "ENGINE_FAILURE"
	ErrorCodePlayback  ErrorCode = "PLAYBACK_ERROR"
	ErrorCodeVoice     ErrorCode = "VOICE_RESOLUTION"
	ErrorCodeContainer ErrorCode = "CONTAINER_NOT_FOUND"
)

// NetworkError is a transport failure talking to the synthesis service.
type NetworkError struct {
	Message string
	Cause   error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Code returns the taxonomy code.
func (e *NetworkError) Code() ErrorCode { return ErrorCodeNetwork }

// NewNetworkError wraps a transport failure.
func NewNetworkError(cause error) *NetworkError {
	msg := "network error"
	if cause != nil {
		msg = cause.Error()
	}
	return &NetworkError{Message: msg, Cause: cause}
}

// ServerError is a non-2xx reply from the synthesis service.
type ServerError struct {
	Status int
}

// Error implements the error interface. The wording is shown to users as-is.
func (e *ServerError) Error() string {
	return fmt.Sprintf("Помилка сервера: %d", e.Status)
}

// Code returns the taxonomy code.
func (e *ServerError) Code() ErrorCode { return ErrorCodeServer }

// EngineError is a failure of the on-device engine.
type EngineError struct {
	Engine string
	Cause  error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Engine, e.Cause)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Code returns the taxonomy code.
func (e *EngineError) Code() ErrorCode { return ErrorCodeEngine }

// CodeOf returns the taxonomy code of err, or "" for untyped errors.
func CodeOf(err error) ErrorCode {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	if errors.Is(err, ErrPlayback) {
		return ErrorCodePlayback
	}
	return ""
}

// IsBackendUnavailable reports whether err suggests the backend is down and
// the status monitor should look again.
func IsBackendUnavailable(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeNetwork, ErrorCodeServer, ErrorCodeEngine:
		return true
	default:
		return false
	}
}
