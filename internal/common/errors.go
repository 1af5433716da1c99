package common

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure for logging and user messaging.
type ErrorCode string

// Stable values (logged and stored in the job ledger).
const (
	CodeTransportFailure     ErrorCode = "TRANSPORT_FAILURE"
	CodeNoAudioStream        ErrorCode = "NO_AUDIO_STREAM"
	CodeTranscodeFailure     ErrorCode = "TRANSCODE_FAILURE"
	CodeTranscriptionFailure ErrorCode = "TRANSCRIPTION_FAILURE"
	CodeGenerationFailure    ErrorCode = "GENERATION_FAILURE"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeUnexpected           ErrorCode = "UNEXPECTED"
)

// AppError represents application-specific errors
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError builds an AppError with an explicit code.
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error constructors per code.
func TransportFailure(message string, cause error) *AppError {
	return NewAppError(CodeTransportFailure, message, cause)
}

func NoAudioStream(message string) *AppError {
	return NewAppError(CodeNoAudioStream, message, nil)
}

func TranscodeFailure(message string, cause error) *AppError {
	return NewAppError(CodeTranscodeFailure, message, cause)
}

func TranscriptionFailure(message string, cause error) *AppError {
	return NewAppError(CodeTranscriptionFailure, message, cause)
}

func GenerationFailure(message string, cause error) *AppError {
	return NewAppError(CodeGenerationFailure, message, cause)
}

func NotFound(message string) *AppError {
	return NewAppError(CodeNotFound, message, nil)
}

func Unexpected(message string, cause error) *AppError {
	return NewAppError(CodeUnexpected, message, cause)
}

// CodeOf extracts the ErrorCode from err's chain, or CodeUnexpected when err
// carries no AppError.
func CodeOf(err error) ErrorCode {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnexpected
}

// IsCode reports whether err's chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
