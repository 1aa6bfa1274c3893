package model

import "github.com/pkg/errors"

var (
	ErrConnection        = errors.New("connection error")
	ErrAuthentication    = errors.New("authentication error")
	ErrTimeout           = errors.New("timeout")
	ErrCaptureValidation = errors.New("insufficient configuration data captured")
	ErrConfiguration     = errors.New("configuration error")
	ErrStorage           = errors.New("storage error")
	ErrPathViolation     = errors.New("path outside of the backup directory")
	ErrDecryption        = errors.New("decryption error")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrQueueFull         = errors.New("capture queue full")
)

// ErrorKind classifies a failed capture for callers of the capture engine.
type ErrorKind string

const (
	KindAuthentication    ErrorKind = "AuthenticationError"
	KindTimeout           ErrorKind = "Timeout"
	KindConnection        ErrorKind = "ConnectionError"
	KindCaptureValidation ErrorKind = "CaptureValidationError"
	KindConfiguration     ErrorKind = "ConfigurationError"
	KindDecryption        ErrorKind = "DecryptionError"
	KindStorage           ErrorKind = "StorageError"
	KindAllMethodsFailed  ErrorKind = "AllMethodsFailed"
)

// Classify maps an error onto the capture error taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrCaptureValidation):
		return KindCaptureValidation
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrDeviceNotFound):
		return KindConfiguration
	case errors.Is(err, ErrDecryption):
		return KindDecryption
	case errors.Is(err, ErrStorage), errors.Is(err, ErrPathViolation):
		return KindStorage
	default:
		return KindAllMethodsFailed
	}
}
