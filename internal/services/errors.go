package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrAccessDenied      = errors.New("access denied")
	ErrHashMismatch      = errors.New("hash mismatch")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrNotReady          = errors.New("not ready")
	ErrToolUnavailable   = errors.New("transcoder unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTimeout           = errors.New("timeout")
)

// Stage names a merge pipeline step for error reporting.
type Stage string

const (
	StageAnalysis    Stage = "analysis"
	StagePreparation Stage = "preparation"
	StageMerge       Stage = "merge"
	StageCompression Stage = "compression"
	StageStorage     Stage = "storage"
	StageCleanup     Stage = "cleanup"
)

// ProcessingError is a pipeline fault. It is never returned for expected
// negative results such as an incomplete group; those use ErrNotReady.
type ProcessingError struct {
	Stage     Stage
	Retryable bool
	Err       error
}

func (e *ProcessingError) Error() string {
	detail := "unknown failure"
	if e.Err != nil {
		detail = strings.TrimSpace(e.Err.Error())
	}
	return fmt.Sprintf("%s failed (retryable=%t): %s", e.Stage, e.Retryable, detail)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError wraps err for the given stage. Timeouts and tool
// outages are retryable; anything else is not unless forced.
func NewProcessingError(stage Stage, err error) *ProcessingError {
	return &ProcessingError{
		Stage:     stage,
		Retryable: errors.Is(err, ErrTimeout) || errors.Is(err, ErrToolUnavailable),
		Err:       err,
	}
}

// AsProcessingError extracts a ProcessingError from err, if present.
func AsProcessingError(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Validationf builds an ErrValidation-tagged error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Wrap tags err with marker while keeping operation context in the message.
func Wrap(marker error, operation string, err error) error {
	operation = strings.TrimSpace(operation)
	switch {
	case err == nil && operation == "":
		return marker
	case err == nil:
		return fmt.Errorf("%w: %s", marker, operation)
	case operation == "":
		return fmt.Errorf("%w: %w", marker, err)
	default:
		return fmt.Errorf("%w: %s: %w", marker, operation, err)
	}
}
