package checkin

import (
	"errors"
	"fmt"

	"voicejournal/internal/crisis"
)

var (
	ErrCapture         = errors.New("capture error")
	ErrTransport       = errors.New("transport error")
	ErrValidation      = errors.New("validation error")
	ErrSafetyHalt      = errors.New("safety halt")
	ErrPersistence     = errors.New("persistence error")
	ErrSessionNotFound = errors.New("session not found")
)

// HaltError carries the crisis decision that stopped the pipeline. It
// matches ErrSafetyHalt.
type HaltError struct {
	Decision crisis.Decision
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("safety halt: severity %d requires explicit consent", e.Decision.Severity)
}

func (e *HaltError) Unwrap() error { return ErrSafetyHalt }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
