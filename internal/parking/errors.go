package parking

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrNotAvailable is the expected outcome when no slot of the requested
	// size is free in any section.
	ErrNotAvailable = errors.New("no suitable slot available")

	// ErrNotFound reports an unknown or already released ticket.
	ErrNotFound = errors.New("ticket not found")

	ErrInvalidRequest = errors.New("invalid request")
)

const (
	reasonPeakHours       = "peak-hour restriction"
	reasonMaxReEntries    = "max re-entries exceeded"
	reasonAlreadyParked   = "already parked"
	reasonSuspendedPrefix = "suspended: "
)

// DeniedError is returned when an entry policy rejects a request. Reason is
// meant to be shown to the requester as is.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "entry denied: " + e.Reason
}

func denied(reason string) error {
	return &DeniedError{Reason: reason}
}

// IsDenied reports whether err is an entry denial and returns its reason.
func IsDenied(err error) (string, bool) {
	var d *DeniedError
	if errors.As(err, &d) {
		return d.Reason, true
	}
	return "", false
}

// IsInvariantViolation reports errors that indicate a defect in the engine
// rather than a caller mistake.
func IsInvariantViolation(err error) bool {
	return errors.IsAssertionFailure(err)
}
