package bantuan

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the lifecycle engine. All are synchronous,
// recoverable-by-caller failures; wrap with %w and test with errors.Is.
var (
	// ErrValidation is returned for bad input shape or range (tahun anggaran,
	// negative nominal, out-of-range bulan).
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition is returned when the requested status change is not
	// permitted from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotFound is returned when the referenced bantuan or distribusi row
	// does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConcurrency is returned when two activations race and the slower one
	// loses to the (bantuan_id, bulan) unique index.
	ErrConcurrency = errors.New("concurrent activation detected")
)

// ErrDuplikat is returned when a keluarga already holds a non-cancelled
// bantuan for the same tahun anggaran. Wraps ErrValidation so callers that
// only care about the broad class keep working.
var ErrDuplikat = fmt.Errorf("%w: bantuan duplikat", ErrValidation)
