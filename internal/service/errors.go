package service

import (
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/fitreserve/internal/repository"
)

// Expected outcomes of the booking operations. None of them is a defect and
// none is retried; handlers map them to client-facing responses.
var (
	// ErrNotFound covers missing courses, users and reservations, including
	// reservations that belong to someone else.
	ErrNotFound = repository.ErrNotFound

	// ErrCapacityExceeded is returned when a course has no open seat.
	ErrCapacityExceeded = errors.New("course is fully booked")

	// ErrDuplicateReservation is returned when the user already holds a seat.
	ErrDuplicateReservation = errors.New("already reserved for this course")

	// ErrPastClass is returned when cancelling a class that has started.
	ErrPastClass = errors.New("class has already started")

	// ErrCancellationWindowClosed is returned when the class starts too soon
	// to cancel. The concrete error is *CancellationWindowError.
	ErrCancellationWindowClosed = errors.New("cancellation window closed")

	// ErrCapacityBelowOccupancy is returned when an update would shrink a
	// course below the seats already taken.
	ErrCapacityBelowOccupancy = errors.New("capacity below current occupancy")

	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
)

// CancellationWindowError carries the time left before class start.
type CancellationWindowError struct {
	HoursRemaining float64
	Window         float64 // hours
}

func (e *CancellationWindowError) Error() string {
	return fmt.Sprintf("cancellation not allowed less than %g hours before class start (%.1f hours remaining)",
		e.Window, e.HoursRemaining)
}

func (e *CancellationWindowError) Unwrap() error {
	return ErrCancellationWindowClosed
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// IsBusinessError reports whether err is an expected business outcome as
// opposed to an infrastructure failure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrDuplicateReservation) ||
		errors.Is(err, ErrPastClass) ||
		errors.Is(err, ErrCancellationWindowClosed) ||
		errors.Is(err, ErrCapacityBelowOccupancy) ||
		errors.Is(err, ErrEmailTaken) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidInput)
}
