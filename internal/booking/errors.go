package booking

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrNotAuthorized       = errors.New("caller is not the required participant for this action")

	// Booking preconditions. All are detected before any write.
	ErrProviderUnavailable = errors.New("provider has no active availability template")
	ErrOutsideWorkingHours = errors.New("requested time is outside the provider's working hours")
	ErrBookingWindow       = errors.New("requested time violates the booking window")
	ErrSlotTaken           = errors.New("provider already has an appointment overlapping this time")
	ErrDoubleBooked        = errors.New("patient already has an appointment overlapping this time")
	ErrBookingBusy         = errors.New("provider is handling another booking, please retry")

	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrPaymentRefRequired = errors.New("payment reference number is required")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrAlreadyReviewed    = errors.New("appointment already has a review")
)

// TransitionError is returned when an action is not legal from the
// appointment's current status, including when a concurrent write moved the
// status between the guard check and the conditional update. It carries the
// current status so the caller can resynchronize its view.
type TransitionError struct {
	Action  Action
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("action %s not allowed from status %s", e.Action, e.Current)
}

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
