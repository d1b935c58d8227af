package booking

// Status is the closed set of appointment lifecycle states. The main chain is
//
//	pending_accept → awaiting_deposit → booked → confirmed → ongoing
//	  → marked_complete → fully_paid → confirm_fully_paid
//
// with terminal side branches for rejection, cancellation, no-shows and
// completion, plus the absorbing freeze state entered when a complaint is
// filed.
type Status string

const (
	StatusPendingAccept    Status = "pending_accept"
	StatusAwaitingDeposit  Status = "awaiting_deposit"
	StatusBooked           Status = "booked"
	StatusConfirmed        Status = "confirmed"
	StatusOngoing          Status = "ongoing"
	StatusMarkedComplete   Status = "marked_complete"
	StatusFullyPaid        Status = "fully_paid"
	StatusConfirmFullyPaid Status = "confirm_fully_paid"

	StatusCompleted       Status = "completed"
	StatusRejected        Status = "rejected"
	StatusCancelledUnpaid Status = "cancelled_unpaid"
	StatusCancelled       Status = "cancelled"
	StatusNoShowPatient   Status = "no_show_patient"
	StatusNoShowDoctor    Status = "no_show_doctor"
	StatusNoShowBoth      Status = "no_show_both"
	StatusFreeze          Status = "freeze"
)

// InFlightStatuses are the states that still occupy the participants'
// calendars and therefore block overlapping bookings. Every call site that
// needs "all non-terminal statuses" must use this set rather than restate it.
var InFlightStatuses = []Status{
	StatusPendingAccept,
	StatusAwaitingDeposit,
	StatusBooked,
	StatusConfirmed,
	StatusOngoing,
	StatusMarkedComplete,
	StatusFullyPaid,
	StatusConfirmFullyPaid,
	StatusFreeze,
}

// OccupiesCalendarStatuses is the conservative set the slot generator filters
// against: everything except the rejected and cancelled paths.
var OccupiesCalendarStatuses = []Status{
	StatusPendingAccept,
	StatusAwaitingDeposit,
	StatusBooked,
	StatusConfirmed,
	StatusOngoing,
	StatusMarkedComplete,
	StatusFullyPaid,
	StatusConfirmFullyPaid,
	StatusCompleted,
	StatusNoShowPatient,
	StatusNoShowDoctor,
	StatusNoShowBoth,
	StatusFreeze,
}

// Terminal reports whether no further transition may leave s. The
// confirm_fully_paid state is not terminal in this sense: the patient may
// still complete it, and the one-time review attaches there.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelledUnpaid, StatusCancelled,
		StatusNoShowPatient, StatusNoShowDoctor, StatusNoShowBoth:
		return true
	default:
		return false
	}
}

// In reports set membership.
func (s Status) In(set []Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Action names a caller-driven transition.
type Action string

const (
	ActionAccept          Action = "accept"
	ActionReject          Action = "reject"
	ActionPayDeposit      Action = "pay_deposit"
	ActionConfirmDeposit  Action = "confirm_deposit"
	ActionMarkAttendance  Action = "mark_attendance"
	ActionMarkComplete    Action = "mark_complete"
	ActionPatientComplete Action = "patient_complete"
	ActionPayBalance      Action = "pay_balance"
	ActionConfirmBalance  Action = "confirm_balance"
	ActionSubmitReview    Action = "submit_review"
	ActionCancel          Action = "cancel"
	ActionFileComplaint   Action = "file_complaint"
)

// allowedSources is the authoritative guard table: the statuses an action may
// be applied from. Cancel and complaint pick their target from the current
// status; everything else has a single destination.
var allowedSources = map[Action][]Status{
	ActionAccept:          {StatusPendingAccept},
	ActionReject:          {StatusPendingAccept},
	ActionPayDeposit:      {StatusAwaitingDeposit},
	ActionConfirmDeposit:  {StatusBooked},
	ActionMarkAttendance:  {StatusBooked, StatusConfirmed, StatusOngoing},
	ActionMarkComplete:    {StatusOngoing},
	ActionPatientComplete: {StatusConfirmed, StatusOngoing, StatusMarkedComplete, StatusConfirmFullyPaid},
	ActionPayBalance:      {StatusMarkedComplete},
	ActionConfirmBalance:  {StatusFullyPaid},
	ActionSubmitReview:    {StatusConfirmFullyPaid},
	ActionCancel:          {StatusPendingAccept, StatusAwaitingDeposit, StatusBooked},
	ActionFileComplaint:   InFlightStatuses,
}

// AllowedFrom reports whether action may be applied while in s.
func (s Status) AllowedFrom(action Action) bool {
	return s.In(allowedSources[action])
}
