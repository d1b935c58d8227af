package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/scheduling/internal/provider"
)

// Repository contains all appointment storage interactions needed by the
// service. Every status write is a conditional update guarded by the expected
// source status; a write whose guard no longer holds reports
// ErrAppointmentNotFound so the service can reload and surface the race as an
// invalid transition.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateIfFree inserts appt in its initial status after re-checking,
	// inside the same transaction, that neither the provider nor the patient
	// has an overlapping appointment in any of blocking statuses once both
	// intervals are widened by buffer. Returns ErrSlotTaken or ErrDoubleBooked.
	CreateIfFree(ctx context.Context, appt *Appointment, blocking []Status, buffer time.Duration) (*Appointment, error)

	// Bulk reads for conflict checks and slot generation.
	ListProviderInWindow(ctx context.Context, ref provider.Ref, statuses []Status, from, to time.Time) ([]Appointment, error)
	ListPatientInWindow(ctx context.Context, patientID uuid.UUID, statuses []Status, from, to time.Time) ([]Appointment, error)

	// Listings for calendars and participant views.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByProvider(ctx context.Context, ref provider.Ref, limit, offset int) ([]Appointment, error)

	// Conditional transition writes.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	RejectWithReason(ctx context.Context, id uuid.UUID, from Status, reason string) (*Appointment, error)
	SetDepositPaid(ctx context.Context, id uuid.UUID, from, to Status, ref string) (*Appointment, error)
	SetBalancePaid(ctx context.Context, id uuid.UUID, from, to Status, ref string) (*Appointment, error)
	SetPresence(ctx context.Context, id uuid.UUID, role Role, statuses []Status) (*Appointment, error)
	PromoteToOngoing(ctx context.Context, id uuid.UUID, from Status, channelID string) (*Appointment, error)
	AttachReview(ctx context.Context, id uuid.UUID, rating int, review string) (*Appointment, error)

	// Sweep queries.
	ListStaleStarts(ctx context.Context, statuses []Status, startedBefore time.Time) ([]Appointment, error)
	ListOngoingEnded(ctx context.Context, endedBefore time.Time) ([]Appointment, error)
	ListConfirmedDue(ctx context.Context, now time.Time) ([]Appointment, error)
}
