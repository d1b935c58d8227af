package booking

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/scheduling/internal/provider"
)

// Role of an authenticated caller. Authentication happens upstream; the
// service only checks that the caller occupies the right slot on the
// appointment.
type Role string

const (
	RolePatient   Role = "patient"
	RoleDoctor    Role = "doctor"
	RoleInstitute Role = "institute"
)

// Actor is the already-authenticated caller of a transition.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// Appointment is the aggregate root of the booking lifecycle. Status is only
// ever written through the service's transition operations.
type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    *uuid.UUID // exactly one of DoctorID/InstituteID is set
	InstituteID *uuid.UUID
	ServiceID   uuid.UUID

	StartTime time.Time
	EndTime   time.Time
	Status    Status

	PaymentMethod string
	Amount        int64 // minor units
	DepositAmount int64 // fixed at creation, Amount/10 rounded
	BalanceAmount int64 // fixed at creation, Amount - DepositAmount
	DepositPaid   bool
	DepositRef    string
	BalancePaid   bool
	BalanceRef    string

	PatientPresent   bool
	DoctorPresent    bool
	InstitutePresent bool

	RejectReason string
	Rating       *int
	Review       string
	ChannelID    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Provider returns the provider side of the appointment.
func (a *Appointment) Provider() provider.Ref {
	if a.DoctorID != nil {
		return provider.Ref{Kind: provider.KindDoctor, ID: *a.DoctorID}
	}
	if a.InstituteID != nil {
		return provider.Ref{Kind: provider.KindInstitute, ID: *a.InstituteID}
	}
	return provider.Ref{}
}

// ProviderPresent reports whether the provider side has marked attendance.
func (a *Appointment) ProviderPresent() bool {
	return a.DoctorPresent || a.InstitutePresent
}

// BothPresent reports whether both the patient and the provider side have
// marked attendance.
func (a *Appointment) BothPresent() bool {
	return a.PatientPresent && a.ProviderPresent()
}

// IsPatient reports whether the actor is this appointment's patient.
func (a *Appointment) IsPatient(actor Actor) bool {
	return actor.Role == RolePatient && actor.ID == a.PatientID
}

// IsProvider reports whether the actor is this appointment's provider side.
func (a *Appointment) IsProvider(actor Actor) bool {
	switch actor.Role {
	case RoleDoctor:
		return a.DoctorID != nil && *a.DoctorID == actor.ID
	case RoleInstitute:
		return a.InstituteID != nil && *a.InstituteID == actor.ID
	default:
		return false
	}
}

// IsParticipant reports whether the actor is either side of the appointment.
func (a *Appointment) IsParticipant(actor Actor) bool {
	return a.IsPatient(actor) || a.IsProvider(actor)
}

// ChannelID derives the communication-channel identifier for a provider and
// patient pair. The sorted join makes it independent of argument order, so
// re-running auto-start on the same appointment yields the same channel.
func ChannelID(a, b uuid.UUID) string {
	pair := []string{a.String(), b.String()}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}
