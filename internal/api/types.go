package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebook/scheduling/internal/booking"
	"github.com/carebook/scheduling/internal/schedule"
)

type BookAppointmentRequest struct {
	ProviderKind  string    `json:"provider_kind"`
	ProviderID    string    `json:"provider_id"`
	ServiceID     string    `json:"service_id"`
	Start         time.Time `json:"start"`
	PaymentMethod string    `json:"payment_method"`
}

type PaymentRequest struct {
	Reference string `json:"reference"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type ReviewRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

type UpsertTemplateRequest struct {
	Weekdays []int  `json:"weekdays"` // 0=Sunday .. 6=Saturday
	Start    string `json:"start"`    // "HH:mm"
	End      string `json:"end"`      // "HH:mm", "24:00" for end of day
	Active   bool   `json:"active"`
}

type TemplateResponse struct {
	ProviderKind string `json:"provider_kind"`
	ProviderID   string `json:"provider_id"`
	Weekdays     []int  `json:"weekdays"`
	StartMinute  int    `json:"start_minute"`
	EndMinute    int    `json:"end_minute"`
	Active       bool   `json:"active"`
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	InstituteID   *uuid.UUID `json:"institute_id,omitempty"`
	ServiceID     uuid.UUID  `json:"service_id"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	Amount        int64      `json:"amount"`
	DepositAmount int64      `json:"deposit_amount"`
	BalanceAmount int64      `json:"balance_amount"`
	DepositPaid   bool       `json:"deposit_paid"`
	BalancePaid   bool       `json:"balance_paid"`
	RejectReason  string     `json:"reject_reason,omitempty"`
	Rating        *int       `json:"rating,omitempty"`
	Review        string     `json:"review,omitempty"`
	ChannelID     string     `json:"channel_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		InstituteID:   a.InstituteID,
		ServiceID:     a.ServiceID,
		Start:         a.StartTime,
		End:           a.EndTime,
		Status:        string(a.Status),
		PaymentMethod: a.PaymentMethod,
		Amount:        a.Amount,
		DepositAmount: a.DepositAmount,
		BalanceAmount: a.BalanceAmount,
		DepositPaid:   a.DepositPaid,
		BalancePaid:   a.BalancePaid,
		RejectReason:  a.RejectReason,
		Rating:        a.Rating,
		Review:        a.Review,
		ChannelID:     a.ChannelID,
		CreatedAt:     a.CreatedAt,
	}
}

func toTemplateResponse(t *schedule.Template) TemplateResponse {
	days := make([]int, 0, 7)
	for _, d := range t.Weekdays.Weekdays() {
		days = append(days, int(d))
	}
	return TemplateResponse{
		ProviderKind: string(t.Provider.Kind),
		ProviderID:   t.Provider.ID.String(),
		Weekdays:     days,
		StartMinute:  t.StartMinute,
		EndMinute:    t.EndMinute,
		Active:       t.Active,
	}
}

func toSlotResponses(slots []schedule.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{Start: s.Start, End: s.End})
	}
	return out
}
