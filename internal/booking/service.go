package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/scheduling/internal/config"
	"github.com/carebook/scheduling/internal/pricing"
	"github.com/carebook/scheduling/internal/provider"
	redisclient "github.com/carebook/scheduling/internal/redis"
	"github.com/carebook/scheduling/internal/schedule"
	"github.com/carebook/scheduling/internal/timeutil"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventStatusTransition     = "STATUS_TRANSITION"
	EventAppointmentAutoStart = "APPOINTMENT_AUTO_START"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

// EventLog is an append-only audit record of lifecycle events.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// EventSink stores audit events. Failures are logged, never propagated.
type EventSink interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Service drives the appointment lifecycle. It is the sole write path to an
// appointment's status, payment flags and presence flags.
type Service struct {
	repo      Repository
	events    EventSink
	templates schedule.Repository
	prices    pricing.Lookup
	locker    redisclient.Locker
	cfg       config.Config
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, events EventSink, templates schedule.Repository, prices pricing.Lookup, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		events:    events,
		templates: templates,
		prices:    prices,
		locker:    locker,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the service clock. Tests inject a fixed now here so every
// time-dependent path is deterministic.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// BookRequest is a patient's request for a concrete slot.
type BookRequest struct {
	PatientID     uuid.UUID
	Provider      provider.Ref
	ServiceID     uuid.UUID
	Start         time.Time
	PaymentMethod string
}

// Book validates the requested window against the provider's template and both
// participants' calendars, then creates the appointment in pending_accept.
// The conflict predicate is re-checked inside the insert transaction while a
// per-provider lock is held, so two racing requests for overlapping windows
// cannot both succeed.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	now := s.now()
	start := req.Start
	end := start.Add(s.cfg.SlotDuration)

	if start.Before(now.Add(s.cfg.BookingLeadTime)) ||
		start.After(now.AddDate(0, 0, s.cfg.BookingHorizonDays)) {
		return nil, ErrBookingWindow
	}

	tpl, err := s.templates.GetByProvider(ctx, req.Provider)
	if err != nil {
		if errors.Is(err, schedule.ErrTemplateNotFound) {
			return nil, ErrProviderUnavailable
		}
		return nil, fmt.Errorf("load template: %w", err)
	}
	if !tpl.Active {
		return nil, ErrProviderUnavailable
	}
	if !tpl.Covers(start, end, s.cfg.Timezone) {
		return nil, ErrOutsideWorkingHours
	}

	amount, err := s.prices.GetPrice(ctx, req.Provider, req.ServiceID)
	if err != nil {
		if errors.Is(err, pricing.ErrPriceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve price: %w", err)
	}
	deposit, balance := pricing.Split(amount)

	appt := &Appointment{
		PatientID:     req.PatientID,
		ServiceID:     req.ServiceID,
		StartTime:     start,
		EndTime:       end,
		Status:        StatusPendingAccept,
		PaymentMethod: req.PaymentMethod,
		Amount:        amount,
		DepositAmount: deposit,
		BalanceAmount: balance,
	}
	switch req.Provider.Kind {
	case provider.KindDoctor:
		id := req.Provider.ID
		appt.DoctorID = &id
	case provider.KindInstitute:
		id := req.Provider.ID
		appt.InstituteID = &id
	}

	buffer := s.cfg.OverlapBuffer
	var created *Appointment

	err = s.locker.WithProviderLock(ctx, req.Provider.Key(), func(lockCtx context.Context) error {
		// Bulk-fetch both calendars once for precise errors before the
		// transactional re-check.
		taken, err := s.repo.ListProviderInWindow(lockCtx, req.Provider, InFlightStatuses, start.Add(-buffer), end.Add(buffer))
		if err != nil {
			return fmt.Errorf("check provider calendar: %w", err)
		}
		if len(taken) > 0 {
			return ErrSlotTaken
		}

		mine, err := s.repo.ListPatientInWindow(lockCtx, req.PatientID, InFlightStatuses, start.Add(-buffer), end.Add(buffer))
		if err != nil {
			return fmt.Errorf("check patient calendar: %w", err)
		}
		if len(mine) > 0 {
			return ErrDoubleBooked
		}

		created, err = s.repo.CreateIfFree(lockCtx, appt, InFlightStatuses, buffer)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"provider":   req.Provider.Key(),
		"patient_id": req.PatientID.String(),
		"start":      created.StartTime,
		"amount":     created.Amount,
	})

	return created, nil
}

// OpenSlots lists the provider's free candidate slots for the next horizon
// days. A provider without an active template has no slots.
func (s *Service) OpenSlots(ctx context.Context, ref provider.Ref, horizonDays int) ([]schedule.Slot, error) {
	if horizonDays <= 0 {
		horizonDays = s.cfg.SlotLookaheadDays
	}

	tpl, err := s.templates.GetByProvider(ctx, ref)
	if err != nil {
		if errors.Is(err, schedule.ErrTemplateNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load template: %w", err)
	}
	if !tpl.Active {
		return nil, nil
	}

	now := s.now()
	loc := s.cfg.Timezone

	// One bulk read covering the whole horizon; the generator filters in
	// memory rather than querying per candidate slot.
	from := timeutil.AtMinute(now, 0, loc)
	to := timeutil.AtMinute(now.AddDate(0, 0, horizonDays-1), timeutil.EndOfDayMinute, loc)
	existing, err := s.repo.ListProviderInWindow(ctx, ref, OccupiesCalendarStatuses, from, to)
	if err != nil {
		return nil, fmt.Errorf("load provider calendar: %w", err)
	}

	busy := make([]schedule.Interval, 0, len(existing))
	for _, a := range existing {
		busy = append(busy, schedule.Interval{Start: a.StartTime, End: a.EndTime})
	}

	cfg := schedule.GeneratorConfig{
		SlotDuration: s.cfg.SlotDuration,
		SlotGap:      s.cfg.SlotGap,
		HorizonDays:  horizonDays,
	}
	return schedule.GenerateSlots(*tpl, now, loc, cfg, busy), nil
}

// GetAppointment returns the appointment to one of its participants.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.IsParticipant(actor) {
		return nil, ErrNotAuthorized
	}
	return appt, nil
}

// ListPatientAppointments lists a patient's own appointments, newest first.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListProviderAppointments lists a provider's appointments, newest first.
func (s *Service) ListProviderAppointments(ctx context.Context, ref provider.Ref, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByProvider(ctx, ref, limit, offset)
}

// Accept moves a pending appointment to awaiting_deposit.
func (s *Service) Accept(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.loadFor(ctx, id, actor, asProvider, ActionAccept)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusAwaitingDeposit)
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionAccept, err)
	}

	s.transitionEvent(ctx, updated, ActionAccept)
	return updated, nil
}

// Reject declines a pending appointment, storing the provider's reason.
func (s *Service) Reject(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.loadFor(ctx, id, actor, asProvider, ActionReject)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.RejectWithReason(ctx, id, appt.Status, reason)
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionReject, err)
	}

	s.transitionEvent(ctx, updated, ActionReject)
	return updated, nil
}

// PayDeposit records the patient's deposit reference and moves to booked. The
// reference is recorded as-is; settlement verification is an external concern.
func (s *Service) PayDeposit(ctx context.Context, actor Actor, id uuid.UUID, ref string) (*Appointment, error) {
	if ref == "" {
		return nil, ErrPaymentRefRequired
	}

	appt, err := s.loadFor(ctx, id, actor, asPatient, ActionPayDeposit)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.SetDepositPaid(ctx, id, appt.Status, StatusBooked, ref)
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionPayDeposit, err)
	}

	s.transitionEvent(ctx, updated, ActionPayDeposit)
	return updated, nil
}

// ConfirmDeposit is the provider's acknowledgement of the deposit reference,
// moving booked to confirmed.
func (s *Service) ConfirmDeposit(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.loadFor(ctx, id, actor, asProvider, ActionConfirmDeposit)
	if err != nil {
		return nil, err
	}
	if !appt.DepositPaid {
		return nil, &TransitionError{Action: ActionConfirmDeposit, Current: appt.Status}
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusConfirmed)
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionConfirmDeposit, err)
	}

	s.transitionEvent(ctx, updated, ActionConfirmDeposit)
	return updated, nil
}

// MarkAttendance sets the caller's presence flag. When the appointment is
// still booked and both sides are present it auto-advances to ongoing.
func (s *Service) MarkAttendance(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	_, err := s.loadFor(ctx, id, actor, asParticipant, ActionMarkAttendance)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.SetPresence(ctx, id, actor.Role, allowedSources[ActionMarkAttendance])
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionMarkAttendance, err)
	}

	if updated.Status == StatusBooked && updated.BothPresent() {
		channel := ChannelID(updated.Provider().ID, updated.PatientID)
		promoted, err := s.repo.PromoteToOngoing(ctx, id, StatusBooked, channel)
		if err != nil {
			// Someone else advanced it first; the presence flag is recorded.
			if errors.Is(err, ErrAppointmentNotFound) {
				return updated, nil
			}
			return nil, err
		}
		s.transitionEvent(ctx, promoted, ActionMarkAttendance)
		return promoted, nil
	}

	return updated, nil
}

// MarkComplete is the provider declaring the consultation over.
func (s *Service) MarkComplete(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.loadFor(ctx, id, actor, asProvider, ActionMarkComplete)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusMarkedComplete)
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionMarkComplete, err)
	}

	s.transitionEvent(ctx, updated, ActionMarkComplete)
	return updated, nil
}

// PatientComplete lets the patient close out an appointment from any of the
// allowed late-stage statuses.
func (s *Service) PatientComplete(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.loadFor(ctx, id, actor, asPatient, ActionPatientComplete)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusCompleted)
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionPatientComplete, err)
	}

	s.transitionEvent(ctx, updated, ActionPatientComplete)
	return updated, nil
}

// PayBalance records the patient's balance reference and moves to fully_paid.
func (s *Service) PayBalance(ctx context.Context, actor Actor, id uuid.UUID, ref string) (*Appointment, error) {
	if ref == "" {
		return nil, ErrPaymentRefRequired
	}

	appt, err := s.loadFor(ctx, id, actor, asPatient, ActionPayBalance)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.SetBalancePaid(ctx, id, appt.Status, StatusFullyPaid, ref)
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionPayBalance, err)
	}

	s.transitionEvent(ctx, updated, ActionPayBalance)
	return updated, nil
}

// ConfirmBalance is the provider's acknowledgement of the balance payment.
func (s *Service) ConfirmBalance(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.loadFor(ctx, id, actor, asProvider, ActionConfirmBalance)
	if err != nil {
		return nil, err
	}
	if !appt.BalancePaid {
		return nil, &TransitionError{Action: ActionConfirmBalance, Current: appt.Status}
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusConfirmFullyPaid)
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionConfirmBalance, err)
	}

	s.transitionEvent(ctx, updated, ActionConfirmBalance)
	return updated, nil
}

// SubmitReview attaches the patient's one-time rating and review text to a
// fully settled appointment. The status does not change.
func (s *Service) SubmitReview(ctx context.Context, actor Actor, id uuid.UUID, rating int, review string) (*Appointment, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	appt, err := s.loadFor(ctx, id, actor, asPatient, ActionSubmitReview)
	if err != nil {
		return nil, err
	}
	if appt.Rating != nil {
		return nil, ErrAlreadyReviewed
	}

	updated, err := s.repo.AttachReview(ctx, id, rating, review)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			current, loadErr := s.repo.GetByID(ctx, id)
			if loadErr != nil {
				return nil, loadErr
			}
			if current.Rating != nil {
				return nil, ErrAlreadyReviewed
			}
			return nil, &TransitionError{Action: ActionSubmitReview, Current: current.Status}
		}
		return nil, err
	}

	s.transitionEvent(ctx, updated, ActionSubmitReview)
	return updated, nil
}

// Cancel is the patient backing out. Before any payment it lands in
// cancelled_unpaid; once booked the deposit is forfeited and it lands in
// cancelled.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.loadFor(ctx, id, actor, asPatient, ActionCancel)
	if err != nil {
		return nil, err
	}

	to := StatusCancelledUnpaid
	if appt.Status == StatusBooked {
		to = StatusCancelled
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to)
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionCancel, err)
	}

	s.transitionEvent(ctx, updated, ActionCancel)
	return updated, nil
}

// FileComplaint freezes a non-terminal appointment pending administrative
// resolution. Freeze is absorbing as far as this service is concerned.
func (s *Service) FileComplaint(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.loadFor(ctx, id, actor, asParticipant, ActionFileComplaint)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusFreeze)
	if err != nil {
		return nil, s.raceLost(ctx, id, ActionFileComplaint, err)
	}

	s.transitionEvent(ctx, updated, ActionFileComplaint)
	return updated, nil
}

// Guard helpers

type party int

const (
	asPatient party = iota
	asProvider
	asParticipant
)

// loadFor applies the uniform guard sequence: reload, verify the caller holds
// the required role slot on this appointment, verify the current status allows
// the action.
func (s *Service) loadFor(ctx context.Context, id uuid.UUID, actor Actor, p party, action Action) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	authorized := false
	switch p {
	case asPatient:
		authorized = appt.IsPatient(actor)
	case asProvider:
		authorized = appt.IsProvider(actor)
	case asParticipant:
		authorized = appt.IsParticipant(actor)
	}
	if !authorized {
		return nil, ErrNotAuthorized
	}

	if !appt.Status.AllowedFrom(action) {
		return nil, &TransitionError{Action: action, Current: appt.Status}
	}

	return appt, nil
}

// raceLost translates a failed conditional write. If the row still exists the
// status moved between our guard check and the write; the loser gets an
// invalid-transition error naming the fresh status instead of a silent
// overwrite.
func (s *Service) raceLost(ctx context.Context, id uuid.UUID, action Action, err error) error {
	if !errors.Is(err, ErrAppointmentNotFound) {
		return err
	}
	current, loadErr := s.repo.GetByID(ctx, id)
	if loadErr != nil {
		return loadErr
	}
	return &TransitionError{Action: action, Current: current.Status}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) transitionEvent(ctx context.Context, appt *Appointment, action Action) {
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("action", string(action)).
		Str("status", string(appt.Status)).
		Msg("status transition applied")

	s.logEvent(ctx, appt.ID, EventStatusTransition, map[string]any{
		"action": string(action),
		"status": string(appt.Status),
	})
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.events.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}
