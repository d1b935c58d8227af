package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/scheduling/internal/booking"
	"github.com/carebook/scheduling/internal/pricing"
	"github.com/carebook/scheduling/internal/provider"
	"github.com/carebook/scheduling/internal/schedule"
	"github.com/carebook/scheduling/internal/timeutil"
)

// Handler exposes the booking service over HTTP.
type Handler struct {
	svc       *booking.Service
	templates schedule.Repository
	log       zerolog.Logger
}

func NewHandler(svc *booking.Service, templates schedule.Repository, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, templates: templates, log: log}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// writeServiceError maps domain sentinels onto HTTP statuses. Unknown errors
// become opaque 500s.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var te *booking.TransitionError
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound),
		errors.Is(err, schedule.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrSlotTaken),
		errors.Is(err, booking.ErrDoubleBooked),
		errors.Is(err, booking.ErrBookingBusy),
		errors.Is(err, booking.ErrAlreadyReviewed):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "invalid_transition",
			Details: te.Error(),
		})
	case errors.Is(err, booking.ErrBookingWindow),
		errors.Is(err, booking.ErrOutsideWorkingHours),
		errors.Is(err, booking.ErrProviderUnavailable),
		errors.Is(err, booking.ErrPaymentRefRequired),
		errors.Is(err, booking.ErrInvalidRating),
		errors.Is(err, pricing.ErrPriceNotFound),
		errors.Is(err, provider.ErrInvalidKind),
		errors.Is(err, timeutil.ErrInvalidTimeFormat),
		errors.Is(err, schedule.ErrInvalidWindow),
		errors.Is(err, schedule.ErrNoWeekdays):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (booking.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or malformed actor headers")
	}
	return actor, ok
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func providerRef(r *http.Request) (provider.Ref, error) {
	kind, err := provider.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return provider.Ref{}, err
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return provider.Ref{}, err
	}
	return provider.Ref{Kind: kind, ID: id}, nil
}

// BookAppointment handles POST /appointments.
func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if actor.Role != booking.RolePatient {
		writeError(w, http.StatusForbidden, "forbidden", "only patients can book appointments")
		return
	}

	var req BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	kind, err := provider.ParseKind(req.ProviderKind)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", err.Error())
		return
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id", err.Error())
		return
	}
	if req.Start.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_start", "start is required")
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.BookRequest{
		PatientID:     actor.ID,
		Provider:      provider.Ref{Kind: kind, ID: providerID},
		ServiceID:     serviceID,
		Start:         req.Start,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// GetAppointment handles GET /appointments/{id}.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// ListMyAppointments handles GET /appointments. The caller's role picks the
// side of the calendar to list.
func (h *Handler) ListMyAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var (
		appts []booking.Appointment
		err   error
	)
	if actor.Role == booking.RolePatient {
		appts, err = h.svc.ListPatientAppointments(r.Context(), actor.ID, limit, offset)
	} else {
		ref := provider.Ref{Kind: provider.Kind(actor.Role), ID: actor.ID}
		appts, err = h.svc.ListProviderAppointments(r.Context(), ref, limit, offset)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// transition wraps the shared shape of the lifecycle endpoints.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(booking.Actor, uuid.UUID) (*booking.Appointment, error)) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	appt, err := apply(actor, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.Accept(r.Context(), actor, id)
	})
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.Reject(r.Context(), actor, id, req.Reason)
	})
}

func (h *Handler) PayDeposit(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.PayDeposit(r.Context(), actor, id, req.Reference)
	})
}

func (h *Handler) ConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.ConfirmDeposit(r.Context(), actor, id)
	})
}

func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.MarkAttendance(r.Context(), actor, id)
	})
}

func (h *Handler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.MarkComplete(r.Context(), actor, id)
	})
}

func (h *Handler) PatientComplete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.PatientComplete(r.Context(), actor, id)
	})
}

func (h *Handler) PayBalance(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.PayBalance(r.Context(), actor, id, req.Reference)
	})
}

func (h *Handler) ConfirmBalance(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.ConfirmBalance(r.Context(), actor, id)
	})
}

func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.SubmitReview(r.Context(), actor, id, req.Rating, req.Review)
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.Cancel(r.Context(), actor, id)
	})
}

func (h *Handler) FileComplaint(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor booking.Actor, id uuid.UUID) (*booking.Appointment, error) {
		return h.svc.FileComplaint(r.Context(), actor, id)
	})
}

// OpenSlots handles GET /providers/{kind}/{id}/slots?days=N.
func (h *Handler) OpenSlots(w http.ResponseWriter, r *http.Request) {
	ref, err := providerRef(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	slots, err := h.svc.OpenSlots(r.Context(), ref, days)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

// GetAvailability handles GET /providers/{kind}/{id}/availability.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	ref, err := providerRef(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	tpl, err := h.templates.GetByProvider(r.Context(), ref)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

// UpsertAvailability handles PUT /providers/{kind}/{id}/availability. Only the
// provider itself may replace its template.
func (h *Handler) UpsertAvailability(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	ref, err := providerRef(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if string(actor.Role) != string(ref.Kind) || actor.ID != ref.ID {
		writeError(w, http.StatusForbidden, "forbidden", "only the provider can change its availability")
		return
	}

	var req UpsertTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	startMin, err := timeutil.ParseMinuteOfDay(req.Start)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	endMin, err := timeutil.ParseMinuteOfDay(req.End)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	days := make([]time.Weekday, 0, len(req.Weekdays))
	for _, d := range req.Weekdays {
		if d < 0 || d > 6 {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", "weekday must be 0 (Sunday) through 6 (Saturday)")
			return
		}
		days = append(days, time.Weekday(d))
	}

	tpl := schedule.Template{
		Provider:    ref,
		Weekdays:    schedule.NewWeekdayMask(days...),
		StartMinute: startMin,
		EndMinute:   endMin,
		Active:      req.Active,
	}
	if err := tpl.Validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}

	saved, err := h.templates.Upsert(r.Context(), tpl)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(saved))
}
