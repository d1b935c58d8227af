package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/scheduling/internal/provider"
)

const appointmentColumns = `
	id, patient_id, doctor_id, institute_id, service_id,
	start_time, end_time, status,
	payment_method, amount, deposit_amount, balance_amount,
	deposit_paid, deposit_ref, balance_paid, balance_ref,
	patient_present, doctor_present, institute_present,
	reject_reason, rating, review, channel_id,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.InstituteID,
		&a.ServiceID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.PaymentMethod,
		&a.Amount,
		&a.DepositAmount,
		&a.BalanceAmount,
		&a.DepositPaid,
		&a.DepositRef,
		&a.BalancePaid,
		&a.BalanceRef,
		&a.PatientPresent,
		&a.DoctorPresent,
		&a.InstitutePresent,
		&a.RejectReason,
		&a.Rating,
		&a.Review,
		&a.ChannelID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// providerColumn returns the FK column for the provider kind. Kinds are a
// closed set, so this never sees arbitrary input.
func providerColumn(kind provider.Kind) string {
	if kind == provider.KindInstitute {
		return "institute_id"
	}
	return "doctor_id"
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// CreateIfFree re-checks the overlap predicate for both participants and
// inserts in one transaction, closing the race a detached check-then-insert
// would leave open.
func (r *PgRepository) CreateIfFree(ctx context.Context, appt *Appointment, blocking []Status, buffer time.Duration) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	qStart := appt.StartTime.Add(-buffer)
	qEnd := appt.EndTime.Add(buffer)
	ref := appt.Provider()

	var count int
	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE `+providerColumn(ref.Kind)+` = $1
		  AND status = ANY($2)
		  AND start_time < $3
		  AND end_time > $4
	`, ref.ID, statusStrings(blocking), qEnd, qStart).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("recheck provider conflicts: %w", err)
	}
	if count > 0 {
		return nil, ErrSlotTaken
	}

	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE patient_id = $1
		  AND status = ANY($2)
		  AND start_time < $3
		  AND end_time > $4
	`, appt.PatientID, statusStrings(blocking), qEnd, qStart).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("recheck patient conflicts: %w", err)
	}
	if count > 0 {
		return nil, ErrDoubleBooked
	}

	id := uuid.New()
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, doctor_id, institute_id, service_id,
			 start_time, end_time, status,
			 payment_method, amount, deposit_amount, balance_amount,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PatientID, appt.DoctorID, appt.InstituteID, appt.ServiceID,
		appt.StartTime, appt.EndTime, appt.Status,
		appt.PaymentMethod, appt.Amount, appt.DepositAmount, appt.BalanceAmount)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) ListProviderInWindow(ctx context.Context, ref provider.Ref, statuses []Status, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+providerColumn(ref.Kind)+` = $1
		  AND status = ANY($2)
		  AND start_time < $3
		  AND end_time > $4
		ORDER BY start_time
	`, ref.ID, statusStrings(statuses), to, from)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListPatientInWindow(ctx context.Context, patientID uuid.UUID, statuses []Status, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND status = ANY($2)
		  AND start_time < $3
		  AND end_time > $4
		ORDER BY start_time
	`, patientID, statusStrings(statuses), to, from)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByProvider(ctx context.Context, ref provider.Ref, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+providerColumn(ref.Kind)+` = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, ref.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) RejectWithReason(ctx context.Context, id uuid.UUID, from Status, reason string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    reject_reason = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+appointmentColumns+`
	`, id, StatusRejected, reason, from)
	return scanAppointment(row)
}

func (r *PgRepository) SetDepositPaid(ctx context.Context, id uuid.UUID, from, to Status, ref string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    deposit_paid = TRUE,
		    deposit_ref = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+appointmentColumns+`
	`, id, to, ref, from)
	return scanAppointment(row)
}

func (r *PgRepository) SetBalancePaid(ctx context.Context, id uuid.UUID, from, to Status, ref string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    balance_paid = TRUE,
		    balance_ref = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+appointmentColumns+`
	`, id, to, ref, from)
	return scanAppointment(row)
}

func presenceColumn(role Role) string {
	switch role {
	case RoleDoctor:
		return "doctor_present"
	case RoleInstitute:
		return "institute_present"
	default:
		return "patient_present"
	}
}

func (r *PgRepository) SetPresence(ctx context.Context, id uuid.UUID, role Role, statuses []Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET `+presenceColumn(role)+` = TRUE,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($2)
		RETURNING `+appointmentColumns+`
	`, id, statusStrings(statuses))
	return scanAppointment(row)
}

func (r *PgRepository) PromoteToOngoing(ctx context.Context, id uuid.UUID, from Status, channelID string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    channel_id = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+appointmentColumns+`
	`, id, StatusOngoing, channelID, from)
	return scanAppointment(row)
}

func (r *PgRepository) AttachReview(ctx context.Context, id uuid.UUID, rating int, review string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET rating = $2,
		    review = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		  AND rating IS NULL
		RETURNING `+appointmentColumns+`
	`, id, rating, review, StatusConfirmFullyPaid)
	return scanAppointment(row)
}

func (r *PgRepository) ListStaleStarts(ctx context.Context, statuses []Status, startedBefore time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = ANY($1)
		  AND start_time <= $2
		ORDER BY start_time
	`, statusStrings(statuses), startedBefore)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListOngoingEnded(ctx context.Context, endedBefore time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND end_time <= $2
		ORDER BY end_time
	`, StatusOngoing, endedBefore)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *PgRepository) ListConfirmedDue(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND start_time <= $2
		ORDER BY start_time
	`, StatusConfirmed, now)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}
