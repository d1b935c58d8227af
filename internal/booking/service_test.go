package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebook/scheduling/internal/config"
	"github.com/carebook/scheduling/internal/pricing"
	"github.com/carebook/scheduling/internal/provider"
	"github.com/carebook/scheduling/internal/schedule"
)

var tz = time.FixedZone("UTC+8", 8*3600)

type fixture struct {
	svc     *Service
	store   *memStore
	tpls    *memTemplates
	prices  *memPrices
	now     time.Time
	doctor  provider.Ref
	patient uuid.UUID
	service uuid.UUID
}

// newFixture builds a service over in-memory collaborators with a fixed clock
// at Monday 2024-03-04 08:00 and a Mon-Fri 09:00-17:00 doctor charging 1000.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2024, 3, 4, 8, 0, 0, 0, tz)
	clock := func() time.Time { return now }

	f := &fixture{
		store:   newMemStore(clock),
		tpls:    newMemTemplates(),
		prices:  newMemPrices(),
		now:     now,
		doctor:  provider.Ref{Kind: provider.KindDoctor, ID: uuid.New()},
		patient: uuid.New(),
		service: uuid.New(),
	}

	_, err := f.tpls.Upsert(context.Background(), schedule.Template{
		Provider:    f.doctor,
		Weekdays:    schedule.NewWeekdayMask(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
		Active:      true,
	})
	require.NoError(t, err)

	f.prices.set(f.doctor, f.service, 1000)

	cfg := config.Config{
		Timezone:           tz,
		BookingLeadTime:    time.Hour,
		BookingHorizonDays: 5,
		SlotLookaheadDays:  3,
		SlotDuration:       30 * time.Minute,
		SlotGap:            5 * time.Minute,
		OverlapBuffer:      5 * time.Minute,
		NoShowGrace:        5 * time.Minute,
	}

	f.svc = NewService(f.store, f.store, f.tpls, f.prices, passLocker{}, cfg, zerolog.Nop()).
		WithClock(clock)
	return f
}

func (f *fixture) at(h, m int) time.Time {
	return time.Date(2024, 3, 4, h, m, 0, 0, tz)
}

func (f *fixture) bookReq(start time.Time) BookRequest {
	return BookRequest{
		PatientID:     f.patient,
		Provider:      f.doctor,
		ServiceID:     f.service,
		Start:         start,
		PaymentMethod: "bank_transfer",
	}
}

// seed installs an appointment directly in the given status.
func (f *fixture) seed(status Status) *Appointment {
	doctorID := f.doctor.ID
	a := &Appointment{
		PatientID:     f.patient,
		DoctorID:      &doctorID,
		ServiceID:     f.service,
		StartTime:     f.at(10, 0),
		EndTime:       f.at(10, 30),
		Status:        status,
		Amount:        1000,
		DepositAmount: 100,
		BalanceAmount: 900,
	}
	f.store.put(a)
	return a
}

func (f *fixture) patientActor() Actor { return Actor{ID: f.patient, Role: RolePatient} }
func (f *fixture) doctorActor() Actor  { return Actor{ID: f.doctor.ID, Role: RoleDoctor} }

func TestBookCreatesPendingWithSplitAmounts(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Book(context.Background(), f.bookReq(f.at(9, 0)))
	require.NoError(t, err)

	assert.Equal(t, StatusPendingAccept, appt.Status)
	assert.Equal(t, int64(1000), appt.Amount)
	assert.Equal(t, int64(100), appt.DepositAmount)
	assert.Equal(t, int64(900), appt.BalanceAmount)
	assert.True(t, appt.EndTime.Equal(f.at(9, 30)))
	require.NotNil(t, appt.DoctorID)
	assert.Equal(t, f.doctor.ID, *appt.DoctorID)
	assert.Nil(t, appt.InstituteID)
}

func TestBookConflictWithinBuffer(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Book(context.Background(), f.bookReq(f.at(9, 0)))
	require.NoError(t, err)

	// 09:25-09:55 is clear of 09:00-09:30 but inside the 5-minute buffer.
	other := f.bookReq(f.at(9, 25))
	other.PatientID = uuid.New()
	_, err = f.svc.Book(context.Background(), other)
	require.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookPatientDoubleBooked(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Book(context.Background(), f.bookReq(f.at(9, 0)))
	require.NoError(t, err)

	// Same patient, different provider, overlapping window.
	otherDoctor := provider.Ref{Kind: provider.KindDoctor, ID: uuid.New()}
	_, err = f.tpls.Upsert(context.Background(), schedule.Template{
		Provider:    otherDoctor,
		Weekdays:    schedule.NewWeekdayMask(time.Monday),
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
		Active:      true,
	})
	require.NoError(t, err)
	f.prices.set(otherDoctor, f.service, 800)

	req := f.bookReq(f.at(9, 0))
	req.Provider = otherDoctor
	_, err = f.svc.Book(context.Background(), req)
	require.ErrorIs(t, err, ErrDoubleBooked)
}

func TestBookWindowViolations(t *testing.T) {
	f := newFixture(t)

	// Less than one hour of lead time.
	_, err := f.svc.Book(context.Background(), f.bookReq(f.at(8, 30)))
	require.ErrorIs(t, err, ErrBookingWindow)

	// More than five days out.
	far := f.bookReq(f.at(9, 0).AddDate(0, 0, 7))
	_, err = f.svc.Book(context.Background(), far)
	require.ErrorIs(t, err, ErrBookingWindow)
}

func TestBookOutsideWorkingHours(t *testing.T) {
	f := newFixture(t)

	// 16:45-17:15 spills past closing.
	_, err := f.svc.Book(context.Background(), f.bookReq(f.at(16, 45)))
	require.ErrorIs(t, err, ErrOutsideWorkingHours)

	// Sunday is not in the template.
	sunday := f.bookReq(time.Date(2024, 3, 10, 10, 0, 0, 0, tz))
	_, err = f.svc.Book(context.Background(), sunday)
	require.ErrorIs(t, err, ErrOutsideWorkingHours)
}

func TestBookProviderWithoutTemplate(t *testing.T) {
	f := newFixture(t)

	unknown := f.bookReq(f.at(9, 0))
	unknown.Provider = provider.Ref{Kind: provider.KindInstitute, ID: uuid.New()}
	_, err := f.svc.Book(context.Background(), unknown)
	require.ErrorIs(t, err, ErrProviderUnavailable)

	// Deactivated template behaves the same.
	require.NoError(t, f.tpls.SetActive(context.Background(), f.doctor, false))
	_, err = f.svc.Book(context.Background(), f.bookReq(f.at(9, 0)))
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestBookMissingPrice(t *testing.T) {
	f := newFixture(t)

	req := f.bookReq(f.at(9, 0))
	req.ServiceID = uuid.New()
	_, err := f.svc.Book(context.Background(), req)
	require.ErrorIs(t, err, pricing.ErrPriceNotFound)
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.bookReq(f.at(9, 0)))
	require.NoError(t, err)

	appt, err = f.svc.Accept(ctx, f.doctorActor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingDeposit, appt.Status)

	appt, err = f.svc.PayDeposit(ctx, f.patientActor(), appt.ID, "DEP-001")
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, appt.Status)
	assert.True(t, appt.DepositPaid)
	assert.Equal(t, "DEP-001", appt.DepositRef)

	appt, err = f.svc.ConfirmDeposit(ctx, f.doctorActor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)

	// Auto-start promotes it once the start time arrives.
	appt, err = f.store.PromoteToOngoing(ctx, appt.ID, StatusConfirmed, ChannelID(f.doctor.ID, f.patient))
	require.NoError(t, err)

	appt, err = f.svc.MarkComplete(ctx, f.doctorActor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMarkedComplete, appt.Status)

	appt, err = f.svc.PayBalance(ctx, f.patientActor(), appt.ID, "BAL-001")
	require.NoError(t, err)
	assert.Equal(t, StatusFullyPaid, appt.Status)
	assert.True(t, appt.BalancePaid)

	appt, err = f.svc.ConfirmBalance(ctx, f.doctorActor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmFullyPaid, appt.Status)

	appt, err = f.svc.SubmitReview(ctx, f.patientActor(), appt.ID, 5, "on time and thorough")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmFullyPaid, appt.Status, "review does not change status")
	require.NotNil(t, appt.Rating)
	assert.Equal(t, 5, *appt.Rating)

	// Deposit/balance conservation held throughout.
	assert.Equal(t, appt.Amount, appt.DepositAmount+appt.BalanceAmount)
}

func TestConfirmDepositFromWrongStatus(t *testing.T) {
	f := newFixture(t)
	appt := f.seed(StatusPendingAccept)

	_, err := f.svc.ConfirmDeposit(context.Background(), f.doctorActor(), appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusPendingAccept, te.Current)

	reloaded, err := f.store.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingAccept, reloaded.Status, "status unchanged")
}

func TestCancelTargetDependsOnStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.seed(StatusPendingAccept)
	got, err := f.svc.Cancel(ctx, f.patientActor(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledUnpaid, got.Status)

	f2 := newFixture(t)
	booked := f2.seed(StatusBooked)
	got, err = f2.svc.Cancel(context.Background(), f2.patientActor(), booked.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status, "deposit forfeited once booked")
}

func TestCancelAfterConfirmationRejected(t *testing.T) {
	f := newFixture(t)
	appt := f.seed(StatusConfirmed)

	_, err := f.svc.Cancel(context.Background(), f.patientActor(), appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectStoresReason(t *testing.T) {
	f := newFixture(t)
	appt := f.seed(StatusPendingAccept)

	got, err := f.svc.Reject(context.Background(), f.doctorActor(), appt.ID, "fully booked that week")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.Equal(t, "fully booked that week", got.RejectReason)
}

func TestRoleGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.seed(StatusPendingAccept)

	// The patient cannot accept.
	_, err := f.svc.Accept(ctx, f.patientActor(), appt.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)

	// A different doctor cannot accept either.
	stranger := Actor{ID: uuid.New(), Role: RoleDoctor}
	_, err = f.svc.Accept(ctx, stranger, appt.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)

	// The provider cannot cancel on the patient's behalf.
	_, err = f.svc.Cancel(ctx, f.doctorActor(), appt.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestMarkAttendanceAutoAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.seed(StatusBooked)

	got, err := f.svc.MarkAttendance(ctx, f.patientActor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, got.Status, "one side present is not enough")
	assert.True(t, got.PatientPresent)

	got, err = f.svc.MarkAttendance(ctx, f.doctorActor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOngoing, got.Status)
	assert.Equal(t, ChannelID(f.doctor.ID, f.patient), got.ChannelID)
}

func TestPayDepositRequiresReference(t *testing.T) {
	f := newFixture(t)
	appt := f.seed(StatusAwaitingDeposit)

	_, err := f.svc.PayDeposit(context.Background(), f.patientActor(), appt.ID, "")
	require.ErrorIs(t, err, ErrPaymentRefRequired)
}

func TestSubmitReviewValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seed(StatusConfirmFullyPaid)

	_, err := f.svc.SubmitReview(ctx, f.patientActor(), appt.ID, 0, "")
	require.ErrorIs(t, err, ErrInvalidRating)
	_, err = f.svc.SubmitReview(ctx, f.patientActor(), appt.ID, 6, "")
	require.ErrorIs(t, err, ErrInvalidRating)

	_, err = f.svc.SubmitReview(ctx, f.patientActor(), appt.ID, 4, "fine")
	require.NoError(t, err)

	_, err = f.svc.SubmitReview(ctx, f.patientActor(), appt.ID, 5, "changed my mind")
	require.ErrorIs(t, err, ErrAlreadyReviewed)
}

func TestFileComplaintFreezes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.seed(StatusConfirmed)
	got, err := f.svc.FileComplaint(ctx, f.doctorActor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFreeze, got.Status)

	// Freeze is absorbing for every participant action.
	_, err = f.svc.Cancel(ctx, f.patientActor(), appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.MarkComplete(ctx, f.doctorActor(), appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPatientCompleteAllowedStatuses(t *testing.T) {
	for _, status := range []Status{StatusConfirmed, StatusOngoing, StatusMarkedComplete, StatusConfirmFullyPaid} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			appt := f.seed(status)

			got, err := f.svc.PatientComplete(context.Background(), f.patientActor(), appt.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, got.Status)
		})
	}

	f := newFixture(t)
	appt := f.seed(StatusPendingAccept)
	_, err := f.svc.PatientComplete(context.Background(), f.patientActor(), appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOpenSlotsExcludesOccupied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booked, err := f.svc.Book(ctx, f.bookReq(f.at(9, 35)))
	require.NoError(t, err)

	slots, err := f.svc.OpenSlots(ctx, f.doctor, 1)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	for _, s := range slots {
		assert.False(t, s.Start.Equal(booked.StartTime), "occupied slot offered")
	}
	assert.True(t, slots[0].Start.Equal(f.at(9, 0)))
}

func TestOpenSlotsNoTemplate(t *testing.T) {
	f := newFixture(t)

	slots, err := f.svc.OpenSlots(context.Background(), provider.Ref{Kind: provider.KindDoctor, ID: uuid.New()}, 2)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestRaceLossSurfacesCurrentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.seed(StatusPendingAccept)

	// A concurrent writer moves the status after our guard would have read it.
	_, err := f.store.UpdateStatus(ctx, appt.ID, StatusPendingAccept, StatusCancelledUnpaid)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.doctorActor(), appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusCancelledUnpaid, te.Current)
}
