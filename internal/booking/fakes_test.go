package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/scheduling/internal/pricing"
	"github.com/carebook/scheduling/internal/provider"
	"github.com/carebook/scheduling/internal/schedule"
	"github.com/carebook/scheduling/internal/timeutil"
)

// memStore is an in-memory Repository and EventSink with the same matched-row
// semantics as the Postgres implementation: a conditional write whose guard
// does not hold reports ErrAppointmentNotFound.
type memStore struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]*Appointment
	events []EventLog
	clock  func() time.Time
}

func newMemStore(clock func() time.Time) *memStore {
	return &memStore{
		appts: make(map[uuid.UUID]*Appointment),
		clock: clock,
	}
}

func (m *memStore) copyOf(a *Appointment) *Appointment {
	cp := *a
	return &cp
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return m.copyOf(a), nil
}

func (m *memStore) CreateIfFree(_ context.Context, appt *Appointment, blocking []Status, buffer time.Duration) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := appt.Provider()
	for _, other := range m.appts {
		if !other.Status.In(blocking) {
			continue
		}
		if !timeutil.Overlaps(appt.StartTime, appt.EndTime, other.StartTime, other.EndTime, buffer) {
			continue
		}
		if other.Provider() == ref {
			return nil, ErrSlotTaken
		}
		if other.PatientID == appt.PatientID {
			return nil, ErrDoubleBooked
		}
	}

	cp := *appt
	cp.ID = uuid.New()
	cp.CreatedAt = m.clock()
	cp.UpdatedAt = cp.CreatedAt
	m.appts[cp.ID] = &cp
	return m.copyOf(&cp), nil
}

func (m *memStore) ListProviderInWindow(_ context.Context, ref provider.Ref, statuses []Status, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.Provider() == ref && a.Status.In(statuses) &&
			a.StartTime.Before(to) && a.EndTime.After(from) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ListPatientInWindow(_ context.Context, patientID uuid.UUID, statuses []Status, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID && a.Status.In(statuses) &&
			a.StartTime.Before(to) && a.EndTime.After(from) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ListByProvider(_ context.Context, ref provider.Ref, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.Provider() == ref {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) conditional(id uuid.UUID, match func(*Appointment) bool, apply func(*Appointment)) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok || !match(a) {
		return nil, ErrAppointmentNotFound
	}
	apply(a)
	a.UpdatedAt = m.clock()
	return m.copyOf(a), nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	return m.conditional(id,
		func(a *Appointment) bool { return a.Status == from },
		func(a *Appointment) { a.Status = to })
}

func (m *memStore) RejectWithReason(_ context.Context, id uuid.UUID, from Status, reason string) (*Appointment, error) {
	return m.conditional(id,
		func(a *Appointment) bool { return a.Status == from },
		func(a *Appointment) {
			a.Status = StatusRejected
			a.RejectReason = reason
		})
}

func (m *memStore) SetDepositPaid(_ context.Context, id uuid.UUID, from, to Status, ref string) (*Appointment, error) {
	return m.conditional(id,
		func(a *Appointment) bool { return a.Status == from },
		func(a *Appointment) {
			a.Status = to
			a.DepositPaid = true
			a.DepositRef = ref
		})
}

func (m *memStore) SetBalancePaid(_ context.Context, id uuid.UUID, from, to Status, ref string) (*Appointment, error) {
	return m.conditional(id,
		func(a *Appointment) bool { return a.Status == from },
		func(a *Appointment) {
			a.Status = to
			a.BalancePaid = true
			a.BalanceRef = ref
		})
}

func (m *memStore) SetPresence(_ context.Context, id uuid.UUID, role Role, statuses []Status) (*Appointment, error) {
	return m.conditional(id,
		func(a *Appointment) bool { return a.Status.In(statuses) },
		func(a *Appointment) {
			switch role {
			case RoleDoctor:
				a.DoctorPresent = true
			case RoleInstitute:
				a.InstitutePresent = true
			default:
				a.PatientPresent = true
			}
		})
}

func (m *memStore) PromoteToOngoing(_ context.Context, id uuid.UUID, from Status, channelID string) (*Appointment, error) {
	return m.conditional(id,
		func(a *Appointment) bool { return a.Status == from },
		func(a *Appointment) {
			a.Status = StatusOngoing
			a.ChannelID = channelID
		})
}

func (m *memStore) AttachReview(_ context.Context, id uuid.UUID, rating int, review string) (*Appointment, error) {
	return m.conditional(id,
		func(a *Appointment) bool { return a.Status == StatusConfirmFullyPaid && a.Rating == nil },
		func(a *Appointment) {
			r := rating
			a.Rating = &r
			a.Review = review
		})
}

func (m *memStore) ListStaleStarts(_ context.Context, statuses []Status, startedBefore time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.Status.In(statuses) && !a.StartTime.After(startedBefore) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ListOngoingEnded(_ context.Context, endedBefore time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.Status == StatusOngoing && !a.EndTime.After(endedBefore) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ListConfirmedDue(_ context.Context, now time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.Status == StatusConfirmed && !a.StartTime.After(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// put installs an appointment directly, bypassing the service, for test setup.
func (m *memStore) put(a *Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.appts[a.ID] = a
}

// memTemplates is an in-memory schedule.Repository.
type memTemplates struct {
	mu   sync.Mutex
	tpls map[string]*schedule.Template
}

func newMemTemplates() *memTemplates {
	return &memTemplates{tpls: make(map[string]*schedule.Template)}
}

func (m *memTemplates) GetByProvider(_ context.Context, ref provider.Ref) (*schedule.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tpls[ref.Key()]
	if !ok {
		return nil, schedule.ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplates) Upsert(_ context.Context, tpl schedule.Template) (*schedule.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := tpl
	m.tpls[tpl.Provider.Key()] = &cp
	out := cp
	return &out, nil
}

func (m *memTemplates) SetActive(_ context.Context, ref provider.Ref, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tpls[ref.Key()]
	if !ok {
		return schedule.ErrTemplateNotFound
	}
	t.Active = active
	return nil
}

// memPrices is an in-memory pricing.Lookup.
type memPrices struct {
	prices map[string]int64
}

func newMemPrices() *memPrices {
	return &memPrices{prices: make(map[string]int64)}
}

func priceKey(ref provider.Ref, serviceID uuid.UUID) string {
	return ref.Key() + "/" + serviceID.String()
}

func (m *memPrices) set(ref provider.Ref, serviceID uuid.UUID, amount int64) {
	m.prices[priceKey(ref, serviceID)] = amount
}

func (m *memPrices) GetPrice(_ context.Context, ref provider.Ref, serviceID uuid.UUID) (int64, error) {
	amount, ok := m.prices[priceKey(ref, serviceID)]
	if !ok {
		return 0, pricing.ErrPriceNotFound
	}
	return amount, nil
}

// passLocker runs the critical section inline.
type passLocker struct{}

func (passLocker) WithProviderLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
