package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// In-memory repositories used across the package tests. They mirror the
// postgres implementations' contracts, including the conditional MarkBooked
// and the unique (doctor, date, start, end) slot constraint.

type mockWindowRepo struct {
	mu      sync.Mutex
	windows map[uuid.UUID]*AvailabilityWindow
}

func newMockWindowRepo() *mockWindowRepo {
	return &mockWindowRepo{windows: make(map[uuid.UUID]*AvailabilityWindow)}
}

func (m *mockWindowRepo) Create(ctx context.Context, w *AvailabilityWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.ID = uuid.New()
	cp := *w
	m.windows[w.ID] = &cp
	return nil
}

func (m *mockWindowRepo) GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok {
		return nil, fmt.Errorf("no rows")
	}
	cp := *w
	return &cp, nil
}

func (m *mockWindowRepo) Update(ctx context.Context, w *AvailabilityWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.windows[w.ID]; !ok {
		return fmt.Errorf("no rows")
	}
	cp := *w
	m.windows[w.ID] = &cp
	return nil
}

func (m *mockWindowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, id)
	return nil
}

func (m *mockWindowRepo) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*AvailabilityWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AvailabilityWindow
	for _, w := range m.windows {
		if w.DoctorID == doctorID && w.Date.Equal(date) {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

type mockSlotRepo struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*Slot
}

func newMockSlotRepo() *mockSlotRepo {
	return &mockSlotRepo{slots: make(map[uuid.UUID]*Slot)}
}

func (m *mockSlotRepo) Create(ctx context.Context, s *Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.slots {
		if other.DoctorID == s.DoctorID && other.Date.Equal(s.Date) &&
			other.StartTime.Equal(s.StartTime) && other.EndTime.Equal(s.EndTime) {
			return errUnique
		}
	}
	s.ID = uuid.New()
	cp := *s
	m.slots[s.ID] = &cp
	return nil
}

func (m *mockSlotRepo) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, fmt.Errorf("no rows")
	}
	cp := *s
	return &cp, nil
}

func (m *mockSlotRepo) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Slot, error) {
	return m.filter(func(s *Slot) bool {
		return s.DoctorID == doctorID && s.Date.Equal(date)
	}), nil
}

func (m *mockSlotRepo) ListBookedByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Slot, error) {
	return m.filter(func(s *Slot) bool {
		return s.DoctorID == doctorID && s.Date.Equal(date) && s.IsBooked
	}), nil
}

func (m *mockSlotRepo) filter(keep func(*Slot) bool) []*Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Slot
	for _, s := range m.slots {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *mockSlotRepo) FindUnbooked(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end time.Time) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(date) &&
			s.StartTime.Equal(start) && s.EndTime.Equal(end) &&
			s.IsAvailable && !s.IsBooked {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockSlotRepo) MarkBooked(ctx context.Context, id, consultationID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || !s.IsAvailable || s.IsBooked {
		return false, nil
	}
	s.IsBooked = true
	cid := consultationID
	s.BookedConsultationID = &cid
	return true, nil
}

func (m *mockSlotRepo) ReleaseByConsultation(ctx context.Context, consultationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.slots {
		if s.BookedConsultationID == nil || *s.BookedConsultationID != consultationID {
			continue
		}
		if !s.IsAvailable {
			delete(m.slots, id)
			continue
		}
		s.IsBooked = false
		s.BookedConsultationID = nil
	}
	return nil
}

func (m *mockSlotRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, id)
	return nil
}

type mockConsultationRepo struct {
	mu       sync.Mutex
	consults map[uuid.UUID]*Consultation

	failUpdateFor map[uuid.UUID]bool // sweeper error-isolation tests
}

func newMockConsultationRepo() *mockConsultationRepo {
	return &mockConsultationRepo{
		consults:      make(map[uuid.UUID]*Consultation),
		failUpdateFor: make(map[uuid.UUID]bool),
	}
}

func (m *mockConsultationRepo) Create(ctx context.Context, c *Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	cp := *c
	m.consults[c.ID] = &cp
	return nil
}

func (m *mockConsultationRepo) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consults[id]
	if !ok {
		return nil, fmt.Errorf("no rows")
	}
	cp := *c
	return &cp, nil
}

func (m *mockConsultationRepo) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time, statuses []string) ([]*Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		match[s] = true
	}
	var out []*Consultation
	for _, c := range m.consults {
		if c.DoctorID == doctorID && c.ScheduledDate.Equal(date) && match[c.Status] {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *mockConsultationRepo) UpdateSchedule(ctx context.Context, id uuid.UUID, date, start, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consults[id]
	if !ok {
		return fmt.Errorf("no rows")
	}
	c.ScheduledDate = date
	c.StartTime = start
	c.EndTime = end
	return nil
}

func (m *mockConsultationRepo) UpdateStatus(ctx context.Context, c *Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdateFor[c.ID] {
		return fmt.Errorf("forced update failure")
	}
	stored, ok := m.consults[c.ID]
	if !ok {
		return fmt.Errorf("no rows")
	}
	stored.Status = c.Status
	stored.ActualStartTime = c.ActualStartTime
	stored.ActualEndTime = c.ActualEndTime
	stored.CancelledBy = c.CancelledBy
	stored.CancelledAt = c.CancelledAt
	stored.CancellationReason = c.CancellationReason
	return nil
}

func (m *mockConsultationRepo) UpdateRescheduleFlags(ctx context.Context, id uuid.UUID, requested bool, approved *bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consults[id]
	if !ok {
		return fmt.Errorf("no rows")
	}
	c.RescheduleRequested = requested
	c.RescheduleApproved = approved
	return nil
}

func (m *mockConsultationRepo) ListOverdue(ctx context.Context, cutoff time.Time, statuses []string) ([]*Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		match[s] = true
	}
	var out []*Consultation
	for _, c := range m.consults {
		if c.StartTime.Before(cutoff) && match[c.Status] {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (m *mockConsultationRepo) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Consultation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Consultation
	for _, c := range m.consults {
		if v, ok := params["status"]; ok && c.Status != v {
			continue
		}
		if v, ok := params["doctor_id"]; ok && c.DoctorID.String() != v {
			continue
		}
		if v, ok := params["patient_id"]; ok && c.PatientID.String() != v {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.After(all[j].StartTime) })
	total := len(all)
	if offset > len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

type mockRescheduleRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*RescheduleRequest
}

func newMockRescheduleRepo() *mockRescheduleRepo {
	return &mockRescheduleRepo{requests: make(map[uuid.UUID]*RescheduleRequest)}
}

func (m *mockRescheduleRepo) Create(ctx context.Context, r *RescheduleRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *mockRescheduleRepo) GetPending(ctx context.Context, consultationID uuid.UUID) (*RescheduleRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *RescheduleRequest
	for _, r := range m.requests {
		if r.ConsultationID != consultationID {
			continue
		}
		if r.Status != RescheduleRequested && r.Status != RescheduleApproved {
			continue
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("no rows")
	}
	cp := *newest
	return &cp, nil
}

func (m *mockRescheduleRepo) Update(ctx context.Context, r *RescheduleRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; !ok {
		return fmt.Errorf("no rows")
	}
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *mockRescheduleRepo) ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*RescheduleRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*RescheduleRequest
	for _, r := range m.requests {
		if r.ConsultationID == consultationID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// mockDirectory is a fixed user/clinic directory.
type mockDirectory struct {
	roles   map[uuid.UUID]string
	doctors map[uuid.UUID]*DoctorInfo
	clinics map[uuid.UUID]string
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		roles:   make(map[uuid.UUID]string),
		doctors: make(map[uuid.UUID]*DoctorInfo),
		clinics: make(map[uuid.UUID]string),
	}
}

func (m *mockDirectory) addDoctor(minutes int, fee float64) uuid.UUID {
	id := uuid.New()
	m.roles[id] = "doctor"
	m.doctors[id] = &DoctorInfo{ConsultationMinutes: minutes, ConsultationFee: fee}
	return id
}

func (m *mockDirectory) addPatient() uuid.UUID {
	id := uuid.New()
	m.roles[id] = "patient"
	return id
}

func (m *mockDirectory) addClinic(name string) uuid.UUID {
	id := uuid.New()
	m.clinics[id] = name
	return id
}

func (m *mockDirectory) DoctorInfo(ctx context.Context, doctorID uuid.UUID) (*DoctorInfo, error) {
	info, ok := m.doctors[doctorID]
	if !ok {
		return nil, &NotFoundError{Resource: "doctor profile", ID: doctorID.String()}
	}
	cp := *info
	return &cp, nil
}

func (m *mockDirectory) ClinicName(ctx context.Context, clinicID uuid.UUID) (string, error) {
	name, ok := m.clinics[clinicID]
	if !ok {
		return "", &NotFoundError{Resource: "clinic", ID: clinicID.String()}
	}
	return name, nil
}

func (m *mockDirectory) EnsureRole(ctx context.Context, userID uuid.UUID, role string) error {
	got, ok := m.roles[userID]
	if !ok {
		return &NotFoundError{Resource: "user", ID: userID.String()}
	}
	if got != role {
		return validationf("user %s is not a %s", userID, role)
	}
	return nil
}

// fakeTx runs the function directly; mock repositories have no
// transactions to join.
type fakeTx struct{}

func (fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockPayments struct {
	mu      sync.Mutex
	records []uuid.UUID
	fail    bool
}

func (m *mockPayments) RecordPending(ctx context.Context, consultationID, patientID uuid.UUID, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("ledger unreachable")
	}
	m.records = append(m.records, consultationID)
	return nil
}

type mockNotifier struct {
	mu          sync.Mutex
	booked      int
	cancelled   int
	rescheduled int
}

func (m *mockNotifier) ConsultationBooked(ctx context.Context, c *Consultation) {
	m.mu.Lock()
	m.booked++
	m.mu.Unlock()
}

func (m *mockNotifier) ConsultationCancelled(ctx context.Context, c *Consultation) {
	m.mu.Lock()
	m.cancelled++
	m.mu.Unlock()
}

func (m *mockNotifier) ConsultationRescheduled(ctx context.Context, c *Consultation) {
	m.mu.Lock()
	m.rescheduled++
	m.mu.Unlock()
}

// errUnique mimics the postgres duplicate-key error surfaced by pgx.
var errUnique = &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

// fixture bundles a Service wired to fresh mocks.
type fixture struct {
	svc      *Service
	windows  *mockWindowRepo
	slots    *mockSlotRepo
	consults *mockConsultationRepo
	resch    *mockRescheduleRepo
	dir      *mockDirectory
	payments *mockPayments
	notifier *mockNotifier
	now      time.Time
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		windows:  newMockWindowRepo(),
		slots:    newMockSlotRepo(),
		consults: newMockConsultationRepo(),
		resch:    newMockRescheduleRepo(),
		dir:      newMockDirectory(),
		payments: &mockPayments{},
		notifier: &mockNotifier{},
		now:      time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
	}
	if opts.Payments == nil {
		opts.Payments = f.payments
	}
	if opts.Notifier == nil {
		opts.Notifier = f.notifier
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return f.now }
	}
	f.svc = NewService(f.windows, f.slots, f.consults, f.resch, f.dir, fakeTx{}, opts)
	return f
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func hm(d time.Time, hour, min int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, time.UTC)
}
