package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eclinic/eclinic/internal/platform/keylock"
	"github.com/eclinic/eclinic/pkg/timewindow"
)

// DoctorInfo carries the booking-relevant details of a doctor's profile.
type DoctorInfo struct {
	ConsultationMinutes int
	ConsultationFee     float64
	MeetingLink         string
}

// Directory resolves users and clinics owned by the identity domain.
type Directory interface {
	// DoctorInfo returns the doctor's profile, or a NotFoundError when the
	// doctor has none.
	DoctorInfo(ctx context.Context, doctorID uuid.UUID) (*DoctorInfo, error)
	ClinicName(ctx context.Context, clinicID uuid.UUID) (string, error)
	// EnsureRole verifies that the user exists and holds the given role.
	EnsureRole(ctx context.Context, userID uuid.UUID, role string) error
}

// PaymentRecorder creates pending payment records for booked consultations.
type PaymentRecorder interface {
	RecordPending(ctx context.Context, consultationID, patientID uuid.UUID, amount float64) error
}

// Notifier dispatches booking lifecycle events. Implementations are
// best-effort; failures must never surface to callers.
type Notifier interface {
	ConsultationBooked(ctx context.Context, c *Consultation)
	ConsultationCancelled(ctx context.Context, c *Consultation)
	ConsultationRescheduled(ctx context.Context, c *Consultation)
}

// TxRunner runs a function inside a storage transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Options tunes service behavior; zero values fall back to defaults.
type Options struct {
	DefaultConsultationMinutes int
	LockWait                   time.Duration
	Payments                   PaymentRecorder
	Notifier                   Notifier
	Logger                     zerolog.Logger
	Now                        func() time.Time
}

type Service struct {
	windows     WindowRepository
	slots       SlotRepository
	consults    ConsultationRepository
	reschedules RescheduleRepository
	directory   Directory
	tx          TxRunner

	locks    *keylock.Map
	payments PaymentRecorder
	notifier Notifier
	logger   zerolog.Logger

	defaultMinutes int
	lockWait       time.Duration
	now            func() time.Time
}

func NewService(windows WindowRepository, slots SlotRepository, consults ConsultationRepository,
	reschedules RescheduleRepository, directory Directory, tx TxRunner, opts Options) *Service {
	if opts.DefaultConsultationMinutes == 0 {
		opts.DefaultConsultationMinutes = 30
	}
	if opts.LockWait == 0 {
		opts.LockWait = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		windows:        windows,
		slots:          slots,
		consults:       consults,
		reschedules:    reschedules,
		directory:      directory,
		tx:             tx,
		locks:          keylock.New(),
		payments:       opts.Payments,
		notifier:       opts.Notifier,
		logger:         opts.Logger,
		defaultMinutes: opts.DefaultConsultationMinutes,
		lockWait:       opts.LockWait,
		now:            opts.Now,
	}
}

// dateOnly normalizes t to midnight UTC of its calendar day.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(t, day time.Time) bool {
	y1, m1, d1 := t.UTC().Date()
	y2, m2, d2 := day.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func validateInterval(date, start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return validationf("start_time and end_time are required")
	}
	if !start.Before(end) {
		return validationf("start_time must be before end_time")
	}
	if !sameDay(start, date) || !sameDay(end, date) {
		return validationf("start_time and end_time must fall on the given date")
	}
	return nil
}

// -- Availability windows --

func (s *Service) CreateWindow(ctx context.Context, w *AvailabilityWindow) error {
	if w.DoctorID == uuid.Nil {
		return validationf("doctor_id is required")
	}
	w.Date = dateOnly(w.Date)
	if err := validateInterval(w.Date, w.StartTime, w.EndTime); err != nil {
		return err
	}
	if err := s.directory.EnsureRole(ctx, w.DoctorID, "doctor"); err != nil {
		return err
	}
	existing, err := s.windows.ListByDoctorDate(ctx, w.DoctorID, w.Date)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if timewindow.Overlaps(w.StartTime, w.EndTime, other.StartTime, other.EndTime) {
			return &ConflictError{
				Msg:   "availability window overlaps an existing one",
				Start: other.StartTime,
				End:   other.EndTime,
			}
		}
	}
	return s.windows.Create(ctx, w)
}

func (s *Service) GetWindow(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	w, err := s.windows.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("availability window", id)
	}
	return w, nil
}

func (s *Service) ListWindows(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*AvailabilityWindow, error) {
	return s.windows.ListByDoctorDate(ctx, doctorID, dateOnly(date))
}

// UpdateWindow changes a window's bounds. The new bounds must still contain
// every booked slot and blocking consultation that sat inside the old ones.
func (s *Service) UpdateWindow(ctx context.Context, id uuid.UUID, start, end time.Time) (*AvailabilityWindow, error) {
	w, err := s.windows.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("availability window", id)
	}
	if err := validateInterval(w.Date, start, end); err != nil {
		return nil, err
	}

	busy, err := s.busyIntervals(ctx, w.DoctorID, w.Date, nil)
	if err != nil {
		return nil, err
	}
	for _, b := range busy {
		inOld := timewindow.Overlaps(b.Start, b.End, w.StartTime, w.EndTime)
		contained := !b.Start.Before(start) && !b.End.After(end)
		if inOld && !contained {
			return nil, &ConflictError{
				Msg:        "window edit would orphan an existing booking",
				Start:      b.Start,
				End:        b.End,
				ClinicName: b.ClinicName,
			}
		}
	}

	w.StartTime = start
	w.EndTime = end
	if err := s.windows.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// DeleteWindow removes a window unless bookings still sit inside it.
func (s *Service) DeleteWindow(ctx context.Context, id uuid.UUID) error {
	w, err := s.windows.GetByID(ctx, id)
	if err != nil {
		return notFound("availability window", id)
	}
	busy, err := s.busyIntervals(ctx, w.DoctorID, w.Date, nil)
	if err != nil {
		return err
	}
	for _, b := range busy {
		if timewindow.Overlaps(b.Start, b.End, w.StartTime, w.EndTime) {
			return &ConflictError{
				Msg:        "window still holds bookings",
				Start:      b.Start,
				End:        b.End,
				ClinicName: b.ClinicName,
			}
		}
	}
	return s.windows.Delete(ctx, id)
}

// -- Persisted slots --

func (s *Service) CreateSlot(ctx context.Context, sl *Slot) error {
	if sl.DoctorID == uuid.Nil {
		return validationf("doctor_id is required")
	}
	sl.Date = dateOnly(sl.Date)
	if err := validateInterval(sl.Date, sl.StartTime, sl.EndTime); err != nil {
		return err
	}
	if err := s.directory.EnsureRole(ctx, sl.DoctorID, "doctor"); err != nil {
		return err
	}
	sl.IsAvailable = true
	sl.IsBooked = false
	sl.BookedConsultationID = nil
	if err := s.slots.Create(ctx, sl); err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Msg: "an identical slot already exists", Start: sl.StartTime, End: sl.EndTime}
		}
		return err
	}
	return nil
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	sl, err := s.slots.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("slot", id)
	}
	return sl, nil
}

func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Slot, error) {
	return s.slots.ListByDoctorDate(ctx, doctorID, dateOnly(date))
}

// -- Consultation reads --

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.consults.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("consultation", id)
	}
	return c, nil
}

func (s *Service) SearchConsultations(ctx context.Context, params map[string]string, limit, offset int) ([]*Consultation, int, error) {
	return s.consults.Search(ctx, params, limit, offset)
}

func (s *Service) RescheduleHistory(ctx context.Context, consultationID uuid.UUID) ([]*RescheduleRequest, error) {
	if _, err := s.consults.GetByID(ctx, consultationID); err != nil {
		return nil, notFound("consultation", consultationID)
	}
	return s.reschedules.ListByConsultation(ctx, consultationID)
}

// -- Lifecycle transitions --

// StartConsultation moves a scheduled consultation to in_progress.
func (s *Service) StartConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.consults.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("consultation", id)
	}
	if c.Status != StatusScheduled {
		return nil, &StateError{Current: c.Status, Msg: "only scheduled consultations can be started"}
	}
	now := s.now()
	c.Status = StatusInProgress
	c.ActualStartTime = &now
	if err := s.consults.UpdateStatus(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CompleteConsultation moves an in-progress consultation to completed.
func (s *Service) CompleteConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.consults.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("consultation", id)
	}
	if c.Status != StatusInProgress {
		return nil, &StateError{Current: c.Status, Msg: "only in-progress consultations can be completed"}
	}
	now := s.now()
	c.Status = StatusCompleted
	c.ActualEndTime = &now
	if err := s.consults.UpdateStatus(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CancelConsultation cancels a consultation and frees its slot. Completed
// and already cancelled consultations cannot be cancelled.
func (s *Service) CancelConsultation(ctx context.Context, id, cancelledBy uuid.UUID, reason string) (*Consultation, error) {
	c, err := s.consults.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("consultation", id)
	}
	if c.Status == StatusCompleted || c.Status == StatusCancelled {
		return nil, &StateError{Current: c.Status, Msg: "consultation can no longer be cancelled"}
	}
	now := s.now()
	c.Status = StatusCancelled
	c.CancelledBy = &cancelledBy
	c.CancelledAt = &now
	if reason != "" {
		c.CancellationReason = &reason
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.consults.UpdateStatus(ctx, c); err != nil {
			return err
		}
		return s.slots.ReleaseByConsultation(ctx, c.ID)
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.ConsultationCancelled(ctx, c)
	}
	return c, nil
}
