package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/eclinic/eclinic/internal/platform/keylock"
	"github.com/eclinic/eclinic/pkg/timewindow"
)

// BookSlotRequest books a previously published slot.
type BookSlotRequest struct {
	SlotID         uuid.UUID
	PatientID      uuid.UUID
	ReasonForVisit string
}

// BookDynamicRequest books an arbitrary interval inside the doctor's
// availability, independent of published slots.
type BookDynamicRequest struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	ClinicID       *uuid.UUID
	Date           time.Time
	StartTime      time.Time
	EndTime        time.Time
	ReasonForVisit string
}

// reservation is the single internal booking primitive. Both booking paths
// and reschedule application reduce to one of these.
type reservation struct {
	patientID uuid.UUID
	doctorID  uuid.UUID
	clinicID  *uuid.UUID
	date      time.Time
	start     time.Time
	end       time.Time
	reason    string

	slotID *uuid.UUID // set on the slot-bound path

	// set when re-reserving an existing consultation's new time; the
	// consultation's own interval is excluded from the conflict check and
	// its schedule is updated instead of a new row being created.
	rescheduleOf *uuid.UUID
}

func (s *Service) lockKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("%s|%s", doctorID, date.Format("2006-01-02"))
}

// reserve serializes on the (doctor, date) pair, re-checks conflicts inside
// a transaction, and writes the consultation together with its slot
// binding. The database's unique slot index is the second line of defense
// behind the lock.
func (s *Service) reserve(ctx context.Context, r reservation) (*Consultation, error) {
	if r.patientID == uuid.Nil {
		return nil, validationf("patient_id is required")
	}
	if r.doctorID == uuid.Nil {
		return nil, validationf("doctor_id is required")
	}
	r.date = dateOnly(r.date)
	if err := validateInterval(r.date, r.start, r.end); err != nil {
		return nil, err
	}
	if r.rescheduleOf == nil && r.start.Before(s.now()) {
		return nil, validationf("cannot book a time in the past")
	}

	release, err := s.locks.Acquire(ctx, s.lockKey(r.doctorID, r.date), s.lockWait)
	if err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			return nil, &BusyError{Key: s.lockKey(r.doctorID, r.date)}
		}
		return nil, err
	}
	defer release()

	var booked *Consultation
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		busy, err := s.busyIntervals(ctx, r.doctorID, r.date, r.rescheduleOf)
		if err != nil {
			return err
		}
		iv := timewindow.Interval{Start: r.start, End: r.end}
		if b := firstOverlap(iv, busy); b != nil {
			return &ConflictError{
				Msg:            "requested time overlaps an existing booking",
				Start:          b.Start,
				End:            b.End,
				ClinicName:     b.ClinicName,
				ConsultationID: b.ConsultationID,
			}
		}

		if r.rescheduleOf != nil {
			booked, err = s.applyReservation(ctx, r)
		} else {
			booked, err = s.createReservation(ctx, r)
		}
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Msg: "slot was taken concurrently", Start: r.start, End: r.end}
		}
		return nil, err
	}
	return booked, nil
}

func (s *Service) createReservation(ctx context.Context, r reservation) (*Consultation, error) {
	info, err := s.directory.DoctorInfo(ctx, r.doctorID)
	if err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
		info = &DoctorInfo{}
	}

	c := &Consultation{
		PatientID:     r.patientID,
		DoctorID:      r.doctorID,
		ClinicID:      r.clinicID,
		ScheduledDate: r.date,
		StartTime:     r.start,
		EndTime:       r.end,
		Status:        StatusScheduled,
		PaymentStatus: PaymentPending,
		Fee:           info.ConsultationFee,
	}
	if r.reason != "" {
		reason := r.reason
		c.ReasonForVisit = &reason
	}
	if info.MeetingLink != "" {
		link := info.MeetingLink
		c.MeetingLink = &link
	}
	if err := s.consults.Create(ctx, c); err != nil {
		return nil, err
	}

	if r.slotID != nil {
		won, err := s.slots.MarkBooked(ctx, *r.slotID, c.ID)
		if err != nil {
			return nil, err
		}
		if !won {
			return nil, &ConflictError{Msg: "slot is no longer available", Start: r.start, End: r.end}
		}
		return c, nil
	}

	// Dynamic path: adopt a matching unbooked slot row when one exists,
	// otherwise materialize a booked one so the unique index covers this
	// interval too.
	if existing, err := s.slots.FindUnbooked(ctx, r.doctorID, r.date, r.start, r.end); err == nil && existing != nil {
		won, err := s.slots.MarkBooked(ctx, existing.ID, c.ID)
		if err != nil {
			return nil, err
		}
		if won {
			return c, nil
		}
	}
	cid := c.ID
	slot := &Slot{
		DoctorID:             r.doctorID,
		ClinicID:             r.clinicID,
		Date:                 r.date,
		StartTime:            r.start,
		EndTime:              r.end,
		IsAvailable:          false,
		IsBooked:             true,
		BookedConsultationID: &cid,
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, err
	}
	return c, nil
}

// BookSlot books a published slot for a patient. The slot fixes the doctor,
// clinic, and interval; availability is revalidated at commit time.
func (s *Service) BookSlot(ctx context.Context, req BookSlotRequest) (*Consultation, error) {
	if req.SlotID == uuid.Nil {
		return nil, validationf("slot_id is required")
	}
	if err := s.ensurePatient(ctx, req.PatientID); err != nil {
		return nil, err
	}
	sl, err := s.slots.GetByID(ctx, req.SlotID)
	if err != nil {
		return nil, notFound("slot", req.SlotID)
	}
	if !sl.IsAvailable {
		return nil, &StateError{Msg: "slot is not open for booking"}
	}
	if sl.IsBooked {
		return nil, &ConflictError{Msg: "slot is already booked", Start: sl.StartTime, End: sl.EndTime}
	}

	sid := sl.ID
	c, err := s.reserve(ctx, reservation{
		patientID: req.PatientID,
		doctorID:  sl.DoctorID,
		clinicID:  sl.ClinicID,
		date:      sl.Date,
		start:     sl.StartTime,
		end:       sl.EndTime,
		reason:    req.ReasonForVisit,
		slotID:    &sid,
	})
	if err != nil {
		return nil, err
	}
	s.afterBooking(ctx, c)
	return c, nil
}

// BookDynamic books an arbitrary interval inside the doctor's declared
// availability for that day.
func (s *Service) BookDynamic(ctx context.Context, req BookDynamicRequest) (*Consultation, error) {
	if err := s.ensurePatient(ctx, req.PatientID); err != nil {
		return nil, err
	}
	if err := s.directory.EnsureRole(ctx, req.DoctorID, "doctor"); err != nil {
		return nil, err
	}

	date := dateOnly(req.Date)
	windows, err := s.windows.ListByDoctorDate(ctx, req.DoctorID, date)
	if err != nil {
		return nil, err
	}
	inWindow := false
	for _, w := range windows {
		if !req.StartTime.Before(w.StartTime) && !req.EndTime.After(w.EndTime) {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return nil, validationf("requested time is outside the doctor's availability")
	}

	c, err := s.reserve(ctx, reservation{
		patientID: req.PatientID,
		doctorID:  req.DoctorID,
		clinicID:  req.ClinicID,
		date:      date,
		start:     req.StartTime,
		end:       req.EndTime,
		reason:    req.ReasonForVisit,
	})
	if err != nil {
		return nil, err
	}
	s.afterBooking(ctx, c)
	return c, nil
}

func (s *Service) ensurePatient(ctx context.Context, patientID uuid.UUID) error {
	if patientID == uuid.Nil {
		return validationf("patient_id is required")
	}
	return s.directory.EnsureRole(ctx, patientID, "patient")
}

// afterBooking runs the post-commit side effects. Failures are logged as
// dependency errors and never unwind the booking.
func (s *Service) afterBooking(ctx context.Context, c *Consultation) {
	if s.payments != nil {
		if err := s.payments.RecordPending(ctx, c.ID, c.PatientID, c.Fee); err != nil {
			dep := &DependencyError{Op: "record pending payment", Err: err}
			s.logger.Error().Err(dep).
				Str("consultation_id", c.ID.String()).
				Msg("payment side effect failed")
		}
	}
	if s.notifier != nil {
		s.notifier.ConsultationBooked(ctx, c)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
