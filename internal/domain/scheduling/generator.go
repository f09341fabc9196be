package scheduling

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eclinic/eclinic/pkg/timewindow"
)

// busyInterval is one blocked stretch of a doctor's day, annotated with the
// clinic holding it when known.
type busyInterval struct {
	Start          time.Time
	End            time.Time
	ClinicName     string
	ConsultationID *uuid.UUID
}

// busyIntervals collects every commitment occupying the doctor's calendar on
// one day: consultations in a blocking status plus booked slot rows. The
// result is sorted by start time. excludeConsultation drops that
// consultation's own interval, which reschedules need so a consultation does
// not collide with itself.
func (s *Service) busyIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time, excludeConsultation *uuid.UUID) ([]busyInterval, error) {
	consults, err := s.consults.ListByDoctorDate(ctx, doctorID, date, BlockingStatuses)
	if err != nil {
		return nil, err
	}
	booked, err := s.slots.ListBookedByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	clinicNames := map[uuid.UUID]string{}
	resolveClinic := func(id *uuid.UUID) string {
		if id == nil {
			return ""
		}
		if name, ok := clinicNames[*id]; ok {
			return name
		}
		name, err := s.directory.ClinicName(ctx, *id)
		if err != nil {
			name = ""
		}
		clinicNames[*id] = name
		return name
	}

	var busy []busyInterval
	seen := map[uuid.UUID]bool{}
	for _, c := range consults {
		if excludeConsultation != nil && c.ID == *excludeConsultation {
			continue
		}
		id := c.ID
		busy = append(busy, busyInterval{
			Start:          c.StartTime,
			End:            c.EndTime,
			ClinicName:     resolveClinic(c.ClinicID),
			ConsultationID: &id,
		})
		seen[c.ID] = true
	}
	for _, sl := range booked {
		// A slot bound to a consultation already in the set is the same
		// commitment, not a second one.
		if sl.BookedConsultationID != nil {
			if excludeConsultation != nil && *sl.BookedConsultationID == *excludeConsultation {
				continue
			}
			if seen[*sl.BookedConsultationID] {
				continue
			}
		}
		busy = append(busy, busyInterval{
			Start:          sl.StartTime,
			End:            sl.EndTime,
			ClinicName:     resolveClinic(sl.ClinicID),
			ConsultationID: sl.BookedConsultationID,
		})
	}

	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

func firstOverlap(iv timewindow.Interval, busy []busyInterval) *busyInterval {
	for i := range busy {
		if busy[i].Start.After(iv.End) {
			break
		}
		if timewindow.Overlaps(iv.Start, iv.End, busy[i].Start, busy[i].End) {
			return &busy[i]
		}
	}
	return nil
}

// AvailableSlots computes the doctor's bookable intervals for one day. The
// step is the doctor's configured consultation duration, falling back to the
// service default when the doctor has no profile; a profile explicitly set
// to zero or negative minutes yields no slots. Output is sorted ascending
// and recomputed on every call. Blocked candidates are included with the
// clinic holding the time, so callers can show why a time is gone.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]GeneratedSlot, error) {
	if err := s.directory.EnsureRole(ctx, doctorID, "doctor"); err != nil {
		return nil, err
	}

	minutes := s.defaultMinutes
	info, err := s.directory.DoctorInfo(ctx, doctorID)
	if err == nil {
		minutes = info.ConsultationMinutes
	} else {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}
	if minutes <= 0 {
		return []GeneratedSlot{}, nil
	}
	step := time.Duration(minutes) * time.Minute

	date = dateOnly(date)
	windows, err := s.windows.ListByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []GeneratedSlot{}, nil
	}

	busy, err := s.busyIntervals(ctx, doctorID, date, nil)
	if err != nil {
		return nil, err
	}

	var out []GeneratedSlot
	for _, w := range windows {
		// Slots never spill past the requested day, whatever bounds the
		// window row carries.
		win := timewindow.ClampToDay(timewindow.Interval{Start: w.StartTime, End: w.EndTime}, date)
		for _, iv := range timewindow.Slice(win.Start, win.End, step) {
			gs := GeneratedSlot{StartTime: iv.Start, EndTime: iv.End, Available: true}
			if b := firstOverlap(iv, busy); b != nil {
				gs.Available = false
				gs.BusyClinic = b.ClinicName
			}
			out = append(out, gs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if out == nil {
		out = []GeneratedSlot{}
	}
	return out, nil
}
