package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RequestReschedule opens a reschedule request on a consultation. Patients
// and doctors may only request once the consultation is overdue;
// administrators may request at any time. Completed and cancelled
// consultations are immutable.
func (s *Service) RequestReschedule(ctx context.Context, consultationID, requestedBy uuid.UUID, requesterRole, reason string) (*Consultation, error) {
	c, err := s.consults.GetByID(ctx, consultationID)
	if err != nil {
		return nil, notFound("consultation", consultationID)
	}
	if c.Status == StatusCompleted || c.Status == StatusCancelled {
		return nil, &StateError{Current: c.Status, Msg: "consultation can no longer be rescheduled"}
	}
	if c.RescheduleRequested && c.RescheduleApproved == nil {
		return nil, &StateError{Msg: "a reschedule request is already pending"}
	}

	isAdmin := requesterRole == "admin" || requesterRole == "superadmin"
	if !isAdmin && !c.IsOverdue(s.now(), 0) {
		return nil, validationf("consultation is not overdue yet; only administrators may reschedule early")
	}

	req := &RescheduleRequest{
		ConsultationID: c.ID,
		RequestedBy:    requestedBy,
		Status:         RescheduleRequested,
		OldStartTime:   c.StartTime,
		OldEndTime:     c.EndTime,
	}
	if reason != "" {
		r := reason
		req.Reason = &r
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.reschedules.Create(ctx, req); err != nil {
			return err
		}
		return s.consults.UpdateRescheduleFlags(ctx, c.ID, true, nil)
	})
	if err != nil {
		return nil, err
	}

	c.RescheduleRequested = true
	c.RescheduleApproved = nil
	return c, nil
}

// ApproveReschedule resolves a pending request. Rejection closes the
// request; approval leaves it waiting for ApplyReschedule.
func (s *Service) ApproveReschedule(ctx context.Context, consultationID uuid.UUID, approve bool, note string) (*Consultation, error) {
	c, err := s.consults.GetByID(ctx, consultationID)
	if err != nil {
		return nil, notFound("consultation", consultationID)
	}
	if !c.RescheduleRequested || c.RescheduleApproved != nil {
		return nil, &StateError{Msg: "no pending reschedule request"}
	}
	req, err := s.reschedules.GetPending(ctx, consultationID)
	if err != nil {
		return nil, &StateError{Msg: "no pending reschedule request"}
	}

	if approve {
		req.Status = RescheduleApproved
	} else {
		req.Status = RescheduleRejected
	}
	if note != "" {
		n := note
		req.Note = &n
	}

	approved := approve
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.reschedules.Update(ctx, req); err != nil {
			return err
		}
		return s.consults.UpdateRescheduleFlags(ctx, c.ID, true, &approved)
	})
	if err != nil {
		return nil, err
	}

	c.RescheduleApproved = &approved
	return c, nil
}

// ApplyReschedule moves an approved consultation to a new interval. The
// conflict check runs again with the consultation's own interval excluded,
// so a consultation never collides with itself. On conflict the original
// schedule is left untouched and the request stays approved.
func (s *Service) ApplyReschedule(ctx context.Context, consultationID uuid.UUID, date, start, end time.Time) (*Consultation, error) {
	c, err := s.consults.GetByID(ctx, consultationID)
	if err != nil {
		return nil, notFound("consultation", consultationID)
	}
	if !c.RescheduleRequested {
		return nil, &StateError{Msg: "no reschedule request to apply"}
	}
	if c.RescheduleApproved == nil {
		return nil, &StateError{Msg: "reschedule request has not been approved"}
	}
	if !*c.RescheduleApproved {
		return nil, &StateError{Msg: "reschedule request was rejected"}
	}

	own := c.ID
	updated, err := s.reserve(ctx, reservation{
		patientID:    c.PatientID,
		doctorID:     c.DoctorID,
		clinicID:     c.ClinicID,
		date:         dateOnly(date),
		start:        start,
		end:          end,
		rescheduleOf: &own,
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.ConsultationRescheduled(ctx, updated)
	}
	return updated, nil
}

// applyReservation is the reschedule arm of reserve: it rewrites the
// consultation's schedule, closes the pending request, releases the old
// slot binding, and resets the reschedule flags. It runs inside reserve's
// lock and transaction.
func (s *Service) applyReservation(ctx context.Context, r reservation) (*Consultation, error) {
	id := *r.rescheduleOf
	if err := s.consults.UpdateSchedule(ctx, id, r.date, r.start, r.end); err != nil {
		return nil, err
	}
	if err := s.slots.ReleaseByConsultation(ctx, id); err != nil {
		return nil, err
	}
	if err := s.consults.UpdateRescheduleFlags(ctx, id, false, nil); err != nil {
		return nil, err
	}

	req, err := s.reschedules.GetPending(ctx, id)
	if err == nil && req != nil {
		req.Status = RescheduleApplied
		ns, ne := r.start, r.end
		req.NewStartTime = &ns
		req.NewEndTime = &ne
		if err := s.reschedules.Update(ctx, req); err != nil {
			return nil, err
		}
	}

	c, err := s.consults.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}
