package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Consultation statuses. A consultation is the source of truth for a
// doctor's taken time; slot rows only mirror it.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// BlockingStatuses are the consultation statuses that occupy the doctor's
// calendar for conflict purposes.
var BlockingStatuses = []string{StatusScheduled, StatusInProgress, StatusCompleted}

// Payment statuses tracked on a consultation.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Reschedule request statuses.
const (
	RescheduleRequested = "requested"
	RescheduleApproved  = "approved"
	RescheduleRejected  = "rejected"
	RescheduleApplied   = "applied"
)

// AvailabilityWindow is a declared block of bookable time for a doctor on
// one calendar day.
type AvailabilityWindow struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	DoctorID  uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	ClinicID  *uuid.UUID `db:"clinic_id" json:"clinic_id,omitempty"`
	Date      time.Time  `db:"date" json:"date"`
	StartTime time.Time  `db:"start_time" json:"start_time"`
	EndTime   time.Time  `db:"end_time" json:"end_time"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Slot is a persisted bookable interval. Rows are unique per
// (doctor, date, start, end); a booked slot points at the consultation
// that holds it.
type Slot struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	DoctorID             uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	ClinicID             *uuid.UUID `db:"clinic_id" json:"clinic_id,omitempty"`
	Date                 time.Time  `db:"date" json:"date"`
	StartTime            time.Time  `db:"start_time" json:"start_time"`
	EndTime              time.Time  `db:"end_time" json:"end_time"`
	IsAvailable          bool       `db:"is_available" json:"is_available"`
	IsBooked             bool       `db:"is_booked" json:"is_booked"`
	BookedConsultationID *uuid.UUID `db:"booked_consultation_id" json:"booked_consultation_id,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Consultation is a booked appointment between a patient and a doctor.
type Consultation struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID       uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	ClinicID       *uuid.UUID `db:"clinic_id" json:"clinic_id,omitempty"`
	ScheduledDate  time.Time  `db:"scheduled_date" json:"scheduled_date"`
	StartTime      time.Time  `db:"start_time" json:"start_time"`
	EndTime        time.Time  `db:"end_time" json:"end_time"`
	Status         string     `db:"status" json:"status"`
	ReasonForVisit *string    `db:"reason_for_visit" json:"reason_for_visit,omitempty"`
	MeetingLink    *string    `db:"meeting_link" json:"meeting_link,omitempty"`

	ActualStartTime *time.Time `db:"actual_start_time" json:"actual_start_time,omitempty"`
	ActualEndTime   *time.Time `db:"actual_end_time" json:"actual_end_time,omitempty"`

	CancelledBy        *uuid.UUID `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`

	RescheduleRequested bool  `db:"reschedule_requested" json:"reschedule_requested"`
	RescheduleApproved  *bool `db:"reschedule_approved" json:"reschedule_approved,omitempty"`

	PaymentStatus string  `db:"payment_status" json:"payment_status"`
	Fee           float64 `db:"fee" json:"fee"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsOverdue reports whether the consultation's scheduled end lies more than
// the grace period in the past.
func (c *Consultation) IsOverdue(now time.Time, grace time.Duration) bool {
	return now.After(c.EndTime.Add(grace))
}

// RescheduleRequest is one entry in a consultation's reschedule history.
type RescheduleRequest struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConsultationID uuid.UUID `db:"consultation_id" json:"consultation_id"`
	RequestedBy    uuid.UUID `db:"requested_by" json:"requested_by"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	Status         string    `db:"status" json:"status"`
	Note           *string   `db:"note" json:"note,omitempty"`

	OldStartTime time.Time  `db:"old_start_time" json:"old_start_time"`
	OldEndTime   time.Time  `db:"old_end_time" json:"old_end_time"`
	NewStartTime *time.Time `db:"new_start_time" json:"new_start_time,omitempty"`
	NewEndTime   *time.Time `db:"new_end_time" json:"new_end_time,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GeneratedSlot is a computed candidate interval for one doctor-day. It is
// never persisted; blocked candidates carry the clinic holding the time.
type GeneratedSlot struct {
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Available  bool      `json:"available"`
	BusyClinic string    `json:"busy_clinic,omitempty"`
}

// SweepResult summarizes one overdue sweep run.
type SweepResult struct {
	Checked int         `json:"checked"`
	Updated int         `json:"updated"`
	Skipped int         `json:"skipped"`
	IDs     []uuid.UUID `json:"ids,omitempty"`
}
