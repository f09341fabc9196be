package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WindowRepository persists availability windows.
type WindowRepository interface {
	Create(ctx context.Context, w *AvailabilityWindow) error
	GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error)
	Update(ctx context.Context, w *AvailabilityWindow) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*AvailabilityWindow, error)
}

// SlotRepository persists slot records. MarkBooked is conditional: it only
// succeeds while the row is still available and unbooked, and reports
// whether it won.
type SlotRepository interface {
	Create(ctx context.Context, s *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Slot, error)
	ListBookedByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Slot, error)
	FindUnbooked(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end time.Time) (*Slot, error)
	MarkBooked(ctx context.Context, id, consultationID uuid.UUID) (bool, error)
	ReleaseByConsultation(ctx context.Context, consultationID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ConsultationRepository persists consultations.
type ConsultationRepository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time, statuses []string) ([]*Consultation, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, date, start, end time.Time) error
	UpdateStatus(ctx context.Context, c *Consultation) error
	UpdateRescheduleFlags(ctx context.Context, id uuid.UUID, requested bool, approved *bool) error
	ListOverdue(ctx context.Context, cutoff time.Time, statuses []string) ([]*Consultation, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Consultation, int, error)
}

// RescheduleRepository persists the append-only reschedule history.
type RescheduleRepository interface {
	Create(ctx context.Context, r *RescheduleRequest) error
	GetPending(ctx context.Context, consultationID uuid.UUID) (*RescheduleRequest, error)
	Update(ctx context.Context, r *RescheduleRequest) error
	ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*RescheduleRequest, error)
}
