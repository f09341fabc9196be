package identity

import (
	"time"

	"github.com/google/uuid"
)

const (
	RolePatient    = "patient"
	RoleDoctor     = "doctor"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// User is one account in the directory. Doctors additionally carry a
// DoctorProfile row keyed by their user id.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Role      string    `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (u *User) IsDoctor() bool { return u.Role == RoleDoctor }

// DoctorProfile holds the booking-relevant settings of a doctor. A
// ConsultationMinutes of zero is an explicit opt-out: slot generation
// produces nothing for that doctor.
type DoctorProfile struct {
	UserID              uuid.UUID `db:"user_id" json:"user_id"`
	Specialization      *string   `db:"specialization" json:"specialization,omitempty"`
	LicenseNumber       *string   `db:"license_number" json:"license_number,omitempty"`
	ConsultationMinutes int       `db:"consultation_minutes" json:"consultation_minutes"`
	ConsultationFee     float64   `db:"consultation_fee" json:"consultation_fee"`
	MeetingLink         *string   `db:"meeting_link" json:"meeting_link,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Clinic is a physical or virtual practice location. Conflict messages
// surface the clinic name so callers can see who holds a blocked interval.
type Clinic struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	Address   *string   `db:"address" json:"address,omitempty"`
	City      *string   `db:"city" json:"city,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
