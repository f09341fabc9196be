package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/eclinic/eclinic/internal/domain/scheduling"
)

var validRoles = map[string]bool{
	RolePatient:    true,
	RoleDoctor:     true,
	RoleAdmin:      true,
	RoleSuperadmin: true,
}

type Service struct {
	users    UserRepository
	profiles DoctorProfileRepository
	clinics  ClinicRepository
}

func NewService(users UserRepository, profiles DoctorProfileRepository, clinics ClinicRepository) *Service {
	return &Service{users: users, profiles: profiles, clinics: clinics}
}

// -- Users --

func (s *Service) CreateUser(ctx context.Context, u *User) error {
	if u.FirstName == "" || u.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if !validRoles[u.Role] {
		return fmt.Errorf("invalid role %q", u.Role)
	}
	u.Active = true
	return s.users.Create(ctx, u)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.users.GetByEmail(ctx, email)
}

func (s *Service) UpdateUser(ctx context.Context, u *User) error {
	if u.FirstName == "" || u.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if !validRoles[u.Role] {
		return fmt.Errorf("invalid role %q", u.Role)
	}
	return s.users.Update(ctx, u)
}

func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	if role != "" && !validRoles[role] {
		return nil, 0, fmt.Errorf("invalid role %q", role)
	}
	return s.users.List(ctx, role, limit, offset)
}

// -- Doctor profiles --

func (s *Service) SetDoctorProfile(ctx context.Context, p *DoctorProfile) error {
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("doctor %s: %w", p.UserID, err)
	}
	if !u.IsDoctor() {
		return fmt.Errorf("user %s is not a doctor", p.UserID)
	}
	if p.ConsultationMinutes < 0 {
		return fmt.Errorf("consultation_minutes must not be negative")
	}
	if p.ConsultationFee < 0 {
		return fmt.Errorf("consultation_fee must not be negative")
	}
	return s.profiles.Upsert(ctx, p)
}

func (s *Service) GetDoctorProfile(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error) {
	return s.profiles.GetByUserID(ctx, userID)
}

func (s *Service) DeleteDoctorProfile(ctx context.Context, userID uuid.UUID) error {
	return s.profiles.Delete(ctx, userID)
}

// -- Clinics --

func (s *Service) CreateClinic(ctx context.Context, c *Clinic) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	c.Active = true
	return s.clinics.Create(ctx, c)
}

func (s *Service) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.clinics.GetByID(ctx, id)
}

func (s *Service) UpdateClinic(ctx context.Context, c *Clinic) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.clinics.Update(ctx, c)
}

func (s *Service) DeleteClinic(ctx context.Context, id uuid.UUID) error {
	return s.clinics.Delete(ctx, id)
}

func (s *Service) ListClinics(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	return s.clinics.List(ctx, limit, offset)
}

// -- Scheduling directory --

// Directory adapts the identity service to the lookups the scheduling
// domain needs, translating missing rows into its error taxonomy.
type Directory struct {
	svc *Service
}

func NewDirectory(svc *Service) *Directory {
	return &Directory{svc: svc}
}

func (d *Directory) DoctorInfo(ctx context.Context, doctorID uuid.UUID) (*scheduling.DoctorInfo, error) {
	p, err := d.svc.GetDoctorProfile(ctx, doctorID)
	if err != nil {
		return nil, &scheduling.NotFoundError{Resource: "doctor profile", ID: doctorID.String()}
	}
	info := &scheduling.DoctorInfo{
		ConsultationMinutes: p.ConsultationMinutes,
		ConsultationFee:     p.ConsultationFee,
	}
	if p.MeetingLink != nil {
		info.MeetingLink = *p.MeetingLink
	}
	return info, nil
}

func (d *Directory) ClinicName(ctx context.Context, clinicID uuid.UUID) (string, error) {
	c, err := d.svc.GetClinic(ctx, clinicID)
	if err != nil {
		return "", &scheduling.NotFoundError{Resource: "clinic", ID: clinicID.String()}
	}
	return c.Name, nil
}

func (d *Directory) EnsureRole(ctx context.Context, userID uuid.UUID, role string) error {
	u, err := d.svc.GetUser(ctx, userID)
	if err != nil {
		return &scheduling.NotFoundError{Resource: "user", ID: userID.String()}
	}
	if !u.Active {
		return &scheduling.NotFoundError{Resource: "user", ID: userID.String()}
	}
	if u.Role != role {
		return &scheduling.ValidationError{Msg: fmt.Sprintf("user %s is not a %s", userID, role)}
	}
	return nil
}
