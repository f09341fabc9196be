package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValidationError reports malformed or semantically invalid input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func notFound(resource string, id uuid.UUID) error {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

// ConflictError reports a booking that would overlap an existing commitment.
// The blocking interval and, when known, the clinic holding it are included
// so clients can render the collision without a second lookup.
type ConflictError struct {
	Msg            string
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	ClinicName     string     `json:"clinic_name,omitempty"`
	ConsultationID *uuid.UUID `json:"consultation_id,omitempty"`
}

func (e *ConflictError) Error() string {
	if e.ClinicName != "" {
		return fmt.Sprintf("%s: doctor is busy at %s from %s to %s",
			e.Msg, e.ClinicName, e.Start.Format("15:04"), e.End.Format("15:04"))
	}
	return fmt.Sprintf("%s: %s to %s is taken",
		e.Msg, e.Start.Format("15:04"), e.End.Format("15:04"))
}

// BusyError reports that the booking critical section could not be entered
// within the wait budget. The operation was not attempted and is safe to
// retry.
type BusyError struct {
	Key string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("booking system busy for %s, retry shortly", e.Key)
}

// StateError reports an operation that is not legal in the entity's current
// state.
type StateError struct {
	Current string
	Msg     string
}

func (e *StateError) Error() string {
	if e.Current != "" {
		return fmt.Sprintf("%s (current status: %s)", e.Msg, e.Current)
	}
	return e.Msg
}

// DependencyError reports a downstream side effect that failed after the
// primary operation succeeded. It is logged, never returned to clients as a
// failure of the booking itself.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
