package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eclinic/eclinic/internal/platform/db"
)

// =========== Availability Window Repository ===========

type windowRepoPG struct{ pool *pgxpool.Pool }

func NewWindowRepoPG(pool *pgxpool.Pool) WindowRepository { return &windowRepoPG{pool: pool} }

func (r *windowRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const windowCols = `id, doctor_id, clinic_id, date, start_time, end_time, created_at, updated_at`

func (r *windowRepoPG) scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	err := row.Scan(&w.ID, &w.DoctorID, &w.ClinicID, &w.Date, &w.StartTime, &w.EndTime, &w.CreatedAt, &w.UpdatedAt)
	return &w, err
}

func (r *windowRepoPG) Create(ctx context.Context, w *AvailabilityWindow) error {
	w.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_windows (id, doctor_id, clinic_id, date, start_time, end_time)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		w.ID, w.DoctorID, w.ClinicID, w.Date, w.StartTime, w.EndTime)
	return err
}

func (r *windowRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	return r.scanWindow(r.conn(ctx).QueryRow(ctx, `SELECT `+windowCols+` FROM availability_windows WHERE id = $1`, id))
}

func (r *windowRepoPG) Update(ctx context.Context, w *AvailabilityWindow) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_windows SET start_time=$2, end_time=$3, clinic_id=$4, updated_at=NOW()
		WHERE id = $1`,
		w.ID, w.StartTime, w.EndTime, w.ClinicID)
	return err
}

func (r *windowRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	return err
}

func (r *windowRepoPG) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*AvailabilityWindow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+windowCols+` FROM availability_windows
		WHERE doctor_id = $1 AND date = $2 ORDER BY start_time`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AvailabilityWindow
	for rows.Next() {
		w, err := r.scanWindow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

// =========== Slot Repository ===========

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const slotCols = `id, doctor_id, clinic_id, date, start_time, end_time,
	is_available, is_booked, booked_consultation_id, created_at, updated_at`

func (r *slotRepoPG) scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.DoctorID, &s.ClinicID, &s.Date, &s.StartTime, &s.EndTime,
		&s.IsAvailable, &s.IsBooked, &s.BookedConsultationID, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *slotRepoPG) Create(ctx context.Context, s *Slot) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO slots (id, doctor_id, clinic_id, date, start_time, end_time,
			is_available, is_booked, booked_consultation_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.ID, s.DoctorID, s.ClinicID, s.Date, s.StartTime, s.EndTime,
		s.IsAvailable, s.IsBooked, s.BookedConsultationID)
	return err
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return r.scanSlot(r.conn(ctx).QueryRow(ctx, `SELECT `+slotCols+` FROM slots WHERE id = $1`, id))
}

func (r *slotRepoPG) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Slot, error) {
	return r.list(ctx, `SELECT `+slotCols+` FROM slots WHERE doctor_id = $1 AND date = $2 ORDER BY start_time`, doctorID, date)
}

func (r *slotRepoPG) ListBookedByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Slot, error) {
	return r.list(ctx, `SELECT `+slotCols+` FROM slots WHERE doctor_id = $1 AND date = $2 AND is_booked ORDER BY start_time`, doctorID, date)
}

func (r *slotRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		s, err := r.scanSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *slotRepoPG) FindUnbooked(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end time.Time) (*Slot, error) {
	s, err := r.scanSlot(r.conn(ctx).QueryRow(ctx, `
		SELECT `+slotCols+` FROM slots
		WHERE doctor_id = $1 AND date = $2 AND start_time = $3 AND end_time = $4
		  AND is_available AND NOT is_booked`,
		doctorID, date, start, end))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// MarkBooked flips the slot to booked only while it is still open. The
// WHERE clause is the commit-time revalidation; a lost race reports false.
func (r *slotRepoPG) MarkBooked(ctx context.Context, id, consultationID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE slots SET is_booked = TRUE, booked_consultation_id = $2, updated_at = NOW()
		WHERE id = $1 AND is_available AND NOT is_booked`,
		id, consultationID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseByConsultation unbinds the consultation's slot rows. Published
// slots reopen for booking; rows materialized by dynamic bookings are
// removed so their unique index no longer covers the freed interval.
func (r *slotRepoPG) ReleaseByConsultation(ctx context.Context, consultationID uuid.UUID) error {
	conn := r.conn(ctx)
	if _, err := conn.Exec(ctx, `
		DELETE FROM slots WHERE booked_consultation_id = $1 AND NOT is_available`,
		consultationID); err != nil {
		return err
	}
	_, err := conn.Exec(ctx, `
		UPDATE slots SET is_booked = FALSE, booked_consultation_id = NULL, updated_at = NOW()
		WHERE booked_consultation_id = $1`, consultationID)
	return err
}

func (r *slotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM slots WHERE id = $1`, id)
	return err
}

// =========== Consultation Repository ===========

type consultationRepoPG struct{ pool *pgxpool.Pool }

func NewConsultationRepoPG(pool *pgxpool.Pool) ConsultationRepository {
	return &consultationRepoPG{pool: pool}
}

func (r *consultationRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consultationCols = `id, patient_id, doctor_id, clinic_id, scheduled_date, start_time, end_time,
	status, reason_for_visit, meeting_link, actual_start_time, actual_end_time,
	cancelled_by, cancelled_at, cancellation_reason,
	reschedule_requested, reschedule_approved, payment_status, fee, created_at, updated_at`

func (r *consultationRepoPG) scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.ClinicID, &c.ScheduledDate, &c.StartTime, &c.EndTime,
		&c.Status, &c.ReasonForVisit, &c.MeetingLink, &c.ActualStartTime, &c.ActualEndTime,
		&c.CancelledBy, &c.CancelledAt, &c.CancellationReason,
		&c.RescheduleRequested, &c.RescheduleApproved, &c.PaymentStatus, &c.Fee, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *consultationRepoPG) Create(ctx context.Context, c *Consultation) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultations (id, patient_id, doctor_id, clinic_id, scheduled_date,
			start_time, end_time, status, reason_for_visit, meeting_link, payment_status, fee)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.ID, c.PatientID, c.DoctorID, c.ClinicID, c.ScheduledDate,
		c.StartTime, c.EndTime, c.Status, c.ReasonForVisit, c.MeetingLink, c.PaymentStatus, c.Fee)
	return err
}

func (r *consultationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return r.scanConsultation(r.conn(ctx).QueryRow(ctx, `SELECT `+consultationCols+` FROM consultations WHERE id = $1`, id))
}

func (r *consultationRepoPG) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time, statuses []string) ([]*Consultation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+consultationCols+` FROM consultations
		WHERE doctor_id = $1 AND scheduled_date = $2 AND status = ANY($3)
		ORDER BY start_time`, doctorID, date, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Consultation
	for rows.Next() {
		c, err := r.scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *consultationRepoPG) UpdateSchedule(ctx context.Context, id uuid.UUID, date, start, end time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultations SET scheduled_date=$2, start_time=$3, end_time=$4, updated_at=NOW()
		WHERE id = $1`, id, date, start, end)
	return err
}

func (r *consultationRepoPG) UpdateStatus(ctx context.Context, c *Consultation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultations SET status=$2, actual_start_time=$3, actual_end_time=$4,
			cancelled_by=$5, cancelled_at=$6, cancellation_reason=$7, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Status, c.ActualStartTime, c.ActualEndTime,
		c.CancelledBy, c.CancelledAt, c.CancellationReason)
	return err
}

func (r *consultationRepoPG) UpdateRescheduleFlags(ctx context.Context, id uuid.UUID, requested bool, approved *bool) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultations SET reschedule_requested=$2, reschedule_approved=$3, updated_at=NOW()
		WHERE id = $1`, id, requested, approved)
	return err
}

func (r *consultationRepoPG) ListOverdue(ctx context.Context, cutoff time.Time, statuses []string) ([]*Consultation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+consultationCols+` FROM consultations
		WHERE start_time < $1 AND status = ANY($2)
		ORDER BY start_time`, cutoff, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Consultation
	for rows.Next() {
		c, err := r.scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *consultationRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Consultation, int, error) {
	query := `SELECT ` + consultationCols + ` FROM consultations WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM consultations WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["doctor_id"]; ok {
		query += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["patient_id"]; ok {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["date"]; ok {
		query += fmt.Sprintf(` AND scheduled_date = $%d`, idx)
		countQuery += fmt.Sprintf(` AND scheduled_date = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY start_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Consultation
	for rows.Next() {
		c, err := r.scanConsultation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// =========== Reschedule Repository ===========

type rescheduleRepoPG struct{ pool *pgxpool.Pool }

func NewRescheduleRepoPG(pool *pgxpool.Pool) RescheduleRepository {
	return &rescheduleRepoPG{pool: pool}
}

func (r *rescheduleRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const rescheduleCols = `id, consultation_id, requested_by, reason, status, note,
	old_start_time, old_end_time, new_start_time, new_end_time, created_at, updated_at`

func (r *rescheduleRepoPG) scanRequest(row pgx.Row) (*RescheduleRequest, error) {
	var req RescheduleRequest
	err := row.Scan(&req.ID, &req.ConsultationID, &req.RequestedBy, &req.Reason, &req.Status, &req.Note,
		&req.OldStartTime, &req.OldEndTime, &req.NewStartTime, &req.NewEndTime, &req.CreatedAt, &req.UpdatedAt)
	return &req, err
}

func (r *rescheduleRepoPG) Create(ctx context.Context, req *RescheduleRequest) error {
	req.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO reschedule_requests (id, consultation_id, requested_by, reason, status,
			old_start_time, old_end_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		req.ID, req.ConsultationID, req.RequestedBy, req.Reason, req.Status,
		req.OldStartTime, req.OldEndTime)
	return err
}

// GetPending returns the newest request that is still open, i.e. requested
// or approved but not yet applied or rejected.
func (r *rescheduleRepoPG) GetPending(ctx context.Context, consultationID uuid.UUID) (*RescheduleRequest, error) {
	return r.scanRequest(r.conn(ctx).QueryRow(ctx, `
		SELECT `+rescheduleCols+` FROM reschedule_requests
		WHERE consultation_id = $1 AND status IN ('requested', 'approved')
		ORDER BY created_at DESC LIMIT 1`, consultationID))
}

func (r *rescheduleRepoPG) Update(ctx context.Context, req *RescheduleRequest) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE reschedule_requests SET status=$2, note=$3, new_start_time=$4, new_end_time=$5, updated_at=NOW()
		WHERE id = $1`,
		req.ID, req.Status, req.Note, req.NewStartTime, req.NewEndTime)
	return err
}

func (r *rescheduleRepoPG) ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*RescheduleRequest, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+rescheduleCols+` FROM reschedule_requests
		WHERE consultation_id = $1 ORDER BY created_at`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*RescheduleRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	return items, rows.Err()
}
