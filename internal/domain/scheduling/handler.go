package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/eclinic/eclinic/internal/platform/auth"
	"github.com/eclinic/eclinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – any authenticated caller
	read := api.Group("", auth.RequireRole("patient", "doctor"))
	read.GET("/slots/available", h.AvailableSlots)
	read.GET("/slots", h.ListSlots)
	read.GET("/availability", h.ListWindows)
	read.GET("/consultations", h.ListConsultations)
	read.GET("/consultations/:id", h.GetConsultation)
	read.GET("/consultations/:id/reschedule", h.RescheduleHistory)

	// Doctor-side management
	doctor := api.Group("", auth.RequireRole("doctor"))
	doctor.POST("/availability", h.CreateWindow)
	doctor.PUT("/availability/:id", h.UpdateWindow)
	doctor.DELETE("/availability/:id", h.DeleteWindow)
	doctor.POST("/slots", h.CreateSlot)
	doctor.POST("/consultations/:id/start", h.StartConsultation)
	doctor.POST("/consultations/:id/complete", h.CompleteConsultation)

	// Booking – patients (admins pass every role check)
	patient := api.Group("", auth.RequireRole("patient"))
	patient.POST("/consultations", h.BookSlot)
	patient.POST("/consultations/dynamic", h.BookDynamic)

	// Shared transitions
	shared := api.Group("", auth.RequireRole("patient", "doctor"))
	shared.POST("/consultations/:id/cancel", h.CancelConsultation)
	shared.POST("/consultations/:id/reschedule/request", h.RequestReschedule)
	shared.POST("/consultations/:id/reschedule/apply", h.ApplyReschedule)

	// Admin operations
	admin := api.Group("", auth.RequireRole("admin"))
	admin.POST("/consultations/:id/reschedule/approve", h.ApproveReschedule)
	admin.GET("/consultations/overdue", h.ListOverdue)
	admin.POST("/consultations/sweep-overdue", h.SweepOverdue)
}

// httpError maps domain error kinds onto transport status codes.
func httpError(c echo.Context, err error) error {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		be *BusyError
		se *StateError
	)
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Msg)
	case errors.As(err, &nf):
		return echo.NewHTTPError(http.StatusNotFound, nf.Error())
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"message":  ce.Error(),
			"conflict": ce,
		})
	case errors.As(err, &se):
		return echo.NewHTTPError(http.StatusConflict, se.Error())
	case errors.As(err, &be):
		c.Response().Header().Set("Retry-After", "1")
		return echo.NewHTTPError(http.StatusServiceUnavailable, be.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseDay(s string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, validationf("invalid date %q, want YYYY-MM-DD", s)
	}
	return day, nil
}

// combine merges a calendar day with a wall-clock HH:MM time.
func combine(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, validationf("invalid time %q, want HH:MM", clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

func parseUUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// callerID falls back to the authenticated user when a request omits an
// explicit actor.
func callerID(c echo.Context) uuid.UUID {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// -- Availability --

type windowRequest struct {
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
	ClinicID  string `json:"clinic_id" validate:"omitempty,uuid"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

func (h *Handler) CreateWindow(c echo.Context) error {
	var req windowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	day, err := parseDay(req.Date)
	if err != nil {
		return httpError(c, err)
	}
	start, err := combine(day, req.StartTime)
	if err != nil {
		return httpError(c, err)
	}
	end, err := combine(day, req.EndTime)
	if err != nil {
		return httpError(c, err)
	}

	w := &AvailabilityWindow{
		DoctorID:  uuid.MustParse(req.DoctorID),
		Date:      day,
		StartTime: start,
		EndTime:   end,
	}
	if req.ClinicID != "" {
		cid := uuid.MustParse(req.ClinicID)
		w.ClinicID = &cid
	}
	if err := h.svc.CreateWindow(c.Request().Context(), w); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) ListWindows(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	day, err := parseDay(c.QueryParam("date"))
	if err != nil {
		return httpError(c, err)
	}
	items, err := h.svc.ListWindows(c.Request().Context(), doctorID, day)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

type updateWindowRequest struct {
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

func (h *Handler) UpdateWindow(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req updateWindowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	w, err := h.svc.GetWindow(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	start, err := combine(w.Date, req.StartTime)
	if err != nil {
		return httpError(c, err)
	}
	end, err := combine(w.Date, req.EndTime)
	if err != nil {
		return httpError(c, err)
	}
	updated, err := h.svc.UpdateWindow(c.Request().Context(), id, start, end)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteWindow(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteWindow(c.Request().Context(), id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Slots --

func (h *Handler) AvailableSlots(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	day, err := parseDay(c.QueryParam("date"))
	if err != nil {
		return httpError(c, err)
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), doctorID, day)
	if err != nil {
		return httpError(c, err)
	}
	if c.QueryParam("only_available") == "true" {
		free := make([]GeneratedSlot, 0, len(slots))
		for _, s := range slots {
			if s.Available {
				free = append(free, s)
			}
		}
		slots = free
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id": doctorID,
		"date":      day.Format("2006-01-02"),
		"slots":     slots,
	})
}

func (h *Handler) CreateSlot(c echo.Context) error {
	var req windowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	day, err := parseDay(req.Date)
	if err != nil {
		return httpError(c, err)
	}
	start, err := combine(day, req.StartTime)
	if err != nil {
		return httpError(c, err)
	}
	end, err := combine(day, req.EndTime)
	if err != nil {
		return httpError(c, err)
	}

	sl := &Slot{
		DoctorID:  uuid.MustParse(req.DoctorID),
		Date:      day,
		StartTime: start,
		EndTime:   end,
	}
	if req.ClinicID != "" {
		cid := uuid.MustParse(req.ClinicID)
		sl.ClinicID = &cid
	}
	if err := h.svc.CreateSlot(c.Request().Context(), sl); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, sl)
}

func (h *Handler) ListSlots(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	day, err := parseDay(c.QueryParam("date"))
	if err != nil {
		return httpError(c, err)
	}
	items, err := h.svc.ListSlots(c.Request().Context(), doctorID, day)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Booking --

type bookSlotRequest struct {
	SlotID         string `json:"slot_id" validate:"required,uuid"`
	PatientID      string `json:"patient_id" validate:"omitempty,uuid"`
	ReasonForVisit string `json:"reason_for_visit"`
}

func (h *Handler) BookSlot(c echo.Context) error {
	var req bookSlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID := callerID(c)
	if req.PatientID != "" {
		patientID = uuid.MustParse(req.PatientID)
	}
	consult, err := h.svc.BookSlot(c.Request().Context(), BookSlotRequest{
		SlotID:         uuid.MustParse(req.SlotID),
		PatientID:      patientID,
		ReasonForVisit: req.ReasonForVisit,
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, consult)
}

type bookDynamicRequest struct {
	PatientID      string `json:"patient_id" validate:"omitempty,uuid"`
	DoctorID       string `json:"doctor_id" validate:"required,uuid"`
	ClinicID       string `json:"clinic_id" validate:"omitempty,uuid"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime      string `json:"start_time" validate:"required"`
	EndTime        string `json:"end_time" validate:"required"`
	ReasonForVisit string `json:"reason_for_visit"`
}

func (h *Handler) BookDynamic(c echo.Context) error {
	var req bookDynamicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	day, err := parseDay(req.Date)
	if err != nil {
		return httpError(c, err)
	}
	start, err := combine(day, req.StartTime)
	if err != nil {
		return httpError(c, err)
	}
	end, err := combine(day, req.EndTime)
	if err != nil {
		return httpError(c, err)
	}
	patientID := callerID(c)
	if req.PatientID != "" {
		patientID = uuid.MustParse(req.PatientID)
	}
	booking := BookDynamicRequest{
		PatientID:      patientID,
		DoctorID:       uuid.MustParse(req.DoctorID),
		Date:           day,
		StartTime:      start,
		EndTime:        end,
		ReasonForVisit: req.ReasonForVisit,
	}
	if req.ClinicID != "" {
		cid := uuid.MustParse(req.ClinicID)
		booking.ClinicID = &cid
	}
	consult, err := h.svc.BookDynamic(c.Request().Context(), booking)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, consult)
}

// -- Consultations --

func (h *Handler) GetConsultation(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	consult, err := h.svc.GetConsultation(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

func (h *Handler) ListConsultations(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"doctor_id", "patient_id", "status", "date"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}
	items, total, err := h.svc.SearchConsultations(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) StartConsultation(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	consult, err := h.svc.StartConsultation(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

func (h *Handler) CompleteConsultation(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	consult, err := h.svc.CompleteConsultation(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelConsultation(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	consult, err := h.svc.CancelConsultation(c.Request().Context(), id, callerID(c), req.Reason)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

// -- Reschedule --

type rescheduleRequestBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) RequestReschedule(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req rescheduleRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	consult, err := h.svc.RequestReschedule(ctx, id, callerID(c), auth.RoleFromContext(ctx), req.Reason)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

type approveRequestBody struct {
	Approve *bool  `json:"approve" validate:"required"`
	Note    string `json:"note"`
}

func (h *Handler) ApproveReschedule(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req approveRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	consult, err := h.svc.ApproveReschedule(c.Request().Context(), id, *req.Approve, req.Note)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

type applyRequestBody struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

func (h *Handler) ApplyReschedule(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req applyRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	day, err := parseDay(req.Date)
	if err != nil {
		return httpError(c, err)
	}
	start, err := combine(day, req.StartTime)
	if err != nil {
		return httpError(c, err)
	}
	end, err := combine(day, req.EndTime)
	if err != nil {
		return httpError(c, err)
	}
	consult, err := h.svc.ApplyReschedule(c.Request().Context(), id, day, start, end)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

func (h *Handler) RescheduleHistory(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.RescheduleHistory(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Overdue sweep --

type sweepRequest struct {
	HoursOverdue int    `json:"hours_overdue"`
	Status       string `json:"status"`
}

func (h *Handler) SweepOverdue(c echo.Context) error {
	req := sweepRequest{HoursOverdue: 1, Status: "both"}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.SweepOverdue(c.Request().Context(), req.HoursOverdue, req.Status)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListOverdue(c echo.Context) error {
	req := sweepRequest{HoursOverdue: 1, Status: "both"}
	if v := c.QueryParam("hours_overdue"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hours_overdue")
		}
		req.HoursOverdue = n
	}
	if v := c.QueryParam("status"); v != "" {
		req.Status = v
	}
	items, err := h.svc.ListOverdue(c.Request().Context(), req.HoursOverdue, req.Status)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}
