package identity

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/eclinic/eclinic/internal/platform/auth"
)

func newTestRouter(svc *Service) *echo.Echo {
	e := echo.New()
	api := e.Group("/api/v1", auth.DevAuthMiddleware())
	NewHandler(svc).RegisterRoutes(api)
	return e
}

func doRequest(e *echo.Echo, method, path, body, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set("X-Dev-Role", role)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestUserEndpoints(t *testing.T) {
	svc, _, _, _ := newTestService()
	e := newTestRouter(svc)

	t.Run("create user as admin", func(t *testing.T) {
		rec := doRequest(e, http.MethodPost, "/api/v1/users",
			`{"role": "doctor", "first_name": "Asha", "last_name": "Rao"}`, "admin")
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
		var u User
		if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
			t.Fatalf("decode user: %v", err)
		}
		if !u.Active || u.Role != RoleDoctor {
			t.Errorf("user = %+v", u)
		}

		rec = doRequest(e, http.MethodGet, "/api/v1/users/"+u.ID.String(), "", "patient")
		if rec.Code != http.StatusOK {
			t.Fatalf("get status = %d: %s", rec.Code, rec.Body)
		}
	})

	t.Run("create user is admin only", func(t *testing.T) {
		rec := doRequest(e, http.MethodPost, "/api/v1/users",
			`{"role": "patient", "first_name": "A", "last_name": "B"}`, "patient")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("invalid role is 400", func(t *testing.T) {
		rec := doRequest(e, http.MethodPost, "/api/v1/users",
			`{"role": "janitor", "first_name": "A", "last_name": "B"}`, "admin")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/api/v1/users/a2c1e7d0-52f8-4f9c-9da9-dc2f6a31bb0f", "", "doctor")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestDoctorProfileEndpoints(t *testing.T) {
	svc, _, _, _ := newTestService()
	e := newTestRouter(svc)
	doc := seedDoctor(t, svc)

	body := `{"specialization": "cardiology", "consultation_minutes": 20, "consultation_fee": 150}`
	rec := doRequest(e, http.MethodPut, "/api/v1/doctors/"+doc.ID.String()+"/profile", body, "doctor")
	if rec.Code != http.StatusOK {
		t.Fatalf("set profile status = %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/doctors/"+doc.ID.String()+"/profile", "", "patient")
	if rec.Code != http.StatusOK {
		t.Fatalf("get profile status = %d: %s", rec.Code, rec.Body)
	}
	var p DoctorProfile
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if p.ConsultationMinutes != 20 || p.ConsultationFee != 150 {
		t.Errorf("profile = %+v", p)
	}

	rec = doRequest(e, http.MethodPut, "/api/v1/doctors/"+doc.ID.String()+"/profile", body, "patient")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient set profile status = %d, want 403", rec.Code)
	}
}

func TestClinicEndpoints(t *testing.T) {
	svc, _, _, _ := newTestService()
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodPost, "/api/v1/clinics", `{"name": "Harbor Health"}`, "admin")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create clinic status = %d: %s", rec.Code, rec.Body)
	}
	var c Clinic
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode clinic: %v", err)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/clinics", "", "patient")
	if rec.Code != http.StatusOK {
		t.Fatalf("list clinics status = %d: %s", rec.Code, rec.Body)
	}
	var page struct {
		Data  []Clinic `json:"data"`
		Total int      `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || len(page.Data) != 1 {
		t.Fatalf("page = %+v, want one clinic", page)
	}

	rec = doRequest(e, http.MethodPut, "/api/v1/clinics/"+c.ID.String(),
		fmt.Sprintf(`{"name": %q}`, "Harbor Medical"), "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("update clinic status = %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(e, http.MethodDelete, "/api/v1/clinics/"+c.ID.String(), "", "admin")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete clinic status = %d: %s", rec.Code, rec.Body)
	}
}
