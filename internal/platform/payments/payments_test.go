package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestRecordPending(t *testing.T) {
	var got LedgerRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode record: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewLedgerClient(srv.URL, zerolog.Nop())
	consultID := uuid.New()
	patientID := uuid.New()

	if err := c.RecordPending(context.Background(), consultID, patientID, 150); err != nil {
		t.Fatalf("record pending: %v", err)
	}
	if got.ConsultationID != consultID {
		t.Errorf("consultation id = %s", got.ConsultationID)
	}
	if got.PatientID != patientID {
		t.Errorf("patient id = %s", got.PatientID)
	}
	if got.Amount != 150 {
		t.Errorf("amount = %v", got.Amount)
	}
	if got.Status != "pending" {
		t.Errorf("status = %q", got.Status)
	}
	if got.RecordedAt.IsZero() {
		t.Error("recorded_at not set")
	}
}

func TestRecordPendingLedgerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewLedgerClient(srv.URL, zerolog.Nop())
	if err := c.RecordPending(context.Background(), uuid.New(), uuid.New(), 80); err == nil {
		t.Fatal("expected error for rejected record")
	}
}

func TestRecordPendingLogOnly(t *testing.T) {
	c := NewLedgerClient("", zerolog.Nop())
	if err := c.RecordPending(context.Background(), uuid.New(), uuid.New(), 80); err != nil {
		t.Fatalf("log-only path should succeed, got %v", err)
	}
}
