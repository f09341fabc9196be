package scheduling

import (
	"os"
	"regexp"
	"strings"
	"testing"
)

const initMigration = "../../../migrations/0001_init.sql"

// Reschedule approval is tri-state: NULL while a request is pending, then
// true or false once decided. RequestReschedule writes NULL into the column
// and ApproveReschedule dispatches on scanning NULL back out, so the schema
// must keep it nullable.
func TestSchemaRescheduleApprovalIsNullable(t *testing.T) {
	sql, err := os.ReadFile(initMigration)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}

	m := regexp.MustCompile(`(?m)reschedule_approved\s+([^,\n]+)`).FindSubmatch(sql)
	if m == nil {
		t.Fatal("reschedule_approved column not found in init migration")
	}
	def := string(m[1])
	if strings.Contains(def, "NOT NULL") {
		t.Errorf("reschedule_approved must be nullable, got %q", def)
	}
	if strings.Contains(def, "DEFAULT FALSE") || strings.Contains(def, "DEFAULT TRUE") {
		t.Errorf("reschedule_approved must default to NULL, got %q", def)
	}
}

// The slot table's unique interval index is the commit-time guard behind the
// per-doctor-day lock; bookings rely on it surfacing 23505 on a duplicate.
func TestSchemaSlotIntervalUnique(t *testing.T) {
	sql, err := os.ReadFile(initMigration)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !strings.Contains(string(sql), "UNIQUE (doctor_id, date, start_time, end_time)") {
		t.Error("slots table missing the unique (doctor_id, date, start_time, end_time) constraint")
	}
}
