// Package payments records pending payment entries against an external
// ledger service over HTTP.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LedgerRecord is the payload posted to the ledger for each booking.
type LedgerRecord struct {
	ConsultationID uuid.UUID `json:"consultation_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// LedgerClient posts pending payment records to a ledger endpoint. With no
// URL configured it logs the record and reports success, which keeps local
// development working without a ledger service.
type LedgerClient struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewLedgerClient(url string, logger zerolog.Logger) *LedgerClient {
	return &LedgerClient{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// RecordPending creates a pending ledger entry for a booked consultation.
func (c *LedgerClient) RecordPending(ctx context.Context, consultationID, patientID uuid.UUID, amount float64) error {
	rec := LedgerRecord{
		ConsultationID: consultationID,
		PatientID:      patientID,
		Amount:         amount,
		Currency:       "USD",
		Status:         "pending",
		RecordedAt:     time.Now().UTC(),
	}

	if c.url == "" {
		c.logger.Info().
			Str("consultation_id", consultationID.String()).
			Float64("amount", amount).
			Msg("payment record (log only)")
		return nil
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post ledger record: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ledger rejected record: status %d", resp.StatusCode)
	}
	return nil
}
