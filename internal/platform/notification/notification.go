// Package notification dispatches booking lifecycle events to an outbound
// webhook. Delivery is best-effort and asynchronous; a failed or dropped
// event never affects the booking that produced it.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eclinic/eclinic/internal/domain/scheduling"
)

// EventType names a booking lifecycle transition.
type EventType string

const (
	EventBooked      EventType = "consultation.booked"
	EventCancelled   EventType = "consultation.cancelled"
	EventRescheduled EventType = "consultation.rescheduled"
)

// Event is the payload delivered to the webhook.
type Event struct {
	ID             uuid.UUID `json:"id"`
	Type           EventType `json:"type"`
	ConsultationID uuid.UUID `json:"consultation_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	Date           string    `json:"date"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Message        string    `json:"message"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Template maps an event type to a human-readable message with
// {{placeholder}} substitution.
type Template struct {
	ID   EventType
	Body string
}

// TemplateEngine renders event messages.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[EventType]*Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[EventType]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:   EventBooked,
			Body: "Your consultation on {{date}} from {{start}} to {{end}} is confirmed.",
		},
		{
			ID:   EventCancelled,
			Body: "Your consultation on {{date}} at {{start}} has been cancelled.",
		},
		{
			ID:   EventRescheduled,
			Body: "Your consultation has been moved to {{date}}, {{start}} to {{end}}.",
		},
	}
	for i := range builtIn {
		e.templates[builtIn[i].ID] = &builtIn[i]
	}
}

// Register adds or replaces a template.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	e.templates[t.ID] = &t
	e.mu.Unlock()
}

// Render substitutes data into the template for the event type.
func (e *TemplateEngine) Render(id EventType, data map[string]string) (string, error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", id)
	}
	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body, nil
}

// Dispatcher queues events and delivers them to the configured webhook in
// the background. With no webhook URL it degrades to structured logging.
type Dispatcher struct {
	webhookURL string
	client     *http.Client
	templates  *TemplateEngine
	logger     zerolog.Logger

	queue chan Event
	done  chan struct{}
	wg    sync.WaitGroup
}

const queueSize = 256

func NewDispatcher(webhookURL string, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		templates:  NewTemplateEngine(),
		logger:     logger,
		queue:      make(chan Event, queueSize),
		done:       make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Publish enqueues an event. A full queue drops the event with a log line
// rather than blocking the caller.
func (d *Dispatcher) Publish(ev Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn().
			Str("event_type", string(ev.Type)).
			Str("consultation_id", ev.ConsultationID.String()).
			Msg("notification queue full, event dropped")
	}
}

// Close stops the worker after draining queued events.
func (d *Dispatcher) Close() {
	close(d.done)
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.done:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	if msg, err := d.templates.Render(ev.Type, map[string]string{
		"date":  ev.Date,
		"start": ev.StartTime.Format("15:04"),
		"end":   ev.EndTime.Format("15:04"),
	}); err == nil {
		ev.Message = msg
	}

	log := d.logger.Info().
		Str("event_type", string(ev.Type)).
		Str("consultation_id", ev.ConsultationID.String()).
		Str("patient_id", ev.PatientID.String())

	if d.webhookURL == "" {
		log.Msg("notification (log only)")
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error().Err(err).Msg("encode notification event")
		return
	}
	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		d.logger.Error().Err(err).
			Str("event_type", string(ev.Type)).
			Msg("notification webhook delivery failed")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		d.logger.Error().
			Int("status", resp.StatusCode).
			Str("event_type", string(ev.Type)).
			Msg("notification webhook rejected event")
		return
	}
	log.Msg("notification delivered")
}

// SchedulingNotifier adapts the dispatcher to the scheduling domain's
// notifier interface.
type SchedulingNotifier struct {
	d *Dispatcher
}

func NewSchedulingNotifier(d *Dispatcher) *SchedulingNotifier {
	return &SchedulingNotifier{d: d}
}

func (n *SchedulingNotifier) event(t EventType, c *scheduling.Consultation) Event {
	return Event{
		Type:           t,
		ConsultationID: c.ID,
		PatientID:      c.PatientID,
		DoctorID:       c.DoctorID,
		Date:           c.ScheduledDate.Format("2006-01-02"),
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
	}
}

func (n *SchedulingNotifier) ConsultationBooked(_ context.Context, c *scheduling.Consultation) {
	n.d.Publish(n.event(EventBooked, c))
}

func (n *SchedulingNotifier) ConsultationCancelled(_ context.Context, c *scheduling.Consultation) {
	n.d.Publish(n.event(EventCancelled, c))
}

func (n *SchedulingNotifier) ConsultationRescheduled(_ context.Context, c *scheduling.Consultation) {
	n.d.Publish(n.event(EventRescheduled, c))
}
