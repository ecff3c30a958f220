// Package events publishes domain events after a write commits. Delivery is
// best-effort: a failed publish is logged and never fails the request.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	AppointmentBooked        = "appointment.booked"
	AppointmentStatusChanged = "appointment.status_changed"
	AppointmentUpdated       = "appointment.updated"
	AppointmentDeleted       = "appointment.deleted"
	PrescriptionCreated      = "prescription.created"
	InvoiceCreated           = "invoice.created"
	InvoicePaid              = "invoice.paid"
	InvoiceUnpaid            = "invoice.unpaid"
)

// Event is the wire shape shared by every backend.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// New builds an event for aggregate id. A payload that fails to marshal is
// dropped rather than failing the caller.
func New(eventType, aggregateType string, aggregateID int64, payload interface{}) Event {
	ev := Event{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   strconv.FormatInt(aggregateID, 10),
		OccurredAt:    time.Now().UTC(),
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			ev.Payload = b
		}
	}
	return ev
}

// Topics returns the subscription topics an event is delivered on: the
// aggregate type and the single aggregate ("appointment/42").
func (e Event) Topics() []string {
	return []string{e.AggregateType, e.AggregateType + "/" + e.AggregateID}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publishTimeout bounds how long a request waits on the broker.
const publishTimeout = 2 * time.Second

// Emit publishes ev and logs any failure through the request logger. It
// detaches from the request deadline so a slow handler does not starve the
// publish.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.Publish(pctx, ev); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("event_type", ev.Type).
			Str("aggregate_id", ev.AggregateID).
			Msg("event publish failed")
	}
}
