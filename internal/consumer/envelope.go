package consumer

import (
	"context"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
)

type ackFunc func(context.Context) error

// Envelope carries an event through the pipeline together with the
// callbacks that settle its source message once the write outcome is known.
type Envelope struct {
	Event *domain.Event
	ack   ackFunc
	nack  ackFunc
}

func NewEnvelope(event *domain.Event, ack, nack func(context.Context) error) *Envelope {
	return &Envelope{Event: event, ack: ack, nack: nack}
}

// Ack settles the envelope after a successful write.
func (e *Envelope) Ack(ctx context.Context) error {
	if e.ack == nil {
		return nil
	}
	return e.ack(ctx)
}

// Nack returns the envelope's message to the queue for redelivery.
func (e *Envelope) Nack(ctx context.Context) error {
	if e.nack == nil {
		return nil
	}
	return e.nack(ctx)
}
