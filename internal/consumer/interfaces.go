package consumer

import (
	"github.com/jeetkatariya/experimentation-platform/internal/domain"
)

// MessageParser turns a raw queue message body into an event record.
// Implementations must reject bodies that lack the required identity fields.
type MessageParser interface {
	Parse(body []byte) (*domain.Event, error)
}
