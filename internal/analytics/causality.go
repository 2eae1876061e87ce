package analytics

import (
	"time"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
)

// AttributedEvent pairs an event with the variant of the user that produced it.
type AttributedEvent struct {
	Event     domain.Event
	VariantID int64
}

// FilterEvents selects the events that count toward an experiment and
// attributes each to the originating user's variant. An event qualifies when:
//
//   - its user has an assignment,
//   - its timestamp lies within [start, end] (both inclusive),
//   - its timestamp is at or after the user's assignment time, and
//   - its type is in eventTypes, when a non-empty filter is given.
//
// Events recorded at the exact assignment instant count; events from before
// the assignment never do, even inside the analysis window.
func FilterEvents(
	events []domain.Event,
	assignments map[string]domain.Assignment,
	start, end time.Time,
	eventTypes []string,
) []AttributedEvent {
	var typeFilter map[string]struct{}
	if len(eventTypes) > 0 {
		typeFilter = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			typeFilter[t] = struct{}{}
		}
	}

	attributed := make([]AttributedEvent, 0, len(events))
	for _, event := range events {
		assignment, ok := assignments[event.UserID]
		if !ok {
			continue
		}
		if event.Timestamp.Before(start) || event.Timestamp.After(end) {
			continue
		}
		if event.Timestamp.Before(assignment.AssignedAt) {
			continue
		}
		if typeFilter != nil {
			if _, ok := typeFilter[event.EventType]; !ok {
				continue
			}
		}
		attributed = append(attributed, AttributedEvent{Event: event, VariantID: assignment.VariantID})
	}

	return attributed
}
