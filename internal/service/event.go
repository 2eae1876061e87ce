package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/dto"
	"github.com/jeetkatariya/experimentation-platform/internal/queue"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

// EventService ingests events through the queue and serves event queries
type EventService struct {
	publisher  queue.QueuePublisher
	repository repository.EventRepository
	log        *zap.Logger
}

// NewEventService creates a new event service
func NewEventService(publisher queue.QueuePublisher, repo repository.EventRepository, log *zap.Logger) *EventService {
	return &EventService{
		publisher:  publisher,
		repository: repo,
		log:        log,
	}
}

// computeEventID generates a deterministic event ID based on event content.
// Replayed queue deliveries of the same event produce the same ID and dedupe
// in the event store.
func computeEventID(event *dto.RecordEventRequest) string {
	data := fmt.Sprintf("%s|%s|%d", event.UserID, event.EventType, event.Timestamp)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ProcessEvent validates a single event and publishes it to the queue
func (s *EventService) ProcessEvent(ctx context.Context, event *dto.RecordEventRequest) (string, error) {
	currentTime := time.Now().Unix()
	if event.Timestamp > currentTime+1 {
		s.log.Warn("Timestamp validation failed: future timestamp",
			zap.Int64("event_timestamp", event.Timestamp),
			zap.Int64("current_time", currentTime),
			zap.String("event_type", event.EventType))
		return "", fmt.Errorf("timestamp cannot be in the future: %d > %d", event.Timestamp, currentTime)
	}

	eventID := computeEventID(event)

	if err := s.publisher.PublishEvent(ctx, event, eventID); err != nil {
		return "", fmt.Errorf("failed to publish event to queue: %w", err)
	}

	return eventID, nil
}

// ProcessBulkEvents validates and processes multiple events
func (s *EventService) ProcessBulkEvents(ctx context.Context, events []dto.RecordEventRequest) ([]string, []string, error) {
	var eventIDs []string
	var errors []string

	for i, event := range events {
		eventID, err := s.ProcessEvent(ctx, &event)
		if err != nil {
			errors = append(errors, err.Error())
			s.log.Warn("Failed to process event in bulk",
				zap.Int("index", i),
				zap.Error(err),
				zap.String("event_type", event.EventType))
			continue
		}
		eventIDs = append(eventIDs, eventID)
	}

	return eventIDs, errors, nil
}

// QueryEvents returns a page of stored events for auditing and debugging
func (s *EventService) QueryEvents(ctx context.Context, req *dto.QueryEventsRequest) (*dto.QueryEventsResponse, error) {
	if req.From > 0 && req.To > 0 && req.From > req.To {
		return nil, &domain.ValidationError{Reason: "from timestamp must be less than or equal to to timestamp"}
	}

	query := repository.EventAuditQuery{
		UserID:    req.UserID,
		EventType: req.EventType,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
	if req.From > 0 {
		from := time.Unix(req.From, 0).UTC()
		query.Start = &from
	}
	if req.To > 0 {
		to := time.Unix(req.To, 0).UTC()
		query.End = &to
	}

	events, total, err := s.repository.QueryEvents(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	records := make([]dto.EventRecord, 0, len(events))
	for _, event := range events {
		records = append(records, dto.EventRecord{
			EventID:    event.EventID,
			UserID:     event.UserID,
			EventType:  event.EventType,
			Timestamp:  event.Timestamp,
			Properties: decodeProperties(event.Properties),
		})
	}

	return &dto.QueryEventsResponse{Total: total, Events: records}, nil
}

// EventTypes returns the distinct event types recorded in the system
func (s *EventService) EventTypes(ctx context.Context) (*dto.EventTypesResponse, error) {
	counts, err := s.repository.EventTypeCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list event types: %w", err)
	}

	infos := make([]dto.EventTypeInfo, 0, len(counts))
	for _, count := range counts {
		infos = append(infos, dto.EventTypeInfo{Type: count.EventType, Count: count.Count})
	}

	return &dto.EventTypesResponse{EventTypes: infos}, nil
}
