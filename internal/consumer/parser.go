package consumer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
)

// JSONEventParser implements MessageParser for JSON-formatted event messages
type JSONEventParser struct{}

// NewJSONEventParser creates a new JSON event parser
func NewJSONEventParser() *JSONEventParser {
	return &JSONEventParser{}
}

// Parse parses a JSON message body into an Event
func (p *JSONEventParser) Parse(body []byte) (*domain.Event, error) {
	var msgBody map[string]interface{}
	if err := json.Unmarshal(body, &msgBody); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message body: %w", err)
	}

	userID := getStringField(msgBody, "user_id")
	if userID == "" {
		return nil, fmt.Errorf("message is missing user_id")
	}
	eventType := getStringField(msgBody, "event_type")
	if eventType == "" {
		return nil, fmt.Errorf("message is missing event_type")
	}

	propertiesJSON := "{}"
	if properties, ok := msgBody["properties"].(map[string]interface{}); ok && len(properties) > 0 {
		propertiesBytes, err := json.Marshal(properties)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal properties: %w", err)
		}
		propertiesJSON = string(propertiesBytes)
	}

	event := &domain.Event{
		EventID:     getStringField(msgBody, "event_id"),
		UserID:      userID,
		EventType:   eventType,
		Timestamp:   time.Unix(getInt64Field(msgBody, "timestamp"), 0).UTC(),
		Properties:  propertiesJSON,
		ProcessedAt: time.Now().UTC(),
		Version:     uint64(time.Now().UnixNano()),
	}

	return event, nil
}

// Helper functions for extracting fields from parsed JSON
func getStringField(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

func getInt64Field(m map[string]interface{}, key string) int64 {
	if val, ok := m[key].(float64); ok {
		return int64(val)
	}
	return 0
}
