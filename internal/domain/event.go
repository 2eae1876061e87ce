package domain

import "time"

// Event represents a user event stored in ClickHouse. Events belong to users,
// not experiments; the same event can count toward any experiment the user is
// assigned to, subject to the causality filter.
type Event struct {
	EventID     string    `ch:"event_id"`
	UserID      string    `ch:"user_id"`
	EventType   string    `ch:"event_type"`
	Timestamp   time.Time `ch:"timestamp"`
	Properties  string    `ch:"properties"`
	ProcessedAt time.Time `ch:"processed_at"`
	Version     uint64    `ch:"version"`
}
