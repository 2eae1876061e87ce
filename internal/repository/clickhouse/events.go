package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

// Repository implements EventRepository for ClickHouse
type Repository struct {
	client *Client
	log    *zap.Logger
}

// NewRepository creates a new ClickHouse event repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		log:    log,
	}
}

// InitSchema initializes the events table with a ReplacingMergeTree engine.
// The deterministic event_id plus the version column dedupe replayed
// deliveries from the queue.
func (r *Repository) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		event_id String,
		user_id String,
		event_type LowCardinality(String),
		timestamp DateTime64(3),
		properties String,
		processed_at DateTime64(3) DEFAULT now64(3),
		version UInt64
	) ENGINE = ReplacingMergeTree(version)
	PRIMARY KEY (event_id)
	ORDER BY (event_id, timestamp)
	PARTITION BY toYYYYMM(timestamp)
	SETTINGS index_granularity = 8192
	`

	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	r.log.Info("ClickHouse schema initialized successfully")
	return nil
}

// InsertBatch inserts a batch of events into ClickHouse
func (r *Repository) InsertBatch(ctx context.Context, events []*domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch, err := r.client.Conn().PrepareBatch(ctx, "INSERT INTO events")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	insertedCount := 0
	for _, event := range events {
		if event.Version == 0 {
			event.Version = uint64(time.Now().UnixNano())
		}

		properties := event.Properties
		if properties == "" {
			properties = "{}"
		}

		err := batch.Append(
			event.EventID,
			event.UserID,
			event.EventType,
			event.Timestamp,
			properties,
			event.ProcessedAt,
			event.Version,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to append event to batch: %w", err)
		}
		insertedCount++
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	return insertedCount, nil
}

// ListEvents returns the events of the given users within the window,
// optionally restricted to specific event types. Used by results computation.
func (r *Repository) ListEvents(ctx context.Context, query repository.EventQuery) ([]domain.Event, error) {
	if len(query.UserIDs) == 0 {
		return nil, nil
	}

	whereClause := "WHERE user_id IN (?) AND timestamp >= ? AND timestamp <= ?"
	args := []interface{}{query.UserIDs, query.Window.Start, query.Window.End}

	if len(query.EventTypes) > 0 {
		whereClause += " AND event_type IN (?)"
		args = append(args, query.EventTypes)
	}

	listQuery := fmt.Sprintf(`
		SELECT event_id, user_id, event_type, timestamp, properties, processed_at, version
		FROM events FINAL
		%s
		ORDER BY timestamp ASC
	`, whereClause)

	rows, err := r.client.Conn().Query(ctx, listQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer r.closeRows(rows)

	return scanEvents(rows)
}

// QueryEvents returns a page of events plus the total count, for auditing
func (r *Repository) QueryEvents(ctx context.Context, query repository.EventAuditQuery) ([]domain.Event, int, error) {
	whereClause := "WHERE 1 = 1"
	args := []interface{}{}

	if query.UserID != "" {
		whereClause += " AND user_id = ?"
		args = append(args, query.UserID)
	}
	if query.EventType != "" {
		whereClause += " AND event_type = ?"
		args = append(args, query.EventType)
	}
	if query.Start != nil {
		whereClause += " AND timestamp >= ?"
		args = append(args, *query.Start)
	}
	if query.End != nil {
		whereClause += " AND timestamp <= ?"
		args = append(args, *query.End)
	}

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM events FINAL %s", whereClause)
	if err := r.client.Conn().QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	pageQuery := fmt.Sprintf(`
		SELECT event_id, user_id, event_type, timestamp, properties, processed_at, version
		FROM events FINAL
		%s
		ORDER BY timestamp DESC
		LIMIT %d OFFSET %d
	`, whereClause, limit, query.Offset)

	rows, err := r.client.Conn().Query(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query events: %w", err)
	}
	defer r.closeRows(rows)

	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, int(total), nil
}

// EventTypeCounts returns the distinct event types with their counts
func (r *Repository) EventTypeCounts(ctx context.Context) ([]repository.EventTypeCount, error) {
	rows, err := r.client.Conn().Query(ctx, `
		SELECT event_type, count() as total_count
		FROM events FINAL
		GROUP BY event_type
		ORDER BY total_count DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query event types: %w", err)
	}
	defer r.closeRows(rows)

	var counts []repository.EventTypeCount
	for rows.Next() {
		var count repository.EventTypeCount
		if err := rows.Scan(&count.EventType, &count.Count); err != nil {
			return nil, fmt.Errorf("failed to scan event type row: %w", err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event type rows: %w", err)
	}

	return counts, nil
}

// Ping checks if the ClickHouse connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

// Close closes the ClickHouse connection
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) closeRows(rows driver.Rows) {
	if err := rows.Close(); err != nil {
		r.log.Error("Failed to close rows", zap.Error(err))
	}
}

func scanEvents(rows driver.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(&event.EventID, &event.UserID, &event.EventType,
			&event.Timestamp, &event.Properties, &event.ProcessedAt, &event.Version); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}
