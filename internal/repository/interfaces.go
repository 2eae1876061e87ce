package repository

import (
	"context"
	"time"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
)

// TimeWindow is an inclusive [Start, End] analysis range.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// ExperimentFilter narrows and pages experiment listings.
type ExperimentFilter struct {
	Status *domain.ExperimentStatus
	Limit  int
	Offset int
}

// ExperimentUpdate carries the mutable experiment fields; nil means unchanged.
type ExperimentUpdate struct {
	Name        *string
	Description *string
	Status      *domain.ExperimentStatus
}

// InsertAssignmentParams are the inputs for the atomic insert-if-absent.
type InsertAssignmentParams struct {
	ExperimentID int64
	VariantID    int64
	UserID       string
	Context      map[string]interface{}
}

// AssignmentFilter narrows and pages assignment listings. A Limit of zero or
// less means no limit.
type AssignmentFilter struct {
	VariantID *int64
	Limit     int
	Offset    int
}

// EventQuery selects events for a user population within a window, optionally
// restricted to specific event types.
type EventQuery struct {
	UserIDs    []string
	Window     TimeWindow
	EventTypes []string
}

// EventAuditQuery supports the audit/debug event listing endpoint.
type EventAuditQuery struct {
	UserID    string
	EventType string
	Start     *time.Time
	End       *time.Time
	Limit     int
	Offset    int
}

// EventTypeCount is one row of the distinct event type listing.
type EventTypeCount struct {
	EventType string
	Count     uint64
}

// ExperimentRepository stores experiments and their variants.
type ExperimentRepository interface {
	// CreateExperiment persists an experiment and its variants in one
	// transaction and returns the stored experiment with ids filled in.
	CreateExperiment(ctx context.Context, experiment *domain.Experiment, variants []domain.Variant) (*domain.Experiment, error)

	GetExperiment(ctx context.Context, id int64) (*domain.Experiment, error)

	// ListExperiments returns a page of experiments plus the total count.
	ListExperiments(ctx context.Context, filter ExperimentFilter) ([]domain.Experiment, int, error)

	UpdateExperiment(ctx context.Context, id int64, update ExperimentUpdate) (*domain.Experiment, error)

	// DeleteExperiment removes an experiment and, by cascade, its variants
	// and assignments.
	DeleteExperiment(ctx context.Context, id int64) error

	// ListVariants returns the experiment's variants ordered by ascending id.
	ListVariants(ctx context.Context, experimentID int64) ([]domain.Variant, error)
}

// AssignmentRepository stores user-to-variant assignments.
type AssignmentRepository interface {
	// InsertIfAbsent atomically inserts an assignment unless one already
	// exists for (experiment, user). It returns the authoritative row and
	// whether this call created it; a lost race surfaces as created=false
	// with the winner's row, never as an error.
	InsertIfAbsent(ctx context.Context, params InsertAssignmentParams) (*domain.Assignment, bool, error)

	// Find returns the assignment for (experiment, user), or nil when absent.
	Find(ctx context.Context, experimentID int64, userID string) (*domain.Assignment, error)

	// List returns a page of assignments plus the total count.
	List(ctx context.Context, experimentID int64, filter AssignmentFilter) ([]domain.Assignment, int, error)

	// CountByVariant returns persisted assignment counts keyed by variant id.
	CountByVariant(ctx context.Context, experimentID int64) (map[int64]int, error)
}

// EventRepository stores user events.
type EventRepository interface {
	// InsertBatch inserts a batch of events and reports how many were written.
	InsertBatch(ctx context.Context, events []*domain.Event) (int, error)

	// ListEvents returns events matching the query, for results computation.
	ListEvents(ctx context.Context, query EventQuery) ([]domain.Event, error)

	// QueryEvents returns a page of events plus the total count, for auditing.
	QueryEvents(ctx context.Context, query EventAuditQuery) ([]domain.Event, int, error)

	// EventTypeCounts returns the distinct event types with their counts.
	EventTypeCounts(ctx context.Context) ([]EventTypeCount, error)

	// InitSchema creates the events table if it does not exist.
	InitSchema(ctx context.Context) error

	// Ping checks if the store connection is alive.
	Ping(ctx context.Context) error

	// Close closes the repository and releases resources.
	Close() error
}
