package service

import (
	"context"

	"github.com/jeetkatariya/experimentation-platform/internal/dto"
)

// ExperimentServicer defines the interface for experiment lifecycle operations
type ExperimentServicer interface {
	Create(ctx context.Context, req *dto.CreateExperimentRequest) (*dto.ExperimentResponse, error)
	Get(ctx context.Context, id int64) (*dto.ExperimentResponse, error)
	List(ctx context.Context, req *dto.ListExperimentsRequest) (*dto.ExperimentListResponse, error)
	Update(ctx context.Context, id int64, req *dto.UpdateExperimentRequest) (*dto.ExperimentResponse, error)
	Delete(ctx context.Context, id int64) error
}

// AssignmentServicer defines the interface for assignment operations
type AssignmentServicer interface {
	GetOrCreate(ctx context.Context, experimentID int64, userID string, contextJSON string) (*dto.AssignmentResponse, error)
	ListAssignments(ctx context.Context, experimentID int64, req *dto.ListAssignmentsRequest) (*dto.ListAssignmentsResponse, error)
}

// EventServicer defines the interface for event ingestion and queries
type EventServicer interface {
	ProcessEvent(ctx context.Context, event *dto.RecordEventRequest) (string, error)
	ProcessBulkEvents(ctx context.Context, events []dto.RecordEventRequest) ([]string, []string, error)
	QueryEvents(ctx context.Context, req *dto.QueryEventsRequest) (*dto.QueryEventsResponse, error)
	EventTypes(ctx context.Context) (*dto.EventTypesResponse, error)
}

// ResultsServicer defines the interface for results analytics
type ResultsServicer interface {
	GetResults(ctx context.Context, experimentID int64, req *dto.GetResultsRequest) (*dto.ExperimentResults, error)
	Export(ctx context.Context, experimentID int64, includeAssignments, includeEvents bool) (*dto.ExportResponse, error)
}
