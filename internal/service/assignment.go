package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/analytics"
	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/dto"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

// AssignmentService hands out variant assignments with idempotency guarantees
type AssignmentService struct {
	experiments repository.ExperimentRepository
	assignments repository.AssignmentRepository
	log         *zap.Logger
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(experiments repository.ExperimentRepository, assignments repository.AssignmentRepository, log *zap.Logger) *AssignmentService {
	return &AssignmentService{
		experiments: experiments,
		assignments: assignments,
		log:         log,
	}
}

// GetOrCreate returns the user's assignment for the experiment, creating one
// if needed. Once a user has an assignment it is returned unchanged on every
// subsequent call, even if the variant configuration has drifted since; the
// persisted row is authoritative. New assignments require a running
// experiment with at least one variant.
//
// Concurrent calls for the same (experiment, user) converge on a single row:
// a caller that loses the insert race transparently receives the winner's
// assignment with is_new_assignment=false.
func (s *AssignmentService) GetOrCreate(ctx context.Context, experimentID int64, userID string, contextJSON string) (*dto.AssignmentResponse, error) {
	experiment, err := s.experiments.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	variants, err := s.experiments.ListVariants(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	variantByID := make(map[int64]domain.Variant, len(variants))
	for _, variant := range variants {
		variantByID[variant.ID] = variant
	}

	// Idempotency: an existing assignment wins over everything, including
	// the experiment's current status.
	existing, err := s.assignments.Find(ctx, experimentID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.buildResponse(experiment, existing, variantByID[existing.VariantID], false), nil
	}

	if experiment.Status != domain.StatusRunning {
		return nil, &domain.NotRunningError{Status: experiment.Status}
	}
	if len(variants) == 0 {
		return nil, &domain.ConfigurationError{Reason: "experiment has no variants configured"}
	}

	selected, err := analytics.SelectVariant(experimentID, userID, variants)
	if err != nil {
		return nil, err
	}

	assignment, created, err := s.assignments.InsertIfAbsent(ctx, repository.InsertAssignmentParams{
		ExperimentID: experimentID,
		VariantID:    selected.ID,
		UserID:       userID,
		Context:      parseAssignmentContext(contextJSON),
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.log.Info("Assignment created",
			zap.Int64("experiment_id", experimentID),
			zap.String("user_id", userID),
			zap.Int64("variant_id", assignment.VariantID))
	}

	// On a lost race the persisted row may point at a different variant
	// than the one selected above; always describe the persisted one.
	return s.buildResponse(experiment, assignment, variantByID[assignment.VariantID], created), nil
}

// ListAssignments returns a page of an experiment's assignments for auditing
func (s *AssignmentService) ListAssignments(ctx context.Context, experimentID int64, req *dto.ListAssignmentsRequest) (*dto.ListAssignmentsResponse, error) {
	if _, err := s.experiments.GetExperiment(ctx, experimentID); err != nil {
		return nil, err
	}

	variants, err := s.experiments.ListVariants(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	variantNames := make(map[int64]string, len(variants))
	for _, variant := range variants {
		variantNames[variant.ID] = variant.Name
	}

	assignments, total, err := s.assignments.List(ctx, experimentID, repository.AssignmentFilter{
		VariantID: req.VariantID,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		return nil, err
	}

	records := make([]dto.AssignmentRecord, 0, len(assignments))
	for _, assignment := range assignments {
		records = append(records, dto.AssignmentRecord{
			UserID:      assignment.UserID,
			VariantID:   assignment.VariantID,
			VariantName: variantNames[assignment.VariantID],
			AssignedAt:  assignment.AssignedAt,
			Context:     assignment.Context,
		})
	}

	return &dto.ListAssignmentsResponse{
		ExperimentID: experimentID,
		Total:        total,
		Assignments:  records,
	}, nil
}

func (s *AssignmentService) buildResponse(experiment *domain.Experiment, assignment *domain.Assignment, variant domain.Variant, isNew bool) *dto.AssignmentResponse {
	return &dto.AssignmentResponse{
		ExperimentID:    experiment.ID,
		ExperimentName:  experiment.Name,
		UserID:          assignment.UserID,
		VariantID:       assignment.VariantID,
		VariantName:     variant.Name,
		VariantConfig:   variant.Config,
		AssignedAt:      assignment.AssignedAt,
		IsNewAssignment: isNew,
	}
}

// parseAssignmentContext decodes the optional context payload. Malformed JSON
// is dropped rather than failing the assignment request.
func parseAssignmentContext(contextJSON string) map[string]interface{} {
	if contextJSON == "" {
		return nil
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(contextJSON), &parsed); err != nil {
		return nil
	}
	return parsed
}
