package service

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/dto"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

// ExperimentService manages the experiment lifecycle
type ExperimentService struct {
	experiments repository.ExperimentRepository
	log         *zap.Logger
}

// NewExperimentService creates a new experiment service
func NewExperimentService(experiments repository.ExperimentRepository, log *zap.Logger) *ExperimentService {
	return &ExperimentService{
		experiments: experiments,
		log:         log,
	}
}

// Create validates and persists a new draft experiment with its variants.
// Variant names must be unique within the experiment and traffic allocations
// must sum to 100 within tolerance.
func (s *ExperimentService) Create(ctx context.Context, req *dto.CreateExperimentRequest) (*dto.ExperimentResponse, error) {
	seen := make(map[string]struct{}, len(req.Variants))
	allocationSum := 0.0
	for _, variant := range req.Variants {
		if _, dup := seen[variant.Name]; dup {
			return nil, &domain.ValidationError{Reason: "variant names must be unique within an experiment"}
		}
		seen[variant.Name] = struct{}{}
		allocationSum += variant.TrafficAllocation
	}
	if math.Abs(allocationSum-100) > domain.AllocationTolerance {
		return nil, &domain.ConfigurationError{
			Reason: fmt.Sprintf("variant traffic allocations must sum to 100, got %.2f", allocationSum),
		}
	}

	variants := make([]domain.Variant, 0, len(req.Variants))
	for _, variant := range req.Variants {
		variants = append(variants, domain.Variant{
			Name:              variant.Name,
			Description:       variant.Description,
			TrafficAllocation: variant.TrafficAllocation,
			Config:            variant.Config,
		})
	}

	experiment, err := s.experiments.CreateExperiment(ctx, &domain.Experiment{
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.StatusDraft,
	}, variants)
	if err != nil {
		return nil, err
	}

	return s.buildResponse(ctx, experiment)
}

// Get returns an experiment with its variants
func (s *ExperimentService) Get(ctx context.Context, id int64) (*dto.ExperimentResponse, error) {
	experiment, err := s.experiments.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.buildResponse(ctx, experiment)
}

// List returns a page of experiments with an optional status filter
func (s *ExperimentService) List(ctx context.Context, req *dto.ListExperimentsRequest) (*dto.ExperimentListResponse, error) {
	filter := repository.ExperimentFilter{Limit: req.Limit, Offset: req.Offset}
	if req.Status != "" {
		status := domain.ExperimentStatus(req.Status)
		if !status.Valid() {
			return nil, &domain.ValidationError{Reason: fmt.Sprintf("unknown experiment status: %s", req.Status)}
		}
		filter.Status = &status
	}

	experiments, total, err := s.experiments.ListExperiments(ctx, filter)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ExperimentResponse, 0, len(experiments))
	for i := range experiments {
		response, err := s.buildResponse(ctx, &experiments[i])
		if err != nil {
			return nil, err
		}
		responses = append(responses, *response)
	}

	return &dto.ExperimentListResponse{Experiments: responses, Total: total}, nil
}

// Update applies field updates and validated status transitions
func (s *ExperimentService) Update(ctx context.Context, id int64, req *dto.UpdateExperimentRequest) (*dto.ExperimentResponse, error) {
	update := repository.ExperimentUpdate{
		Name:        req.Name,
		Description: req.Description,
	}

	if req.Status != nil {
		next := domain.ExperimentStatus(*req.Status)
		if !next.Valid() {
			return nil, &domain.ValidationError{Reason: fmt.Sprintf("unknown experiment status: %s", *req.Status)}
		}

		current, err := s.experiments.GetExperiment(ctx, id)
		if err != nil {
			return nil, err
		}
		if !current.Status.CanTransitionTo(next) {
			return nil, &domain.ValidationError{
				Reason: fmt.Sprintf("invalid status transition from %s to %s", current.Status, next),
			}
		}
		update.Status = &next
	}

	experiment, err := s.experiments.UpdateExperiment(ctx, id, update)
	if err != nil {
		return nil, err
	}

	if update.Status != nil {
		s.log.Info("Experiment status changed",
			zap.Int64("experiment_id", id),
			zap.String("status", string(*update.Status)))
	}

	return s.buildResponse(ctx, experiment)
}

// Delete removes a draft experiment and everything it owns. Running and
// finished experiments are kept for their assignment history.
func (s *ExperimentService) Delete(ctx context.Context, id int64) error {
	experiment, err := s.experiments.GetExperiment(ctx, id)
	if err != nil {
		return err
	}
	if experiment.Status != domain.StatusDraft {
		return &domain.ValidationError{Reason: "only draft experiments can be deleted"}
	}
	return s.experiments.DeleteExperiment(ctx, id)
}

func (s *ExperimentService) buildResponse(ctx context.Context, experiment *domain.Experiment) (*dto.ExperimentResponse, error) {
	variants, err := s.experiments.ListVariants(ctx, experiment.ID)
	if err != nil {
		return nil, err
	}

	variantResponses := make([]dto.VariantResponse, 0, len(variants))
	for _, variant := range variants {
		variantResponses = append(variantResponses, dto.VariantResponse{
			ID:                variant.ID,
			Name:              variant.Name,
			Description:       variant.Description,
			TrafficAllocation: variant.TrafficAllocation,
			Config:            variant.Config,
		})
	}

	return &dto.ExperimentResponse{
		ID:          experiment.ID,
		Name:        experiment.Name,
		Description: experiment.Description,
		Status:      string(experiment.Status),
		CreatedAt:   experiment.CreatedAt,
		UpdatedAt:   experiment.UpdatedAt,
		StartedAt:   experiment.StartedAt,
		EndedAt:     experiment.EndedAt,
		Variants:    variantResponses,
	}, nil
}
