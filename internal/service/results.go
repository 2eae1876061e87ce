package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/analytics"
	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/dto"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

// Result format options
const (
	FormatFull        = "full"
	FormatSummary     = "summary"
	FormatMetricsOnly = "metrics_only"
)

// ResultsService computes experiment analytics from assignments and events.
//
// Assignments are read from Postgres and events from ClickHouse in two
// queries without cross-store isolation; events arriving between the two
// reads may be attributed against a marginally older assignment set. The
// staleness window is a single request and the next read converges.
type ResultsService struct {
	experiments repository.ExperimentRepository
	assignments repository.AssignmentRepository
	events      repository.EventRepository
	log         *zap.Logger
	now         func() time.Time
}

// NewResultsService creates a new results service
func NewResultsService(
	experiments repository.ExperimentRepository,
	assignments repository.AssignmentRepository,
	events repository.EventRepository,
	log *zap.Logger,
) *ResultsService {
	return &ResultsService{
		experiments: experiments,
		assignments: assignments,
		events:      events,
		log:         log,
		now:         time.Now,
	}
}

// GetResults computes per-variant metrics, the experiment summary with the
// leading variant and confidence level, and optionally a time series.
//
// The analysis window defaults to [experiment started_at (or created_at when
// never started), now]. started_at is stamped once on the first transition to
// running, so pausing and resuming does not move the default window start.
func (s *ResultsService) GetResults(ctx context.Context, experimentID int64, req *dto.GetResultsRequest) (*dto.ExperimentResults, error) {
	experiment, err := s.experiments.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	granularity := analytics.Granularity(req.Granularity)
	if req.Granularity == "" {
		granularity = analytics.GranularityDay
	}
	if !granularity.Valid() {
		return nil, &domain.ValidationError{
			Reason: fmt.Sprintf("invalid granularity: %s (supported: hour, day, week)", req.Granularity),
		}
	}

	format := req.Format
	if format == "" {
		format = FormatFull
	}
	switch format {
	case FormatFull, FormatSummary, FormatMetricsOnly:
	default:
		return nil, &domain.ValidationError{
			Reason: fmt.Sprintf("invalid format: %s (supported: full, summary, metrics_only)", req.Format),
		}
	}

	start, end := s.analysisWindow(experiment, req)
	eventTypes := parseEventTypes(req.EventTypes)

	variants, err := s.experiments.ListVariants(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	assignmentCounts, err := s.assignments.CountByVariant(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	// All assignments count toward totals; the window only scopes events.
	assignments, _, err := s.assignments.List(ctx, experimentID, repository.AssignmentFilter{})
	if err != nil {
		return nil, err
	}

	userAssignments := make(map[string]domain.Assignment, len(assignments))
	userIDs := make([]string, 0, len(assignments))
	for _, assignment := range assignments {
		userAssignments[assignment.UserID] = assignment
		userIDs = append(userIDs, assignment.UserID)
	}

	var events []domain.Event
	if len(userIDs) > 0 {
		events, err = s.events.ListEvents(ctx, repository.EventQuery{
			UserIDs:    userIDs,
			Window:     repository.TimeWindow{Start: start, End: end},
			EventTypes: eventTypes,
		})
		if err != nil {
			return nil, err
		}
	}

	attributed := analytics.FilterEvents(events, userAssignments, start, end, eventTypes)
	metrics, summary, eventsByType := analytics.Aggregate(variants, attributed, assignmentCounts)
	leadingVariant, confidence := analytics.LeadingVariant(metrics)

	s.log.Info("Results computed",
		zap.Int64("experiment_id", experimentID),
		zap.Int("assignment_count", summary.TotalAssignments),
		zap.Int("event_count", summary.TotalEvents),
		zap.String("confidence", string(confidence)))

	result := &dto.ExperimentResults{
		ExperimentID:     experiment.ID,
		ExperimentName:   experiment.Name,
		ExperimentStatus: string(experiment.Status),
		AnalysisStart:    start,
		AnalysisEnd:      end,
		Summary: dto.ResultsSummary{
			TotalAssignments:      summary.TotalAssignments,
			TotalEvents:           summary.TotalEvents,
			OverallConversionRate: summary.OverallConversionRate,
			LeadingVariant:        leadingVariant,
			ConfidenceLevel:       string(confidence),
		},
		EventsByType: map[string]int{},
		GeneratedAt:  s.now().UTC(),
	}

	if format != FormatSummary {
		result.VariantMetrics = buildVariantMetrics(metrics)
		result.EventsByType = eventsByType
	}

	if req.IncludeTimeSeries && format == FormatFull {
		points := analytics.BuildTimeSeries(assignments, attributed, variants, start, end, granularity)
		result.TimeSeries = buildTimeSeriesData(points)
	}

	return result, nil
}

// Export returns a denormalized dump of an experiment for external analysis
func (s *ResultsService) Export(ctx context.Context, experimentID int64, includeAssignments, includeEvents bool) (*dto.ExportResponse, error) {
	experiment, err := s.experiments.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	variants, err := s.experiments.ListVariants(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	variantNames := make(map[int64]string, len(variants))
	exportVariants := make([]dto.ExportVariant, 0, len(variants))
	for _, variant := range variants {
		variantNames[variant.ID] = variant.Name
		exportVariants = append(exportVariants, dto.ExportVariant{
			ID:                variant.ID,
			Name:              variant.Name,
			TrafficAllocation: variant.TrafficAllocation,
		})
	}

	export := &dto.ExportResponse{
		Experiment: dto.ExportExperiment{
			ID:        experiment.ID,
			Name:      experiment.Name,
			Status:    string(experiment.Status),
			CreatedAt: experiment.CreatedAt,
			StartedAt: experiment.StartedAt,
			EndedAt:   experiment.EndedAt,
		},
		Variants: exportVariants,
	}

	if !includeAssignments && !includeEvents {
		return export, nil
	}

	assignments, _, err := s.assignments.List(ctx, experimentID, repository.AssignmentFilter{})
	if err != nil {
		return nil, err
	}

	if includeAssignments {
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
		export.Assignments = records
	}

	if includeEvents && len(assignments) > 0 {
		userIDs := make([]string, 0, len(assignments))
		for _, assignment := range assignments {
			userIDs = append(userIDs, assignment.UserID)
		}

		events, err := s.events.ListEvents(ctx, repository.EventQuery{
			UserIDs: userIDs,
			Window:  repository.TimeWindow{Start: time.Unix(0, 0).UTC(), End: s.now().UTC()},
		})
		if err != nil {
			return nil, err
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
		export.Events = records
	}

	return export, nil
}

func (s *ResultsService) analysisWindow(experiment *domain.Experiment, req *dto.GetResultsRequest) (time.Time, time.Time) {
	var start time.Time
	switch {
	case req.StartDate > 0:
		start = time.Unix(req.StartDate, 0).UTC()
	case experiment.StartedAt != nil:
		start = *experiment.StartedAt
	default:
		start = experiment.CreatedAt
	}

	end := s.now().UTC()
	if req.EndDate > 0 {
		end = time.Unix(req.EndDate, 0).UTC()
	}

	return start, end
}

func parseEventTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	var types []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			types = append(types, trimmed)
		}
	}
	return types
}

func buildVariantMetrics(metrics []analytics.VariantMetrics) []dto.VariantMetricsData {
	data := make([]dto.VariantMetricsData, 0, len(metrics))
	for _, m := range metrics {
		data = append(data, dto.VariantMetricsData{
			VariantID:             m.VariantID,
			VariantName:           m.VariantName,
			TotalAssignments:      m.TotalAssignments,
			TotalEvents:           m.TotalEvents,
			UniqueUsersWithEvents: m.UniqueUsersWithEvents,
			ConversionRate:        m.ConversionRate,
			EventsPerUser:         m.EventsPerUser,
			EventsByType:          m.EventsByType,
		})
	}
	return data
}

func buildTimeSeriesData(points []analytics.TimeSeriesPoint) []dto.TimeSeriesDataPoint {
	data := make([]dto.TimeSeriesDataPoint, 0, len(points))
	for _, point := range points {
		data = append(data, dto.TimeSeriesDataPoint{
			Timestamp:   point.Timestamp,
			VariantID:   point.VariantID,
			VariantName: point.VariantName,
			Assignments: point.Assignments,
			Events:      point.Events,
			Conversions: point.Conversions,
		})
	}
	return data
}

func decodeProperties(raw string) map[string]interface{} {
	if raw == "" || raw == "{}" {
		return nil
	}
	var properties map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &properties); err != nil {
		return nil
	}
	return properties
}
