package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/dto"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

var (
	resultsNow       = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	resultsStartedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	resultsCreatedAt = time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC)
)

func resultsExperiment() *domain.Experiment {
	startedAt := resultsStartedAt
	return &domain.Experiment{
		ID:        1,
		Name:      "checkout_button_color",
		Status:    domain.StatusRunning,
		CreatedAt: resultsCreatedAt,
		StartedAt: &startedAt,
	}
}

func resultsFixture(t *testing.T) (*ResultsService, *MockExperimentRepository, *MockAssignmentRepository, *MockEventRepository) {
	t.Helper()
	mockExperiments := new(MockExperimentRepository)
	mockAssignments := new(MockAssignmentRepository)
	mockEvents := new(MockEventRepository)

	service := NewResultsService(mockExperiments, mockAssignments, mockEvents, zap.NewNop())
	service.now = func() time.Time { return resultsNow }

	return service, mockExperiments, mockAssignments, mockEvents
}

func stubResultsData(mockExperiments *MockExperimentRepository, mockAssignments *MockAssignmentRepository, mockEvents *MockEventRepository) {
	assignedAt := resultsStartedAt.Add(time.Hour)
	assignments := []domain.Assignment{
		{ID: 1, ExperimentID: 1, VariantID: 1, UserID: "u1", AssignedAt: assignedAt},
		{ID: 2, ExperimentID: 1, VariantID: 1, UserID: "u2", AssignedAt: assignedAt},
		{ID: 3, ExperimentID: 1, VariantID: 2, UserID: "u3", AssignedAt: assignedAt},
		{ID: 4, ExperimentID: 1, VariantID: 2, UserID: "u4", AssignedAt: assignedAt},
	}
	events := []domain.Event{
		{EventID: "e1", UserID: "u1", EventType: "purchase", Timestamp: assignedAt.Add(time.Hour)},
		{EventID: "e2", UserID: "u3", EventType: "purchase", Timestamp: assignedAt.Add(2 * time.Hour)},
		{EventID: "e3", UserID: "u3", EventType: "purchase", Timestamp: assignedAt.Add(3 * time.Hour)},
	}

	mockExperiments.On("GetExperiment", mock.Anything, int64(1)).Return(resultsExperiment(), nil)
	mockExperiments.On("ListVariants", mock.Anything, int64(1)).Return(twoVariants(), nil)
	mockAssignments.On("CountByVariant", mock.Anything, int64(1)).Return(map[int64]int{1: 2, 2: 2}, nil)
	mockAssignments.On("List", mock.Anything, int64(1), repository.AssignmentFilter{}).Return(assignments, 4, nil)
	mockEvents.On("ListEvents", mock.Anything, mock.Anything).Return(events, nil)
}

func TestResultsService_GetResults_FullFormat(t *testing.T) {
	service, mockExperiments, mockAssignments, mockEvents := resultsFixture(t)
	stubResultsData(mockExperiments, mockAssignments, mockEvents)

	results, err := service.GetResults(context.Background(), 1, &dto.GetResultsRequest{})

	assert.NoError(t, err)
	assert.NotNil(t, results)
	assert.Equal(t, int64(1), results.ExperimentID)
	assert.Equal(t, "running", results.ExperimentStatus)
	assert.Equal(t, 4, results.Summary.TotalAssignments)
	assert.Equal(t, 3, results.Summary.TotalEvents)
	assert.Len(t, results.VariantMetrics, 2)

	control := results.VariantMetrics[0]
	assert.Equal(t, int64(1), control.VariantID)
	assert.Equal(t, 2, control.TotalAssignments)
	assert.Equal(t, 1, control.TotalEvents)
	assert.Equal(t, 1, control.UniqueUsersWithEvents)
	assert.Equal(t, 50.0, control.ConversionRate)

	treatment := results.VariantMetrics[1]
	assert.Equal(t, int64(2), treatment.VariantID)
	assert.Equal(t, 2, treatment.TotalEvents)
	assert.Equal(t, 1, treatment.UniqueUsersWithEvents)
	assert.Equal(t, 50.0, treatment.ConversionRate)

	assert.Equal(t, map[string]int{"purchase": 3}, results.EventsByType)
	assert.Equal(t, resultsNow, results.GeneratedAt)
	assert.Empty(t, results.TimeSeries)
}

func TestResultsService_GetResults_DefaultWindowFromStartedAt(t *testing.T) {
	service, mockExperiments, mockAssignments, mockEvents := resultsFixture(t)
	stubResultsData(mockExperiments, mockAssignments, mockEvents)

	results, err := service.GetResults(context.Background(), 1, &dto.GetResultsRequest{})

	assert.NoError(t, err)
	assert.Equal(t, resultsStartedAt, results.AnalysisStart)
	assert.Equal(t, resultsNow, results.AnalysisEnd)

	mockEvents.AssertCalled(t, "ListEvents", mock.Anything, mock.MatchedBy(func(q repository.EventQuery) bool {
		return q.Window.Start.Equal(resultsStartedAt) && q.Window.End.Equal(resultsNow)
	}))
}

func TestResultsService_GetResults_DefaultWindowFromCreatedAt(t *testing.T) {
	service, mockExperiments, mockAssignments, mockEvents := resultsFixture(t)

	// Never started: window falls back to created_at.
	draft := resultsExperiment()
	draft.Status = domain.StatusDraft
	draft.StartedAt = nil

	mockExperiments.On("GetExperiment", mock.Anything, int64(1)).Return(draft, nil)
	mockExperiments.On("ListVariants", mock.Anything, int64(1)).Return(twoVariants(), nil)
	mockAssignments.On("CountByVariant", mock.Anything, int64(1)).Return(map[int64]int{}, nil)
	mockAssignments.On("List", mock.Anything, int64(1), repository.AssignmentFilter{}).Return([]domain.Assignment{}, 0, nil)

	results, err := service.GetResults(context.Background(), 1, &dto.GetResultsRequest{})

	assert.NoError(t, err)
	assert.Equal(t, resultsCreatedAt, results.AnalysisStart)
	assert.Equal(t, 0, results.Summary.TotalAssignments)
	mockEvents.AssertNotCalled(t, "ListEvents")
}

func TestResultsService_GetResults_ExplicitWindow(t *testing.T) {
	service, mockExperiments, mockAssignments, mockEvents := resultsFixture(t)
	stubResultsData(mockExperiments, mockAssignments, mockEvents)

	req := &dto.GetResultsRequest{
		StartDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC).Unix(),
		EndDate:   time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC).Unix(),
	}

	results, err := service.GetResults(context.Background(), 1, req)

	assert.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), results.AnalysisStart)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), results.AnalysisEnd)
}

func TestResultsService_GetResults_SummaryFormatOmitsMetrics(t *testing.T) {
	service, mockExperiments, mockAssignments, mockEvents := resultsFixture(t)
	stubResultsData(mockExperiments, mockAssignments, mockEvents)

	results, err := service.GetResults(context.Background(), 1, &dto.GetResultsRequest{Format: FormatSummary})

	assert.NoError(t, err)
	assert.Empty(t, results.VariantMetrics)
	assert.Empty(t, results.TimeSeries)
	assert.Equal(t, 4, results.Summary.TotalAssignments)
	assert.Equal(t, 3, results.Summary.TotalEvents)
}

func TestResultsService_GetResults_MetricsOnlyFormatOmitsTimeSeries(t *testing.T) {
	service, mockExperiments, mockAssignments, mockEvents := resultsFixture(t)
	stubResultsData(mockExperiments, mockAssignments, mockEvents)

	req := &dto.GetResultsRequest{Format: FormatMetricsOnly, IncludeTimeSeries: true}

	results, err := service.GetResults(context.Background(), 1, req)

	assert.NoError(t, err)
	assert.Len(t, results.VariantMetrics, 2)
	assert.Empty(t, results.TimeSeries, "time series is only produced for the full format")
}

func TestResultsService_GetResults_TimeSeries(t *testing.T) {
	service, mockExperiments, mockAssignments, mockEvents := resultsFixture(t)
	stubResultsData(mockExperiments, mockAssignments, mockEvents)

	req := &dto.GetResultsRequest{IncludeTimeSeries: true, Granularity: "day"}

	results, err := service.GetResults(context.Background(), 1, req)

	assert.NoError(t, err)
	assert.NotEmpty(t, results.TimeSeries)
	for _, point := range results.TimeSeries {
		assert.False(t, point.Timestamp.Before(results.AnalysisStart))
		assert.False(t, point.Timestamp.After(results.AnalysisEnd))
	}
}

func TestResultsService_GetResults_InvalidGranularity(t *testing.T) {
	service, mockExperiments, _, _ := resultsFixture(t)

	mockExperiments.On("GetExperiment", mock.Anything, int64(1)).Return(resultsExperiment(), nil)

	results, err := service.GetResults(context.Background(), 1, &dto.GetResultsRequest{Granularity: "month"})

	assert.Error(t, err)
	assert.Nil(t, results)
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "invalid granularity")
}

func TestResultsService_GetResults_InvalidFormat(t *testing.T) {
	service, mockExperiments, _, _ := resultsFixture(t)

	mockExperiments.On("GetExperiment", mock.Anything, int64(1)).Return(resultsExperiment(), nil)

	results, err := service.GetResults(context.Background(), 1, &dto.GetResultsRequest{Format: "csv"})

	assert.Error(t, err)
	assert.Nil(t, results)
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestResultsService_GetResults_EventTypeFilter(t *testing.T) {
	service, mockExperiments, mockAssignments, mockEvents := resultsFixture(t)
	stubResultsData(mockExperiments, mockAssignments, mockEvents)

	req := &dto.GetResultsRequest{EventTypes: "purchase, signup"}

	_, err := service.GetResults(context.Background(), 1, req)

	assert.NoError(t, err)
	mockEvents.AssertCalled(t, "ListEvents", mock.Anything, mock.MatchedBy(func(q repository.EventQuery) bool {
		return len(q.EventTypes) == 2 && q.EventTypes[0] == "purchase" && q.EventTypes[1] == "signup"
	}))
}

func TestResultsService_GetResults_ExperimentNotFound(t *testing.T) {
	service, mockExperiments, _, _ := resultsFixture(t)

	mockExperiments.On("GetExperiment", mock.Anything, int64(99)).
		Return(nil, &domain.NotFoundError{Resource: "experiment", ID: 99})

	results, err := service.GetResults(context.Background(), 99, &dto.GetResultsRequest{})

	assert.Error(t, err)
	assert.Nil(t, results)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestResultsService_Export_HeaderOnly(t *testing.T) {
	service, mockExperiments, mockAssignments, _ := resultsFixture(t)

	mockExperiments.On("GetExperiment", mock.Anything, int64(1)).Return(resultsExperiment(), nil)
	mockExperiments.On("ListVariants", mock.Anything, int64(1)).Return(twoVariants(), nil)

	export, err := service.Export(context.Background(), 1, false, false)

	assert.NoError(t, err)
	assert.NotNil(t, export)
	assert.Equal(t, int64(1), export.Experiment.ID)
	assert.Len(t, export.Variants, 2)
	assert.Empty(t, export.Assignments)
	assert.Empty(t, export.Events)
	mockAssignments.AssertNotCalled(t, "List")
}

func TestResultsService_Export_WithAssignmentsAndEvents(t *testing.T) {
	service, mockExperiments, mockAssignments, mockEvents := resultsFixture(t)

	assignedAt := resultsStartedAt.Add(time.Hour)
	assignments := []domain.Assignment{
		{ID: 1, ExperimentID: 1, VariantID: 1, UserID: "u1", AssignedAt: assignedAt},
		{ID: 2, ExperimentID: 1, VariantID: 2, UserID: "u2", AssignedAt: assignedAt},
	}
	events := []domain.Event{
		{EventID: "e1", UserID: "u1", EventType: "purchase", Timestamp: assignedAt.Add(time.Hour), Properties: `{"amount":10}`},
	}

	mockExperiments.On("GetExperiment", mock.Anything, int64(1)).Return(resultsExperiment(), nil)
	mockExperiments.On("ListVariants", mock.Anything, int64(1)).Return(twoVariants(), nil)
	mockAssignments.On("List", mock.Anything, int64(1), repository.AssignmentFilter{}).Return(assignments, 2, nil)
	mockEvents.On("ListEvents", mock.Anything, mock.MatchedBy(func(q repository.EventQuery) bool {
		return len(q.UserIDs) == 2
	})).Return(events, nil)

	export, err := service.Export(context.Background(), 1, true, true)

	assert.NoError(t, err)
	assert.NotNil(t, export)
	assert.Len(t, export.Assignments, 2)
	assert.Equal(t, "control", export.Assignments[0].VariantName)
	assert.Len(t, export.Events, 1)
	assert.Equal(t, float64(10), export.Events[0].Properties["amount"])
}
