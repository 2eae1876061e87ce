package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/dto"
)

const testTimestamp int64 = 1723475612

// MockExperimentService is a mock implementation of service.ExperimentServicer
type MockExperimentService struct {
	mock.Mock
}

func (m *MockExperimentService) Create(ctx context.Context, req *dto.CreateExperimentRequest) (*dto.ExperimentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ExperimentResponse), args.Error(1)
}

func (m *MockExperimentService) Get(ctx context.Context, id int64) (*dto.ExperimentResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ExperimentResponse), args.Error(1)
}

func (m *MockExperimentService) List(ctx context.Context, req *dto.ListExperimentsRequest) (*dto.ExperimentListResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ExperimentListResponse), args.Error(1)
}

func (m *MockExperimentService) Update(ctx context.Context, id int64, req *dto.UpdateExperimentRequest) (*dto.ExperimentResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ExperimentResponse), args.Error(1)
}

func (m *MockExperimentService) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAssignmentService is a mock implementation of service.AssignmentServicer
type MockAssignmentService struct {
	mock.Mock
}

func (m *MockAssignmentService) GetOrCreate(ctx context.Context, experimentID int64, userID string, contextJSON string) (*dto.AssignmentResponse, error) {
	args := m.Called(ctx, experimentID, userID, contextJSON)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AssignmentResponse), args.Error(1)
}

func (m *MockAssignmentService) ListAssignments(ctx context.Context, experimentID int64, req *dto.ListAssignmentsRequest) (*dto.ListAssignmentsResponse, error) {
	args := m.Called(ctx, experimentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ListAssignmentsResponse), args.Error(1)
}

// MockEventService is a mock implementation of service.EventServicer
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) ProcessEvent(ctx context.Context, event *dto.RecordEventRequest) (string, error) {
	args := m.Called(ctx, event)
	return args.String(0), args.Error(1)
}

func (m *MockEventService) ProcessBulkEvents(ctx context.Context, events []dto.RecordEventRequest) ([]string, []string, error) {
	args := m.Called(ctx, events)
	return args.Get(0).([]string), args.Get(1).([]string), args.Error(2)
}

func (m *MockEventService) QueryEvents(ctx context.Context, req *dto.QueryEventsRequest) (*dto.QueryEventsResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.QueryEventsResponse), args.Error(1)
}

func (m *MockEventService) EventTypes(ctx context.Context) (*dto.EventTypesResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.EventTypesResponse), args.Error(1)
}

// MockResultsService is a mock implementation of service.ResultsServicer
type MockResultsService struct {
	mock.Mock
}

func (m *MockResultsService) GetResults(ctx context.Context, experimentID int64, req *dto.GetResultsRequest) (*dto.ExperimentResults, error) {
	args := m.Called(ctx, experimentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ExperimentResults), args.Error(1)
}

func (m *MockResultsService) Export(ctx context.Context, experimentID int64, includeAssignments, includeEvents bool) (*dto.ExportResponse, error) {
	args := m.Called(ctx, experimentID, includeAssignments, includeEvents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ExportResponse), args.Error(1)
}

type handlerMocks struct {
	experiments *MockExperimentService
	assignments *MockAssignmentService
	events      *MockEventService
	results     *MockResultsService
}

func newTestHandler() (*Handler, *handlerMocks) {
	mocks := &handlerMocks{
		experiments: new(MockExperimentService),
		assignments: new(MockAssignmentService),
		events:      new(MockEventService),
		results:     new(MockResultsService),
	}
	h := NewHandler(mocks.experiments, mocks.assignments, mocks.events, mocks.results, zap.NewNop())
	return h, mocks
}

func TestHandler_HealthCheck(t *testing.T) {
	handler, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

func TestHandler_CreateExperiment_Success(t *testing.T) {
	handler, mocks := newTestHandler()

	createReq := dto.CreateExperimentRequest{
		Name: "checkout_button_color",
		Variants: []dto.VariantInput{
			{Name: "control", TrafficAllocation: 50},
			{Name: "treatment", TrafficAllocation: 50},
		},
	}

	mocks.experiments.On("Create", mock.Anything, &createReq).Return(&dto.ExperimentResponse{
		ID:     1,
		Name:   "checkout_button_color",
		Status: "draft",
	}, nil)

	body, _ := json.Marshal(createReq)
	req := httptest.NewRequest(http.MethodPost, "/experiments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response dto.ExperimentResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), response.ID)
	assert.Equal(t, "draft", response.Status)
	mocks.experiments.AssertExpectations(t)
}

func TestHandler_CreateExperiment_SingleVariantRejected(t *testing.T) {
	handler, mocks := newTestHandler()

	createReq := dto.CreateExperimentRequest{
		Name: "checkout_button_color",
		Variants: []dto.VariantInput{
			{Name: "control", TrafficAllocation: 100},
		},
	}

	body, _ := json.Marshal(createReq)
	req := httptest.NewRequest(http.MethodPost, "/experiments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "validation_error", response.Error)
	mocks.experiments.AssertNotCalled(t, "Create")
}

func TestHandler_CreateExperiment_AllocationError(t *testing.T) {
	handler, mocks := newTestHandler()

	createReq := dto.CreateExperimentRequest{
		Name: "checkout_button_color",
		Variants: []dto.VariantInput{
			{Name: "control", TrafficAllocation: 50},
			{Name: "treatment", TrafficAllocation: 40},
		},
	}

	mocks.experiments.On("Create", mock.Anything, &createReq).
		Return(nil, &domain.ConfigurationError{Reason: "variant traffic allocations must sum to 100, got 90.00"})

	body, _ := json.Marshal(createReq)
	req := httptest.NewRequest(http.MethodPost, "/experiments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "configuration_error", response.Error)
}

func TestHandler_GetExperiment_NotFound(t *testing.T) {
	handler, mocks := newTestHandler()

	mocks.experiments.On("Get", mock.Anything, int64(99)).
		Return(nil, &domain.NotFoundError{Resource: "experiment", ID: 99})

	req := httptest.NewRequest(http.MethodGet, "/experiments/99", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "not_found", response.Error)
}

func TestHandler_GetExperiment_InvalidID(t *testing.T) {
	handler, mocks := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/experiments/abc", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mocks.experiments.AssertNotCalled(t, "Get")
}

func TestHandler_UpdateExperiment_InvalidTransition(t *testing.T) {
	handler, mocks := newTestHandler()

	status := "running"
	updateReq := dto.UpdateExperimentRequest{Status: &status}

	mocks.experiments.On("Update", mock.Anything, int64(1), &updateReq).
		Return(nil, &domain.ValidationError{Reason: "invalid status transition from completed to running"})

	body, _ := json.Marshal(updateReq)
	req := httptest.NewRequest(http.MethodPatch, "/experiments/1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "validation_error", response.Error)
}

func TestHandler_DeleteExperiment_Success(t *testing.T) {
	handler, mocks := newTestHandler()

	mocks.experiments.On("Delete", mock.Anything, int64(1)).Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/experiments/1", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mocks.experiments.AssertExpectations(t)
}

func TestHandler_GetAssignment_Success(t *testing.T) {
	handler, mocks := newTestHandler()

	mocks.assignments.On("GetOrCreate", mock.Anything, int64(1), "user_123", "").
		Return(&dto.AssignmentResponse{
			ExperimentID:    1,
			UserID:          "user_123",
			VariantID:       2,
			VariantName:     "treatment",
			AssignedAt:      time.Unix(testTimestamp, 0).UTC(),
			IsNewAssignment: true,
		}, nil)

	req := httptest.NewRequest(http.MethodGet, "/experiments/1/assignment/user_123", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response dto.AssignmentResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "treatment", response.VariantName)
	assert.True(t, response.IsNewAssignment)
	mocks.assignments.AssertExpectations(t)
}

func TestHandler_GetAssignment_ContextForwarded(t *testing.T) {
	handler, mocks := newTestHandler()

	contextJSON := `{"device":"mobile"}`
	mocks.assignments.On("GetOrCreate", mock.Anything, int64(1), "user_123", contextJSON).
		Return(&dto.AssignmentResponse{ExperimentID: 1, UserID: "user_123", VariantID: 1}, nil)

	req := httptest.NewRequest(http.MethodGet, "/experiments/1/assignment/user_123?context=%7B%22device%22%3A%22mobile%22%7D", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mocks.assignments.AssertExpectations(t)
}

func TestHandler_GetAssignment_NotRunning(t *testing.T) {
	handler, mocks := newTestHandler()

	mocks.assignments.On("GetOrCreate", mock.Anything, int64(1), "user_123", "").
		Return(nil, &domain.NotRunningError{Status: domain.StatusDraft})

	req := httptest.NewRequest(http.MethodGet, "/experiments/1/assignment/user_123", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "experiment_not_running", response.Error)
}

func TestHandler_ListAssignments_Success(t *testing.T) {
	handler, mocks := newTestHandler()

	mocks.assignments.On("ListAssignments", mock.Anything, int64(1), mock.MatchedBy(func(req *dto.ListAssignmentsRequest) bool {
		return req.VariantID != nil && *req.VariantID == 2 && req.Limit == 50
	})).Return(&dto.ListAssignmentsResponse{ExperimentID: 1, Total: 1}, nil)

	req := httptest.NewRequest(http.MethodGet, "/experiments/1/assignments?variant_id=2&limit=50", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mocks.assignments.AssertExpectations(t)
}

func TestHandler_GetResults_Success(t *testing.T) {
	handler, mocks := newTestHandler()

	mocks.results.On("GetResults", mock.Anything, int64(1), mock.MatchedBy(func(req *dto.GetResultsRequest) bool {
		return req.IncludeTimeSeries && req.Granularity == "hour" && req.Format == "full"
	})).Return(&dto.ExperimentResults{
		ExperimentID: 1,
		Summary: dto.ResultsSummary{
			TotalAssignments: 2000,
			TotalEvents:      310,
			LeadingVariant:   "treatment",
			ConfidenceLevel:  "significant",
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/experiments/1/results?include_time_series=true&granularity=hour", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response dto.ExperimentResults
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "treatment", response.Summary.LeadingVariant)
	assert.Equal(t, "significant", response.Summary.ConfidenceLevel)
	mocks.results.AssertExpectations(t)
}

func TestHandler_GetResults_InvalidGranularity(t *testing.T) {
	handler, mocks := newTestHandler()

	mocks.results.On("GetResults", mock.Anything, int64(1), mock.Anything).
		Return(nil, &domain.ValidationError{Reason: "invalid granularity: month (supported: hour, day, week)"})

	req := httptest.NewRequest(http.MethodGet, "/experiments/1/results?granularity=month", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "validation_error", response.Error)
}

func TestHandler_ExportResults_Flags(t *testing.T) {
	handler, mocks := newTestHandler()

	mocks.results.On("Export", mock.Anything, int64(1), true, false).
		Return(&dto.ExportResponse{Experiment: dto.ExportExperiment{ID: 1}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/experiments/1/results/export?include_assignments=true", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mocks.results.AssertExpectations(t)
}

func TestHandler_RecordEvent_Success(t *testing.T) {
	handler, mocks := newTestHandler()

	eventReq := dto.RecordEventRequest{
		UserID:    "user123",
		EventType: "purchase",
		Timestamp: testTimestamp,
	}

	mocks.events.On("ProcessEvent", mock.Anything, &eventReq).Return("event-id-123", nil)

	body, _ := json.Marshal(eventReq)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var response dto.RecordEventResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "event-id-123", response.EventID)
	assert.Equal(t, "accepted", response.Status)
	mocks.events.AssertExpectations(t)
}

func TestHandler_RecordEvent_MissingRequiredFields(t *testing.T) {
	handler, mocks := newTestHandler()

	eventReq := dto.RecordEventRequest{
		UserID: "user123",
		// Missing required fields: EventType, Timestamp
	}

	body, _ := json.Marshal(eventReq)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mocks.events.AssertNotCalled(t, "ProcessEvent")
}

func TestHandler_RecordEvent_FutureTimestamp(t *testing.T) {
	handler, mocks := newTestHandler()

	eventReq := dto.RecordEventRequest{
		UserID:    "user123",
		EventType: "purchase",
		Timestamp: testTimestamp,
	}

	mocks.events.On("ProcessEvent", mock.Anything, &eventReq).
		Return("", errors.New("timestamp cannot be in the future: 2556144000 > 1723475612"))

	body, _ := json.Marshal(eventReq)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response dto.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "validation_error", response.Error)
	assert.Contains(t, response.Message, "timestamp cannot be in the future")
}

func TestHandler_RecordEventsBulk_PartialSuccess(t *testing.T) {
	handler, mocks := newTestHandler()

	bulkReq := dto.RecordEventsBulkRequest{
		Events: []dto.RecordEventRequest{
			{UserID: "user1", EventType: "purchase", Timestamp: testTimestamp},
			{UserID: "user2", EventType: "purchase", Timestamp: testTimestamp},
		},
	}

	mocks.events.On("ProcessBulkEvents", mock.Anything, bulkReq.Events).Return(
		[]string{"event-id-1"},
		[]string{"timestamp cannot be in the future"},
		nil,
	)

	body, _ := json.Marshal(bulkReq)
	req := httptest.NewRequest(http.MethodPost, "/events/bulk", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var response dto.RecordBulkEventsResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, 1, response.Accepted)
	assert.Equal(t, 1, response.Rejected)
	mocks.events.AssertExpectations(t)
}

func TestHandler_RecordEventsBulk_EmptyEvents(t *testing.T) {
	handler, mocks := newTestHandler()

	bulkReq := dto.RecordEventsBulkRequest{Events: []dto.RecordEventRequest{}}

	body, _ := json.Marshal(bulkReq)
	req := httptest.NewRequest(http.MethodPost, "/events/bulk", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mocks.events.AssertNotCalled(t, "ProcessBulkEvents")
}

func TestHandler_QueryEvents_Success(t *testing.T) {
	handler, mocks := newTestHandler()

	mocks.events.On("QueryEvents", mock.Anything, mock.MatchedBy(func(req *dto.QueryEventsRequest) bool {
		return req.UserID == "user123" && req.EventType == "purchase" && req.Limit == 100
	})).Return(&dto.QueryEventsResponse{Total: 1}, nil)

	req := httptest.NewRequest(http.MethodGet, "/events?user_id=user123&event_type=purchase", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mocks.events.AssertExpectations(t)
}

func TestHandler_EventTypes_Success(t *testing.T) {
	handler, mocks := newTestHandler()

	mocks.events.On("EventTypes", mock.Anything).Return(&dto.EventTypesResponse{
		EventTypes: []dto.EventTypeInfo{{Type: "purchase", Count: 1500}},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/events/types", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response dto.EventTypesResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Len(t, response.EventTypes, 1)
	assert.Equal(t, "purchase", response.EventTypes[0].Type)
	mocks.events.AssertExpectations(t)
}
