package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/dto"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

// MockExperimentRepository is a mock implementation of repository.ExperimentRepository
type MockExperimentRepository struct {
	mock.Mock
}

func (m *MockExperimentRepository) CreateExperiment(ctx context.Context, experiment *domain.Experiment, variants []domain.Variant) (*domain.Experiment, error) {
	args := m.Called(ctx, experiment, variants)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) GetExperiment(ctx context.Context, id int64) (*domain.Experiment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) ListExperiments(ctx context.Context, filter repository.ExperimentFilter) ([]domain.Experiment, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Experiment), args.Int(1), args.Error(2)
}

func (m *MockExperimentRepository) UpdateExperiment(ctx context.Context, id int64, update repository.ExperimentUpdate) (*domain.Experiment, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) DeleteExperiment(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockExperimentRepository) ListVariants(ctx context.Context, experimentID int64) ([]domain.Variant, error) {
	args := m.Called(ctx, experimentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Variant), args.Error(1)
}

// MockAssignmentRepository is a mock implementation of repository.AssignmentRepository
type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) InsertIfAbsent(ctx context.Context, params repository.InsertAssignmentParams) (*domain.Assignment, bool, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Assignment), args.Bool(1), args.Error(2)
}

func (m *MockAssignmentRepository) Find(ctx context.Context, experimentID int64, userID string) (*domain.Assignment, error) {
	args := m.Called(ctx, experimentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Assignment), args.Error(1)
}

func (m *MockAssignmentRepository) List(ctx context.Context, experimentID int64, filter repository.AssignmentFilter) ([]domain.Assignment, int, error) {
	args := m.Called(ctx, experimentID, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Assignment), args.Int(1), args.Error(2)
}

func (m *MockAssignmentRepository) CountByVariant(ctx context.Context, experimentID int64) (map[int64]int, error) {
	args := m.Called(ctx, experimentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]int), args.Error(1)
}

// MockEventRepository is a mock implementation of repository.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []*domain.Event) (int, error) {
	args := m.Called(ctx, events)
	return args.Int(0), args.Error(1)
}

func (m *MockEventRepository) ListEvents(ctx context.Context, query repository.EventQuery) ([]domain.Event, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventRepository) QueryEvents(ctx context.Context, query repository.EventAuditQuery) ([]domain.Event, int, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Event), args.Int(1), args.Error(2)
}

func (m *MockEventRepository) EventTypeCounts(ctx context.Context) ([]repository.EventTypeCount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.EventTypeCount), args.Error(1)
}

func (m *MockEventRepository) InitSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockQueuePublisher is a mock implementation of queue.QueuePublisher
type MockQueuePublisher struct {
	mock.Mock
}

func (m *MockQueuePublisher) PublishEvent(ctx context.Context, event *dto.RecordEventRequest, eventID string) error {
	args := m.Called(ctx, event, eventID)
	return args.Error(0)
}
