package domain

import "time"

// ExperimentStatus is the lifecycle state of an experiment. New assignments
// may only be created while the experiment is running.
type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
)

// Valid reports whether s is a known lifecycle state.
func (s ExperimentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

var statusTransitions = map[ExperimentStatus][]ExperimentStatus{
	StatusDraft:     {StatusRunning},
	StatusRunning:   {StatusPaused, StatusCompleted},
	StatusPaused:    {StatusRunning, StatusCompleted},
	StatusCompleted: {}, // terminal
}

// CanTransitionTo reports whether the status may move to next.
func (s ExperimentStatus) CanTransitionTo(next ExperimentStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Experiment is an A/B test with a set of variants. The experiment owns its
// variants; assignments and events reference them by id only.
type Experiment struct {
	ID          int64
	Name        string
	Description string
	Status      ExperimentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
}

// Variant is one arm of an experiment. TrafficAllocation is a percentage in
// [0,100]; allocations across an experiment's variants sum to 100.
type Variant struct {
	ID                int64
	ExperimentID      int64
	Name              string
	Description       string
	TrafficAllocation float64
	Config            map[string]interface{}
	CreatedAt         time.Time
}

// AllocationTolerance is the accepted drift when validating that variant
// allocations sum to 100.
const AllocationTolerance = 0.01
