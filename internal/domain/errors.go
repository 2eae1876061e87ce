package domain

import "fmt"

// NotFoundError indicates a referenced record does not exist.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// NotRunningError indicates an assignment was attempted on an experiment that
// is not in the running state and the user has no pre-existing assignment.
type NotRunningError struct {
	Status ExperimentStatus
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("experiment is not running (status: %s), new assignments cannot be created", e.Status)
}

// ConfigurationError indicates an experiment is not usable as configured,
// for example because it has no variants or its allocations do not sum to 100.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// ValidationError indicates a request failed domain validation, such as an
// invalid status transition.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
