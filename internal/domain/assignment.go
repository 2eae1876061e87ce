package domain

import "time"

// Assignment records a user's variant for an experiment. At most one exists
// per (experiment, user) pair and it is immutable once created.
type Assignment struct {
	ID           int64
	ExperimentID int64
	VariantID    int64
	UserID       string
	AssignedAt   time.Time
	Context      map[string]interface{}
}
