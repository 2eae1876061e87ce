package dto

import "time"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"name is required"`
}

// VariantResponse represents a variant within an experiment response
type VariantResponse struct {
	ID                int64                  `json:"id" example:"1"`
	Name              string                 `json:"name" example:"control"`
	Description       string                 `json:"description,omitempty"`
	TrafficAllocation float64                `json:"traffic_allocation" example:"50"`
	Config            map[string]interface{} `json:"config,omitempty" swaggertype:"object,string"`
}

// ExperimentResponse represents an experiment with its variants
type ExperimentResponse struct {
	ID          int64             `json:"id" example:"1"`
	Name        string            `json:"name" example:"checkout_button_color"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status" example:"running"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	EndedAt     *time.Time        `json:"ended_at,omitempty"`
	Variants    []VariantResponse `json:"variants"`
}

// ExperimentListResponse represents a page of experiments
type ExperimentListResponse struct {
	Experiments []ExperimentResponse `json:"experiments"`
	Total       int                  `json:"total" example:"12"`
}

// AssignmentResponse represents a user's variant assignment
type AssignmentResponse struct {
	ExperimentID    int64                  `json:"experiment_id" example:"1"`
	ExperimentName  string                 `json:"experiment_name" example:"checkout_button_color"`
	UserID          string                 `json:"user_id" example:"user_123"`
	VariantID       int64                  `json:"variant_id" example:"2"`
	VariantName     string                 `json:"variant_name" example:"treatment"`
	VariantConfig   map[string]interface{} `json:"variant_config,omitempty" swaggertype:"object,string"`
	AssignedAt      time.Time              `json:"assigned_at"`
	IsNewAssignment bool                   `json:"is_new_assignment" example:"true"`
}

// AssignmentRecord is one row of the assignment audit listing
type AssignmentRecord struct {
	UserID      string                 `json:"user_id" example:"user_123"`
	VariantID   int64                  `json:"variant_id" example:"2"`
	VariantName string                 `json:"variant_name" example:"treatment"`
	AssignedAt  time.Time              `json:"assigned_at"`
	Context     map[string]interface{} `json:"context,omitempty" swaggertype:"object,string"`
}

// ListAssignmentsResponse represents a page of assignments
type ListAssignmentsResponse struct {
	ExperimentID int64              `json:"experiment_id" example:"1"`
	Total        int                `json:"total" example:"1500"`
	Assignments  []AssignmentRecord `json:"assignments"`
}

// RecordEventResponse represents a successful event ingestion response
type RecordEventResponse struct {
	EventID string `json:"event_id" example:"evt_1a2b3c4d5e6f"`
	Status  string `json:"status" example:"accepted"`
}

// RecordBulkEventsResponse represents a successful bulk event ingestion response
type RecordBulkEventsResponse struct {
	Accepted int      `json:"accepted" example:"5"`
	Rejected int      `json:"rejected" example:"0"`
	EventIDs []string `json:"event_ids,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// EventRecord is one row of the event audit listing
type EventRecord struct {
	EventID    string                 `json:"event_id" example:"evt_1a2b3c4d5e6f"`
	UserID     string                 `json:"user_id" example:"user_123"`
	EventType  string                 `json:"event_type" example:"purchase"`
	Timestamp  time.Time              `json:"timestamp"`
	Properties map[string]interface{} `json:"properties,omitempty" swaggertype:"object,string"`
}

// QueryEventsResponse represents a page of events
type QueryEventsResponse struct {
	Total  int           `json:"total" example:"5000"`
	Events []EventRecord `json:"events"`
}

// EventTypeInfo is one distinct event type with its count
type EventTypeInfo struct {
	Type  string `json:"type" example:"purchase"`
	Count uint64 `json:"count" example:"1500"`
}

// EventTypesResponse lists the distinct event types in the system
type EventTypesResponse struct {
	EventTypes []EventTypeInfo `json:"event_types"`
}

// VariantMetricsData represents aggregated metrics for one variant
type VariantMetricsData struct {
	VariantID             int64          `json:"variant_id" example:"1"`
	VariantName           string         `json:"variant_name" example:"control"`
	TotalAssignments      int            `json:"total_assignments" example:"1000"`
	TotalEvents           int            `json:"total_events" example:"150"`
	UniqueUsersWithEvents int            `json:"unique_users_with_events" example:"40"`
	ConversionRate        float64        `json:"conversion_rate" example:"4.0"`
	EventsPerUser         float64        `json:"events_per_user" example:"0.15"`
	EventsByType          map[string]int `json:"events_by_type"`
}

// ResultsSummary represents experiment-wide headline numbers
type ResultsSummary struct {
	TotalAssignments      int     `json:"total_assignments" example:"2000"`
	TotalEvents           int     `json:"total_events" example:"310"`
	OverallConversionRate float64 `json:"overall_conversion_rate" example:"5.0"`
	LeadingVariant        string  `json:"leading_variant,omitempty" example:"treatment"`
	ConfidenceLevel       string  `json:"confidence_level" example:"significant"`
}

// TimeSeriesDataPoint is one (bucket, variant) cell of the chart data
type TimeSeriesDataPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	VariantID   int64     `json:"variant_id" example:"1"`
	VariantName string    `json:"variant_name" example:"control"`
	Assignments int       `json:"assignments" example:"120"`
	Events      int       `json:"events" example:"18"`
	Conversions int       `json:"conversions" example:"9"`
}

// ExperimentResults represents the full results payload
type ExperimentResults struct {
	ExperimentID     int64                 `json:"experiment_id" example:"1"`
	ExperimentName   string                `json:"experiment_name" example:"checkout_button_color"`
	ExperimentStatus string                `json:"experiment_status" example:"running"`
	AnalysisStart    time.Time             `json:"analysis_start"`
	AnalysisEnd      time.Time             `json:"analysis_end"`
	Summary          ResultsSummary        `json:"summary"`
	VariantMetrics   []VariantMetricsData  `json:"variant_metrics"`
	TimeSeries       []TimeSeriesDataPoint `json:"time_series,omitempty"`
	EventsByType     map[string]int        `json:"events_by_type"`
	GeneratedAt      time.Time             `json:"generated_at"`
}

// ExportVariant is one variant row in the export payload
type ExportVariant struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	TrafficAllocation float64 `json:"traffic_allocation"`
}

// ExportExperiment is the experiment header of the export payload
type ExportExperiment struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// ExportResponse is a denormalized dump for external analysis
type ExportResponse struct {
	Experiment  ExportExperiment   `json:"experiment"`
	Variants    []ExportVariant    `json:"variants"`
	Assignments []AssignmentRecord `json:"assignments,omitempty"`
	Events      []EventRecord      `json:"events,omitempty"`
}
