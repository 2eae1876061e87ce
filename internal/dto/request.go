package dto

// VariantInput describes one variant of a new experiment
type VariantInput struct {
	Name              string                 `json:"name" binding:"required" example:"control"`
	Description       string                 `json:"description" example:"Current checkout flow"`
	TrafficAllocation float64                `json:"traffic_allocation" binding:"gte=0,lte=100" example:"50"`
	Config            map[string]interface{} `json:"config" swaggertype:"object,string" example:"button_color:blue"`
}

// CreateExperimentRequest represents a create experiment request
type CreateExperimentRequest struct {
	Name        string         `json:"name" binding:"required" example:"checkout_button_color"`
	Description string         `json:"description" example:"Test checkout button color impact"`
	Variants    []VariantInput `json:"variants" binding:"required,min=2,dive"`
}

// UpdateExperimentRequest represents a partial experiment update
type UpdateExperimentRequest struct {
	Name        *string `json:"name,omitempty" example:"checkout_button_color_v2"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" example:"running"`
}

// ListExperimentsRequest represents an experiment listing query
type ListExperimentsRequest struct {
	Status string `form:"status" example:"running"`
	Limit  int    `form:"limit,default=100" binding:"gte=1,lte=1000"`
	Offset int    `form:"offset" binding:"gte=0"`
}

// ListAssignmentsRequest represents an assignment listing query
type ListAssignmentsRequest struct {
	VariantID *int64 `form:"variant_id"`
	Limit     int    `form:"limit,default=100" binding:"gte=1,lte=1000"`
	Offset    int    `form:"offset" binding:"gte=0"`
}

// RecordEventRequest represents a record event request
type RecordEventRequest struct {
	UserID     string                 `json:"user_id" binding:"required" example:"user_123"`
	EventType  string                 `json:"event_type" binding:"required" example:"purchase"`
	Timestamp  int64                  `json:"timestamp" binding:"required" example:"1723475612"`
	Properties map[string]interface{} `json:"properties" swaggertype:"object,string" example:"amount:129.99"`
}

// RecordEventsBulkRequest represents a record bulk events request
type RecordEventsBulkRequest struct {
	Events []RecordEventRequest `json:"events" binding:"required,min=1,max=1000,dive"`
}

// QueryEventsRequest represents an event audit query
type QueryEventsRequest struct {
	UserID    string `form:"user_id" example:"user_123"`
	EventType string `form:"event_type" example:"purchase"`
	From      int64  `form:"from" example:"1723475612"`
	To        int64  `form:"to" example:"1723562012"`
	Limit     int    `form:"limit,default=100" binding:"gte=1,lte=1000"`
	Offset    int    `form:"offset" binding:"gte=0"`
}

// GetResultsRequest represents a results query. Start and end are Unix epoch
// seconds; start defaults to the experiment's start, end to now.
type GetResultsRequest struct {
	StartDate         int64  `form:"start_date" example:"1723475612"`
	EndDate           int64  `form:"end_date" example:"1723562012"`
	EventTypes        string `form:"event_types" example:"purchase,signup"`
	IncludeTimeSeries bool   `form:"include_time_series"`
	Granularity       string `form:"granularity,default=day" example:"day"`
	Format            string `form:"format,default=full" example:"full"`
}
