package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/jeetkatariya/experimentation-platform/docs"
	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/dto"
	"github.com/jeetkatariya/experimentation-platform/internal/service"
)

type Handler struct {
	experimentService service.ExperimentServicer
	assignmentService service.AssignmentServicer
	eventService      service.EventServicer
	resultsService    service.ResultsServicer
	router            *gin.Engine
	log               *zap.Logger
}

func NewHandler(
	experimentService service.ExperimentServicer,
	assignmentService service.AssignmentServicer,
	eventService service.EventServicer,
	resultsService service.ResultsServicer,
	log *zap.Logger,
) *Handler {
	h := &Handler{
		experimentService: experimentService,
		assignmentService: assignmentService,
		eventService:      eventService,
		resultsService:    resultsService,
		router:            gin.Default(),
		log:               log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)

	h.router.POST("/experiments", h.createExperiment)
	h.router.GET("/experiments", h.listExperiments)
	h.router.GET("/experiments/:id", h.getExperiment)
	h.router.PATCH("/experiments/:id", h.updateExperiment)
	h.router.DELETE("/experiments/:id", h.deleteExperiment)

	h.router.GET("/experiments/:id/assignment/:user_id", h.getAssignment)
	h.router.GET("/experiments/:id/assignments", h.listAssignments)

	h.router.GET("/experiments/:id/results", h.getResults)
	h.router.GET("/experiments/:id/results/export", h.exportResults)

	h.router.POST("/events", h.recordEvent)
	h.router.POST("/events/bulk", h.recordEventsBulk)
	h.router.GET("/events", h.queryEvents)
	h.router.GET("/events/types", h.eventTypes)

	h.router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// writeError maps domain errors onto HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var notFound *domain.NotFoundError
	var notRunning *domain.NotRunningError
	var validation *domain.ValidationError
	var configuration *domain.ConfigurationError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case errors.As(err, &notRunning):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "experiment_not_running",
			Message: err.Error(),
		})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	case errors.As(err, &configuration):
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "configuration_error",
			Message: err.Error(),
		})
	default:
		h.log.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}

func (h *Handler) experimentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: "experiment id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

// healthCheck handles health check requests
// @Summary Health check
// @Description Check if the service is running
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// createExperiment handles POST /experiments
// @Summary Create an experiment
// @Description Create a new draft experiment with at least two variants whose traffic allocations sum to 100
// @Tags experiments
// @Accept json
// @Produce json
// @Param experiment body dto.CreateExperimentRequest true "Experiment definition"
// @Success 201 {object} dto.ExperimentResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /experiments [post]
func (h *Handler) createExperiment(c *gin.Context) {
	var req dto.CreateExperimentRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid create experiment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := h.experimentService.Create(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.log.Info("Experiment created",
		zap.Int64("experiment_id", response.ID),
		zap.String("name", response.Name))

	c.JSON(http.StatusCreated, response)
}

// listExperiments handles GET /experiments
// @Summary List experiments
// @Description List experiments with optional status filter and pagination
// @Tags experiments
// @Produce json
// @Param status query string false "Filter by status" Enums(draft, running, paused, completed)
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} dto.ExperimentListResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /experiments [get]
func (h *Handler) listExperiments(c *gin.Context) {
	var req dto.ListExperimentsRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := h.experimentService.List(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// getExperiment handles GET /experiments/:id
// @Summary Get an experiment
// @Description Get an experiment with its variants
// @Tags experiments
// @Produce json
// @Param id path int true "Experiment ID"
// @Success 200 {object} dto.ExperimentResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /experiments/{id} [get]
func (h *Handler) getExperiment(c *gin.Context) {
	id, ok := h.experimentID(c)
	if !ok {
		return
	}

	response, err := h.experimentService.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// updateExperiment handles PATCH /experiments/:id
// @Summary Update an experiment
// @Description Update experiment fields and transition its status
// @Tags experiments
// @Accept json
// @Produce json
// @Param id path int true "Experiment ID"
// @Param experiment body dto.UpdateExperimentRequest true "Fields to update"
// @Success 200 {object} dto.ExperimentResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /experiments/{id} [patch]
func (h *Handler) updateExperiment(c *gin.Context) {
	id, ok := h.experimentID(c)
	if !ok {
		return
	}

	var req dto.UpdateExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := h.experimentService.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// deleteExperiment handles DELETE /experiments/:id
// @Summary Delete an experiment
// @Description Delete a draft experiment and its variants
// @Tags experiments
// @Produce json
// @Param id path int true "Experiment ID"
// @Success 204 "No Content"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /experiments/{id} [delete]
func (h *Handler) deleteExperiment(c *gin.Context) {
	id, ok := h.experimentID(c)
	if !ok {
		return
	}

	if err := h.experimentService.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	h.log.Info("Experiment deleted", zap.Int64("experiment_id", id))

	c.Status(http.StatusNoContent)
}

// getAssignment handles GET /experiments/:id/assignment/:user_id
// @Summary Get or create a variant assignment
// @Description Return the user's variant for the experiment, assigning one deterministically on first call
// @Tags assignments
// @Produce json
// @Param id path int true "Experiment ID"
// @Param user_id path string true "User ID"
// @Param context query string false "JSON-encoded assignment context"
// @Success 200 {object} dto.AssignmentResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /experiments/{id}/assignment/{user_id} [get]
func (h *Handler) getAssignment(c *gin.Context) {
	id, ok := h.experimentID(c)
	if !ok {
		return
	}

	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: "user_id is required",
		})
		return
	}

	response, err := h.assignmentService.GetOrCreate(c.Request.Context(), id, userID, c.Query("context"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// listAssignments handles GET /experiments/:id/assignments
// @Summary List assignments
// @Description List an experiment's assignments with optional variant filter and pagination
// @Tags assignments
// @Produce json
// @Param id path int true "Experiment ID"
// @Param variant_id query int false "Filter by variant"
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} dto.ListAssignmentsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /experiments/{id}/assignments [get]
func (h *Handler) listAssignments(c *gin.Context) {
	id, ok := h.experimentID(c)
	if !ok {
		return
	}

	var req dto.ListAssignmentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := h.assignmentService.ListAssignments(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// getResults handles GET /experiments/:id/results
// @Summary Get experiment results
// @Description Compute per-variant metrics, the leading variant with a confidence level, and an optional time series
// @Tags results
// @Produce json
// @Param id path int true "Experiment ID"
// @Param start_date query int false "Analysis window start (Unix epoch seconds)"
// @Param end_date query int false "Analysis window end (Unix epoch seconds)"
// @Param event_types query string false "Comma-separated event types to include"
// @Param include_time_series query bool false "Include time-bucketed series"
// @Param granularity query string false "Time series granularity" Enums(hour, day, week) default(day)
// @Param format query string false "Response shape" Enums(full, summary, metrics_only) default(full)
// @Success 200 {object} dto.ExperimentResults
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /experiments/{id}/results [get]
func (h *Handler) getResults(c *gin.Context) {
	id, ok := h.experimentID(c)
	if !ok {
		return
	}

	var req dto.GetResultsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := h.resultsService.GetResults(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// exportResults handles GET /experiments/:id/results/export
// @Summary Export experiment data
// @Description Export a denormalized dump of an experiment for external analysis
// @Tags results
// @Produce json
// @Param id path int true "Experiment ID"
// @Param include_assignments query bool false "Include assignment rows"
// @Param include_events query bool false "Include event rows"
// @Success 200 {object} dto.ExportResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /experiments/{id}/results/export [get]
func (h *Handler) exportResults(c *gin.Context) {
	id, ok := h.experimentID(c)
	if !ok {
		return
	}

	includeAssignments := c.Query("include_assignments") == "true"
	includeEvents := c.Query("include_events") == "true"

	response, err := h.resultsService.Export(c.Request.Context(), id, includeAssignments, includeEvents)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// recordEvent handles POST /events
// @Summary Record a single event
// @Description Record a single user event for later attribution to experiments
// @Tags events
// @Accept json
// @Produce json
// @Param event body dto.RecordEventRequest true "Event data"
// @Success 202 {object} dto.RecordEventResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /events [post]
func (h *Handler) recordEvent(c *gin.Context) {
	var req dto.RecordEventRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid event request",
			zap.Error(err),
			zap.String("event_type", req.EventType))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	eventID, err := h.eventService.ProcessEvent(c.Request.Context(), &req)
	if err != nil {
		h.log.Warn("Failed to process event",
			zap.Error(err),
			zap.String("event_type", req.EventType),
			zap.String("user_id", req.UserID))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	h.log.Info("Event accepted",
		zap.String("event_id", eventID),
		zap.String("event_type", req.EventType))

	c.JSON(http.StatusAccepted, dto.RecordEventResponse{
		EventID: eventID,
		Status:  "accepted",
	})
}

// recordEventsBulk handles POST /events/bulk
// @Summary Record multiple events
// @Description Record up to 1000 user events in one request
// @Tags events
// @Accept json
// @Produce json
// @Param events body dto.RecordEventsBulkRequest true "Bulk events data"
// @Success 202 {object} dto.RecordBulkEventsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /events/bulk [post]
func (h *Handler) recordEventsBulk(c *gin.Context) {
	var bulkRequest dto.RecordEventsBulkRequest

	if err := c.ShouldBindJSON(&bulkRequest); err != nil {
		h.log.Warn("Invalid bulk event request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	eventIDs, errors, err := h.eventService.ProcessBulkEvents(c.Request.Context(), bulkRequest.Events)
	if err != nil {
		h.log.Error("Failed to process bulk events",
			zap.Error(err),
			zap.Int("event_count", len(bulkRequest.Events)))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	accepted := len(eventIDs)
	rejected := len(errors)

	h.log.Info("Bulk events processed",
		zap.Int("accepted", accepted),
		zap.Int("rejected", rejected),
		zap.Int("total", len(bulkRequest.Events)))

	c.JSON(http.StatusAccepted, dto.RecordBulkEventsResponse{
		Accepted: accepted,
		Rejected: rejected,
		EventIDs: eventIDs,
		Errors:   errors,
	})
}

// queryEvents handles GET /events
// @Summary Query recorded events
// @Description List stored events with optional user, type, and time filters
// @Tags events
// @Produce json
// @Param user_id query string false "Filter by user"
// @Param event_type query string false "Filter by event type"
// @Param from query int false "Start timestamp (Unix epoch seconds)"
// @Param to query int false "End timestamp (Unix epoch seconds)"
// @Param limit query int false "Page size" default(100)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} dto.QueryEventsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /events [get]
func (h *Handler) queryEvents(c *gin.Context) {
	var req dto.QueryEventsRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := h.eventService.QueryEvents(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// eventTypes handles GET /events/types
// @Summary List event types
// @Description List the distinct event types recorded in the system with counts
// @Tags events
// @Produce json
// @Success 200 {object} dto.EventTypesResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /events/types [get]
func (h *Handler) eventTypes(c *gin.Context) {
	response, err := h.eventService.EventTypes(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}
