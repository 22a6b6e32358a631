package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/fundwave/services/events/internal/models"
	"example.com/fundwave/services/events/internal/pipeline"
	"example.com/fundwave/services/events/internal/tracing"
)

// LedgerReader exposes the per-processor outcomes recorded for an event
type LedgerReader interface {
	ListByEvent(ctx context.Context, eventID string) ([]models.ProcessingStatus, error)
}

// EventsHandler handles event ingestion HTTP requests
type EventsHandler struct {
	pipeline *pipeline.Service
	ledger   LedgerReader
	tracer   tracing.Tracer
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(pipelineService *pipeline.Service, ledger LedgerReader, tracer tracing.Tracer) *EventsHandler {
	return &EventsHandler{
		pipeline: pipelineService,
		ledger:   ledger,
		tracer:   tracer,
	}
}

// IngestRequest accepts either a single event or a batch. Exactly one of
// the two fields should be set; when both are, the batch wins.
type IngestRequest struct {
	Event  *pipeline.Submission  `json:"event"`
	Events []pipeline.Submission `json:"events"`
}

// ProcessorOutcome is the per-processor result in an ingest response
type ProcessorOutcome struct {
	EventID   string `json:"event_id"`
	Processor string `json:"processor"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// IngestResponse summarizes a processed submission
type IngestResponse struct {
	Success   bool               `json:"success"`
	Processed int                `json:"processed"`
	Results   []ProcessorOutcome `json:"results"`
}

// HandleIngestEvents accepts one event or a batch, runs the pipeline to
// completion and reports per-processor outcomes
func (h *EventsHandler) HandleIngestEvents(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-ingest-events")
	defer h.tracer.EndTransaction(txn)

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	submissions := req.Events
	if len(submissions) == 0 && req.Event != nil {
		submissions = []pipeline.Submission{*req.Event}
	}
	if len(submissions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no events submitted"})
		return
	}

	h.tracer.AddAttribute(txn, "submitted", len(submissions))

	batch := h.pipeline.FilterValid(submissions)
	result := h.pipeline.ProcessBatch(c.Request.Context(), batch)

	outcomes := make([]ProcessorOutcome, 0, len(result.Results))
	for _, res := range result.Results {
		outcome := ProcessorOutcome{
			EventID:   res.EventID,
			Processor: res.Processor,
			Success:   res.Success(),
		}
		if res.Err != nil {
			outcome.Error = res.Err.Error()
		}
		outcomes = append(outcomes, outcome)
	}

	c.JSON(http.StatusOK, IngestResponse{
		Success:   true,
		Processed: result.Processed,
		Results:   outcomes,
	})
}

// HandleGetEventStatus returns the recorded processor outcomes for an event
func (h *EventsHandler) HandleGetEventStatus(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-event-status")
	defer h.tracer.EndTransaction(txn)

	eventID := c.Param("id")
	h.tracer.AddAttribute(txn, "event_id", eventID)

	statuses, err := h.ledger.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("Failed to load processing statuses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}
	if len(statuses) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no processing record for event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id": eventID,
		"statuses": statuses,
	})
}

// RegisterRoutes registers the handler's routes
func (h *EventsHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/events", h.HandleIngestEvents)
	router.GET("/events/:id/status", h.HandleGetEventStatus)
}
