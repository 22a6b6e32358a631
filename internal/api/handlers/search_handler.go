package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/fundwave/services/events/internal/tracing"
)

// CampaignSearcher queries the campaign search index
type CampaignSearcher interface {
	SearchCampaigns(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error)
}

// SearchHandler handles campaign search HTTP requests
type SearchHandler struct {
	searcher CampaignSearcher
	tracer   tracing.Tracer
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searcher CampaignSearcher, tracer tracing.Tracer) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		tracer:   tracer,
	}
}

// HandleSearchCampaigns searches indexed campaign projections by free text,
// optionally filtered by category and status
func (h *SearchHandler) HandleSearchCampaigns(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-campaigns")
	defer h.tracer.EndTransaction(txn)

	text := c.Query("q")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	size := 20
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 1 and 100"})
			return
		}
		size = parsed
	}

	h.tracer.AddAttribute(txn, "query", text)

	must := []map[string]interface{}{
		{"match": map[string]interface{}{"search_text": text}},
	}
	if category := c.Query("category"); category != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"category": category},
		})
	}
	if status := c.Query("status"); status != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"status": status},
		})
	}

	query := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}

	docs, err := h.searcher.SearchCampaigns(c.Request.Context(), query)
	if err != nil {
		log.Error().Err(err).Msg("Campaign search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(docs),
		"results": docs,
	})
}

// RegisterRoutes registers the handler's routes
func (h *SearchHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/campaigns/search", h.HandleSearchCampaigns)
}
