package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fundwave/services/events/config"
	"example.com/fundwave/services/events/internal/api/handlers"
	"example.com/fundwave/services/events/internal/api/middleware"
	"example.com/fundwave/services/events/internal/metrics"
	"example.com/fundwave/services/events/internal/pipeline"
	"example.com/fundwave/services/events/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
	pipeline   *pipeline.Service
	ledger     handlers.LedgerReader
	searcher   handlers.CampaignSearcher
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

// NewServer creates a new HTTP server. The searcher may be nil when the
// search engine is unavailable; the search route is then not registered.
func NewServer(
	cfg config.Config,
	pipelineService *pipeline.Service,
	ledger handlers.LedgerReader,
	searcher handlers.CampaignSearcher,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:   cfg,
		pipeline: pipelineService,
		ledger:   ledger,
		searcher: searcher,
		metrics:  metricsCollector,
		tracer:   tracer,
	}

	router := server.setupRouter()
	server.router = router

	httpServer := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}
	server.httpServer = httpServer

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()

	// Recovery plus structured request logging
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// Register handlers
	eventsHandler := handlers.NewEventsHandler(s.pipeline, s.ledger, s.tracer)
	eventsHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer)
	metricsHandler.RegisterRoutes(router)

	if s.searcher != nil {
		searchHandler := handlers.NewSearchHandler(s.searcher, s.tracer)
		searchHandler.RegisterRoutes(router)
	}

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
