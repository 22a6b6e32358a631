package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/fundwave/services/events/config"
	"example.com/fundwave/services/events/internal/api"
	"example.com/fundwave/services/events/internal/api/handlers"
	"example.com/fundwave/services/events/internal/cache"
	"example.com/fundwave/services/events/internal/messaging"
	"example.com/fundwave/services/events/internal/metrics"
	"example.com/fundwave/services/events/internal/models"
	"example.com/fundwave/services/events/internal/pipeline"
	"example.com/fundwave/services/events/internal/repositories"
	"example.com/fundwave/services/events/internal/search"
	"example.com/fundwave/services/events/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server to handle incoming domain events`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	deps, err := buildDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Initialize and start the server
	server := api.NewServer(cfg, deps.pipeline, deps.statusLedger, deps.searcher, deps.metrics, deps.tracer)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

// dependencies holds the wired pipeline and its supporting clients.
// searcher stays nil (not a typed-nil interface) when Elasticsearch is
// unavailable, so callers can gate on it.
type dependencies struct {
	pipeline     *pipeline.Service
	statusLedger *repositories.StatusLedgerRepository
	deadLetters  *repositories.DeadLetterRepository
	searcher     handlers.CampaignSearcher
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
	publisher    messaging.StreamPublisher
	notifier     messaging.ServiceBusClient
	redisCache   *cache.RedisCache
}

// buildDependencies wires the full event pipeline: databases, cache,
// search, messaging, repositories and the four processors
func buildDependencies(cfg config.Config) (*dependencies, error) {
	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return nil, err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer, falling back to the disabled tracer on failure
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = &tracing.NewRelicTracer{}
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize stream publisher (disabled without a connection string)
	publisher, err := messaging.NewStreamPublisher(cfg.Azure)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize stream publisher")
	}

	// Initialize notifications sender (same Service Bus namespace as ingest)
	notifier, err := messaging.NewServiceBusClient(cfg.Azure.IngestConnStr, cfg.Azure.NotificationsQueue, "notifications")
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize notifications client")
	}

	// Initialize repositories
	campaignRepo := repositories.NewCampaignRepository(db, readOnlyDB, redisCache)
	analyticsRepo := repositories.NewAnalyticsRepository(db, readOnlyDB)
	donorHistoryRepo := repositories.NewDonorHistoryRepository(db, readOnlyDB)
	roleRepo := repositories.NewRoleRepository(db, readOnlyDB)
	searchProjectionRepo := repositories.NewSearchProjectionRepository(db, readOnlyDB)
	statusLedgerRepo := repositories.NewStatusLedgerRepository(db, readOnlyDB)
	deadLetterRepo := repositories.NewDeadLetterRepository(db, readOnlyDB)

	// A nil *ElasticClient must not reach the processor or the search
	// handler as a non-nil interface value
	var indexer pipeline.SearchIndexer
	var searcher handlers.CampaignSearcher
	if elasticClient != nil {
		indexer = elasticClient
		searcher = elasticClient
	}

	// Initialize the four fan-out processors
	processors := []pipeline.Processor{
		pipeline.NewAnalyticsProcessor(analyticsRepo, donorHistoryRepo),
		pipeline.NewNotificationsProcessor(notifier, campaignRepo),
		pipeline.NewCacheInvalidationProcessor(redisCache),
		pipeline.NewProjectionsProcessor(searchProjectionRepo, indexer, roleRepo),
	}

	pipelineService := pipeline.NewService(processors, statusLedgerRepo, deadLetterRepo, publisher, metricsCollector, tracer)

	return &dependencies{
		pipeline:     pipelineService,
		statusLedger: statusLedgerRepo,
		deadLetters:  deadLetterRepo,
		searcher:     searcher,
		metrics:      metricsCollector,
		tracer:       tracer,
		publisher:    publisher,
		notifier:     notifier,
		redisCache:   redisCache,
	}, nil
}

// Close releases the messaging and cache clients
func (d *dependencies) Close() {
	if err := d.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing stream publisher")
	}
	if err := d.notifier.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing notifications client")
	}
	if d.redisCache != nil {
		if err := d.redisCache.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing Redis cache")
		}
	}
	if d.tracer != nil {
		d.tracer.Close()
	}
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	// Initialize write database
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	// Initialize read-only database
	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	// Configure connection pools
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}
	readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns * 2)
	readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns * 2)
	readSqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	return db, readOnlyDB, nil
}
