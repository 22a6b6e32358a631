package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/fundwave/services/events/config"
	"example.com/fundwave/services/events/internal/messaging"
	"example.com/fundwave/services/events/internal/pipeline"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to process event submissions from Azure Service Bus`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	deps, err := buildDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Initialize the ingest queue client
	ingestBus, err := messaging.NewServiceBusClient(cfg.Azure.IngestConnStr, cfg.Azure.IngestQueue, "event-ingest")
	if err != nil {
		return err
	}
	defer func() {
		if err := ingestBus.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing ingest client")
		}
	}()

	// Start the service bus processor
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.IngestQueue).Msg("Starting Azure Service Bus processor")
		return ingestBus.ProcessMessages(ctx, ingestHandler(deps.pipeline))
	})

	// Start the ledger failure sweep. The sweep only reports: failed
	// ledger rows feed metrics and health, they are never re-driven.
	g.Go(func() error {
		log.Info().Msg("Starting processing failure sweep job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(5*time.Minute),
			gocron.NewTask(func() {
				cutoff := time.Now().Add(-1 * time.Hour)
				failed, err := deps.statusLedger.CountFailedSince(ctx, cutoff)
				if err != nil {
					log.Error().Err(err).Msg("Failed to count failed processing outcomes")
					return
				}

				deps.metrics.SetGauge("ledger_failed_last_hour", failed)
				deps.metrics.SetHealth("processing", failed == 0)
				if failed > 0 {
					log.Warn().Int64("failed", failed).Msg("Processor failures recorded in the last hour")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

// ingestHandler adapts the pipeline to the Service Bus message loop. A
// message body is one submission object or an array of them. A body that
// does not parse is logged and completed, not abandoned: redelivery
// cannot fix a malformed payload.
func ingestHandler(pipelineService *pipeline.Service) messaging.MessageHandler {
	return func(ctx context.Context, message *azservicebus.ReceivedMessage) error {
		var submissions []pipeline.Submission

		body := bytes.TrimSpace(message.Body)
		if len(body) > 0 && body[0] == '[' {
			if err := json.Unmarshal(body, &submissions); err != nil {
				log.Warn().Err(err).Str("message_id", message.MessageID).Msg("Dropping unparseable submission batch")
				return nil
			}
		} else {
			var single pipeline.Submission
			if err := json.Unmarshal(body, &single); err != nil {
				log.Warn().Err(err).Str("message_id", message.MessageID).Msg("Dropping unparseable submission")
				return nil
			}
			submissions = []pipeline.Submission{single}
		}

		batch := pipelineService.FilterValid(submissions)
		result := pipelineService.ProcessBatch(ctx, batch)

		log.Info().
			Str("message_id", message.MessageID).
			Int("processed", result.Processed).
			Msg("Processed queued submissions")
		return nil
	}
}
