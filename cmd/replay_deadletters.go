package cmd

import (
	"context"
	"encoding/json"
	"time"

	"example.com/fundwave/services/events/config"
	"example.com/fundwave/services/events/internal/events"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var replayLimit int

var replayDeadLettersCmd = &cobra.Command{
	Use:   "replay_deadletters",
	Short: "Replay dead-lettered events through the pipeline",
	Long: `Re-run un-replayed dead letter events through the full processing
pipeline. Events that process cleanly are stamped as replayed; events
that fail again are dead-lettered anew and left unstamped.`,
	RunE: runReplayDeadLetters,
}

func init() {
	replayDeadLettersCmd.Flags().IntVarP(&replayLimit, "limit", "l", 100, "Maximum number of dead letter events to replay")
	rootCmd.AddCommand(replayDeadLettersCmd)
}

func runReplayDeadLetters(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	deps, err := buildDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	deadLetters, err := deps.deadLetters.ListUnreplayed(ctx, replayLimit)
	if err != nil {
		return err
	}

	replayed := 0
	for _, deadLetter := range deadLetters {
		var event events.DomainEvent
		if err := json.Unmarshal(deadLetter.Event, &event); err != nil {
			log.Error().
				Err(err).
				Uint("dead_letter_id", deadLetter.ID).
				Str("event_id", deadLetter.EventID).
				Msg("Stored dead letter event is unparseable, skipping")
			continue
		}

		// A nil result set means the event was dead-lettered again
		results := deps.pipeline.ProcessEvent(ctx, &event)
		if results == nil {
			log.Warn().
				Str("event_id", event.ID).
				Msg("Replay failed, event dead-lettered again")
			continue
		}

		if err := deps.deadLetters.MarkReplayed(ctx, deadLetter.ID); err != nil {
			log.Error().
				Err(err).
				Uint("dead_letter_id", deadLetter.ID).
				Msg("Failed to mark dead letter event as replayed")
			continue
		}
		replayed++
	}

	log.Info().
		Int("found", len(deadLetters)).
		Int("replayed", replayed).
		Msg("Dead letter replay finished")
	return nil
}
