package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fundwave-events",
	Short: "Event processing service for the Fundwave crowdfunding platform",
	Long: `A service that ingests domain events over HTTP and Azure Service Bus,
publishes them to the event stream and fans them out to analytics,
notification, cache invalidation and projection processors.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize()
}
