package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conftimeout",
	Short: "Per-topic configurable timeout service",
	Long: `conftimeout watches a stream of messages and arms a countdown per topic.
A message carrying the cancel sentinel stops the countdown of its topic; a
countdown that runs out publishes a timeout event.

Available commands:
  serve     Run the timeout service
  topics    Explore the bus topics the service uses
  version   Print the version

Use "conftimeout [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
