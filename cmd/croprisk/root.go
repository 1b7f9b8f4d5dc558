package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "croprisk",
	Short: "Crop risk assessment service",
	Long: `croprisk scores agricultural risk from environmental sensor readings.

Commands:
  serve     Run the assessment API server
  assess    Score a single reading from the command line
  train     Train the learned model from a JSONL sample file
  validate  Check a crop catalog file for errors
  gentrain  Generate synthetic labeled training samples`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is fine; real deployments set the environment directly.
		_ = godotenv.Load()
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
