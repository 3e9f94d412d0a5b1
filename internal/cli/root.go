// Package cli wires the pipeline into the dronewatch command.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/osintlab/dronewatch/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dronewatch",
	Short: "Validate and consolidate drone incident reports",
	Long: `dronewatch ingests incident reports from many independent, low-trust
text sources, filters out out-of-scope and implausible candidates, merges
reports that describe the same real-world event, and keeps each incident's
evidence score consistent with its current sources.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dronewatch/config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves the config path and loads it.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}
