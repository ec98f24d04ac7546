package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	dataDirFlag string
	noColor     bool
)

var rootCmd = &cobra.Command{
	Use:           "jobfeed",
	Short:         "Job feed aggregation engine",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default $JOBFEED_DATA_DIR or ~/.jobfeed)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd, syncCmd, validateCmd, sourcesCmd, jobsCmd, secretsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
