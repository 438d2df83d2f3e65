// Package cli defines the Cobra commands for the stillpoint CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stillpoint",
	Short: "Guided recording sessions with a remote coaching service",
	Long: `Stillpoint runs timed, guided recording sessions: it streams your
microphone to a coaching service, shows guidance prompts live, and
collects the journal summary generated when the session ends.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "stillpoint.yaml", "Path to the YAML config file")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(journalsCmd)
}
