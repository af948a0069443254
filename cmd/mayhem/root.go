package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set by ldflags at build time
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mayhem",
	Short: "Safety-gated chaos experiments for single hosts",
	Long: "Runs fault-injection experiments (CPU stress, memory exhaustion, network\n" +
		"latency) behind a safety policy engine that classifies the environment,\n" +
		"enforces per-environment limits and protects critical services.",
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("mayhem", version)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
