package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	serverURL  string
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "counsel",
		Short:   "Counsel - tiered consultation orchestration",
		Long:    `counsel routes development tasks through complexity analysis, tiered specialist consultation and quality validation. Run "counsel serve" to start the server, or use the client subcommands against a running instance.`,
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", getDefaultServer(), "Counsel server URL")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "counsel.yaml", "Path to configuration file")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newSubmitCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newFeedbackCommand())
	rootCmd.AddCommand(newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getDefaultServer() string {
	if server := os.Getenv("COUNSEL_SERVER"); server != "" {
		return server
	}
	return "http://localhost:8080"
}
