// Package main is the entry point for the modelsentry operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var host string

	rootCmd := &cobra.Command{
		Use:           "modelsentry",
		Short:         "Semantic model analyzer CLI",
		Long:          "Command-line interface for the modelsentry analyzer API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// Precedence: flag > env > default.
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("MODELSENTRY_HOST"); v != "" {
					host = v
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:8080", "API server base URL")

	client := &apiClient{host: &host}
	rootCmd.AddCommand(
		newModelsCmd(client),
		newAnalyzeCmd(client),
		newRunsCmd(client),
		newFindingsCmd(client),
		newFixCmd(client),
		newQueryCmd(client),
		newRulesCmd(client),
	)
	return rootCmd
}
