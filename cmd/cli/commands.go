package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"modelsentry/internal/api"
)

func newModelsCmd(client *apiClient) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Manage registered semantic models",
	}

	modelsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var models []api.Model
			if err := client.get(cmd.Context(), "/models", &models); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), models)
		},
	})

	var serverAddress, modelName string
	registerCmd := &cobra.Command{
		Use:   "register <database-name>",
		Short: "Register a model for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"databaseName":  args[0],
				"serverAddress": serverAddress,
				"modelName":     modelName,
			}
			var model api.Model
			if err := client.post(cmd.Context(), "/models", body, &model); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), model)
		},
	}
	registerCmd.Flags().StringVar(&serverAddress, "server", "", "tabular server address")
	registerCmd.Flags().StringVar(&modelName, "name", "", "display name")
	_ = registerCmd.MarkFlagRequired("server")
	modelsCmd.AddCommand(registerCmd)

	modelsCmd.AddCommand(&cobra.Command{
		Use:   "delete <database-name>",
		Short: "Delete a model and all of its analysis history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.delete(cmd.Context(), "/models/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	return modelsCmd
}

func newAnalyzeCmd(client *apiClient) *cobra.Command {
	var wait bool
	var timeout time.Duration

	analyzeCmd := &cobra.Command{
		Use:   "analyze <database-name>",
		Short: "Start a best-practice analysis run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run api.Run
			path := "/models/" + url.PathEscape(args[0]) + "/analyze"
			if err := client.post(cmd.Context(), path, nil, &run); err != nil {
				return err
			}
			if !wait {
				return printJSON(cmd.OutOrStdout(), run)
			}

			deadline := time.Now().Add(timeout)
			for !isTerminalStatus(run.Status) {
				if time.Now().After(deadline) {
					return fmt.Errorf("run %s still %s after %s", run.ID, run.Status, timeout)
				}
				time.Sleep(pollInterval)
				if err := client.get(cmd.Context(), "/runs/"+run.ID, &run); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), run)
		},
	}
	analyzeCmd.Flags().BoolVar(&wait, "wait", false, "poll until the run finishes")
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "maximum time to wait with --wait")
	return analyzeCmd
}

func newRunsCmd(client *apiClient) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect analysis runs",
	}

	runsCmd.AddCommand(&cobra.Command{
		Use:   "list <database-name>",
		Short: "List a model's runs, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var runs []api.Run
			path := "/models/" + url.PathEscape(args[0]) + "/runs"
			if err := client.get(cmd.Context(), path, &runs); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), runs)
		},
	})

	runsCmd.AddCommand(&cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run api.Run
			if err := client.get(cmd.Context(), "/runs/"+args[0], &run); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), run)
		},
	})

	runsCmd.AddCommand(&cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel an in-flight run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run api.Run
			if err := client.post(cmd.Context(), "/runs/"+args[0]+"/cancel", nil, &run); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), run)
		},
	})

	return runsCmd
}

func newFindingsCmd(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "findings <run-id>",
		Short: "List a run's findings with severity summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var page api.FindingsPage
			if err := client.get(cmd.Context(), "/runs/"+args[0]+"/findings", &page); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
}

func newFixCmd(client *apiClient) *cobra.Command {
	fixCmd := &cobra.Command{
		Use:   "fix",
		Short: "Drive AI fix sessions",
	}

	fixCmd.AddCommand(&cobra.Command{
		Use:   "start <finding-id>",
		Short: "Start a fix session for a finding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var session api.FixSession
			if err := client.post(cmd.Context(), "/findings/"+args[0]+"/fix", nil, &session); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), session)
		},
	})

	fixCmd.AddCommand(&cobra.Command{
		Use:   "get <session-id>",
		Short: "Show one fix session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var session api.FixSession
			if err := client.get(cmd.Context(), "/fix-sessions/"+args[0], &session); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), session)
		},
	})

	fixCmd.AddCommand(&cobra.Command{
		Use:   "steps <session-id>",
		Short: "Show a session's step trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var steps []api.FixStep
			if err := client.get(cmd.Context(), "/fix-sessions/"+args[0]+"/steps", &steps); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), steps)
		},
	})

	fixCmd.AddCommand(&cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel an in-flight fix session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var session api.FixSession
			if err := client.post(cmd.Context(), "/fix-sessions/"+args[0]+"/cancel", nil, &session); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), session)
		},
	})

	return fixCmd
}

func newQueryCmd(client *apiClient) *cobra.Command {
	var prompt bool

	queryCmd := &cobra.Command{
		Use:   "query <query-text>",
		Short: "Execute a query against the connected model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"query": args[0]}
			if prompt {
				body = map[string]string{"prompt": args[0]}
			}
			var execution api.QueryExecution
			if err := client.post(cmd.Context(), "/queries", body, &execution); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), execution)
		},
	}
	queryCmd.Flags().BoolVar(&prompt, "prompt", false, "treat the argument as a natural-language prompt")

	queryCmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Show query execution history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var page api.QueryHistoryPage
			if err := client.get(cmd.Context(), "/queries/history", &page); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	})

	return queryCmd
}

func newRulesCmd(client *apiClient) *cobra.Command {
	var category string

	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "List the best-practice rule catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/rules"
			if category != "" {
				path += "?category=" + url.QueryEscape(category)
			}
			var catalogRules []api.Rule
			if err := client.get(cmd.Context(), path, &catalogRules); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), catalogRules)
		},
	}
	rulesCmd.Flags().StringVar(&category, "category", "", "filter by rule category")
	return rulesCmd
}
