package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/counsel/internal/config"
	"github.com/jordanhubbard/counsel/internal/models"
)

func newSubmitCommand() *cobra.Command {
	var (
		local        bool
		domain       string
		technologies []string
		tags         []string
		complexity   float64
		scope        string
		taskFile     string
	)

	cmd := &cobra.Command{
		Use:   "submit [description]",
		Short: "Submit a task for consultation",
		Long:  `Submit a task either to a running server (default) or process it in-process with --local. The full task can be given as a JSON file via --file; flags override file fields.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := &models.Task{}
			if taskFile != "" {
				data, err := os.ReadFile(taskFile)
				if err != nil {
					return fmt.Errorf("failed to read task file: %w", err)
				}
				if err := json.Unmarshal(data, task); err != nil {
					return fmt.Errorf("failed to parse task file: %w", err)
				}
			}
			if len(args) == 1 {
				task.Description = args[0]
			}
			if domain != "" {
				task.Domain = domain
			}
			if len(technologies) > 0 {
				task.Technologies = technologies
			}
			if len(tags) > 0 {
				task.PatternTags = tags
			}
			if complexity > 0 {
				task.Complexity = complexity
			}
			if scope != "" {
				task.Scope = scope
			}
			if task.Description == "" {
				return fmt.Errorf("task description is required")
			}

			if local {
				return submitLocal(task)
			}
			return submitRemote(task)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Process in-process instead of calling a server")
	cmd.Flags().StringVar(&domain, "domain", "", "Task domain (backend, frontend, infrastructure, data, security, integration)")
	cmd.Flags().StringSliceVar(&technologies, "tech", nil, "Technologies involved")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Pattern tags")
	cmd.Flags().Float64Var(&complexity, "complexity", 0, "Explicit complexity override (1-10)")
	cmd.Flags().StringVar(&scope, "scope", "", "Scope hint: single-file, module, system, enterprise")
	cmd.Flags().StringVarP(&taskFile, "file", "f", "", "JSON file with the full task")

	return cmd
}

// submitLocal builds a full engine from configuration and runs the task in
// this process.
func submitLocal(task *models.Task) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	ctx := context.Background()
	engine, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	outcome := engine.ProcessTask(ctx, task)
	return printJSON(outcome)
}

func submitRemote(task *models.Task) error {
	body, err := newClient().post("/api/v1/tasks", task)
	if err != nil {
		return err
	}
	return printRaw(body)
}
