package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/counsel/internal/api"
	"github.com/jordanhubbard/counsel/internal/models"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the server's aggregated system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newClient().get("/api/v1/status")
			if err != nil {
				return err
			}
			return printRaw(body)
		},
	}
}

func newFeedbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <task-id> <satisfaction>",
		Short: "Record feedback for a completed task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var satisfaction float64
			if _, err := fmt.Sscanf(args[1], "%f", &satisfaction); err != nil {
				return fmt.Errorf("satisfaction must be a number in [0,1]: %w", err)
			}
			body, err := newClient().post("/api/v1/tasks/"+args[0]+"/feedback", &models.Feedback{
				TaskID:       args[0],
				Satisfaction: satisfaction,
			})
			if err != nil {
				return err
			}
			return printRaw(body)
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an authenticated server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			token, err := api.NewToken(secret, subject, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Shared JWT secret the server is configured with")
	cmd.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
