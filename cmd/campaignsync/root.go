package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
	"github.com/Isha1703/campaign-dashboard-sub001/backend"
	"github.com/Isha1703/campaign-dashboard-sub001/internal/config"
	"github.com/Isha1703/campaign-dashboard-sub001/retry"
)

// newRootCmd creates the root campaignsync command with all subcommands
// attached.
func newRootCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "campaignsync",
		Short:         "Follow and gate AI campaign pipeline sessions",
		Long:          "campaignsync starts campaign pipeline runs, follows their live output,\nand drives the per-asset approval workflow that gates stage progression.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfg.Backend.URL, "backend-url", cfg.Backend.URL,
		"campaign backend base URL")

	// One notice per error class per minute, so a flapping backend shows
	// up once instead of on every retried call.
	notices := retry.NewNotifier(time.Minute, func(attempt int, n apierrors.Normalized) {
		fmt.Fprintf(cmd.ErrOrStderr(), "transient %s failure, retrying (attempt %d): %s\n",
			n.Code, attempt, n.Message)
	})

	newClient := func() *backend.Client {
		return backend.New(
			backend.WithBaseURL(cfg.Backend.URL),
			backend.WithTimeout(time.Duration(cfg.Backend.TimeoutSeconds)*time.Second),
			backend.WithLogger(logger),
			backend.WithRetryOptions(retry.WithOnRetry(notices.OnRetry)),
		)
	}

	cmd.AddCommand(
		newStartCmd(newClient, logger),
		newFollowCmd(newClient, logger),
		newFetchCmd(newClient, &cfg, logger),
		newApproveCmd(newClient),
		newReviseCmd(newClient),
		newHealthCmd(newClient),
	)

	return cmd
}
