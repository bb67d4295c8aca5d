package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
	"github.com/Isha1703/campaign-dashboard-sub001/backend"
	"github.com/Isha1703/campaign-dashboard-sub001/campaign"
	"github.com/Isha1703/campaign-dashboard-sub001/syncer"
)

// newFollowCmd creates the "campaignsync follow" subcommand.
func newFollowCmd(newClient func() *backend.Client, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <session-id>",
		Short: "Follow a session's live output until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return followSession(cmd, newClient(), logger, args[0])
		},
	}
}

// followSession replays the session's log so far, then connects both
// channels and prints merged events until the session settles or the user
// interrupts.
func followSession(cmd *cobra.Command, client *backend.Client, logger *slog.Logger, sessionID string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	// Replay what the pipeline already logged before we attached.
	lines, err := client.Output(ctx, sessionID)
	if err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}

	done := make(chan struct{})
	var settle sync.Once
	o := syncer.New(client, syncer.WithLogger(logger))
	defer o.Disconnect()

	err = o.ConnectToSession(ctx, sessionID, syncer.Callbacks{
		OnAgentOutput: func(line string) {
			fmt.Fprintln(out, line)
		},
		OnProgressUpdate: func(p campaign.Progress) {
			fmt.Fprintf(out, "[%s] %d%% (%s)\n", p.Stage, p.Percentage, p.Status)
			if p.Status == "completed" || p.Status == "error" {
				settle.Do(func() { close(done) })
			}
		},
		OnResultsUpdate: func(results map[campaign.Stage]campaign.StageResult) {
			stages := make([]string, 0, len(results))
			for stage := range results {
				stages = append(stages, string(stage))
			}
			sort.Strings(stages)
			for _, stage := range stages {
				fmt.Fprintf(out, "[%s] result ready\n", stage)
			}
		},
		OnError: func(n apierrors.Normalized) {
			fmt.Fprintf(cmd.ErrOrStderr(), "error (%s): %s\n", n.Code, n.Message)
		},
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-done:
		printGate(cmd, o)
	}
	return nil
}

// printGate reports the approval gate once a session settles.
func printGate(cmd *cobra.Command, o *syncer.Orchestrator) {
	ok, blockers := o.CanProceed()
	out := cmd.OutOrStdout()
	switch {
	case ok:
		fmt.Fprintln(out, "all assets approved, ready to proceed")
	case len(blockers) == 0:
		fmt.Fprintln(out, "no assets to approve yet")
	default:
		fmt.Fprintln(out, "waiting on approvals:")
		for _, b := range blockers {
			fmt.Fprintf(out, "  %s (%s)\n", b.AssetID, b.Status)
		}
	}
}
