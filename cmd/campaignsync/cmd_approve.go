package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Isha1703/campaign-dashboard-sub001/backend"
)

// newApproveCmd creates the "campaignsync approve" subcommand.
func newApproveCmd(newClient func() *backend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <session-id> <asset-id>",
		Short: "Approve a generated asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			err := client.SendFeedback(cmd.Context(), backend.FeedbackRequest{
				SessionID: args[0],
				AdID:      args[1],
				Action:    backend.ActionApprove,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %s\n", args[1])
			return nil
		},
	}
}
