package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Isha1703/campaign-dashboard-sub001/approval"
	"github.com/Isha1703/campaign-dashboard-sub001/backend"
)

// newReviseCmd creates the "campaignsync revise" subcommand.
func newReviseCmd(newClient func() *backend.Client) *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "revise <session-id> <asset-id>",
		Short: "Request a revision of a generated asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			category := approval.NewKeywordScorer(approval.CategoryContent).Score(feedback)
			resp, err := client.AdvancedRevision(cmd.Context(), backend.RevisionRequest{
				SessionID:    args[0],
				AssetID:      args[1],
				Feedback:     feedback,
				RevisionType: category,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !resp.Success {
				return fmt.Errorf("revision rejected: %s", resp.Error)
			}
			fmt.Fprintf(out, "revision of %s dispatched (%s)\n", args[1], category)
			if resp.Message != "" {
				fmt.Fprintln(out, resp.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&feedback, "feedback", "f", "", "revision feedback text")
	_ = cmd.MarkFlagRequired("feedback")
	return cmd
}
