package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Isha1703/campaign-dashboard-sub001/backend"
)

// newHealthCmd creates the "campaignsync health" subcommand.
func newHealthCmd(newClient func() *backend.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe backend connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			out := cmd.OutOrStdout()
			if err := client.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("backend unreachable at %s: %w", client.BaseURL(), err)
			}
			fmt.Fprintf(out, "backend reachable at %s\n", client.BaseURL())
			if err := client.Health(cmd.Context()); err != nil {
				return fmt.Errorf("backend unhealthy: %w", err)
			}
			fmt.Fprintln(out, "backend healthy")
			return nil
		},
	}
}
