package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Isha1703/campaign-dashboard-sub001/backend"
)

// newStartCmd creates the "campaignsync start" subcommand.
func newStartCmd(newClient func() *backend.Client, logger *slog.Logger) *cobra.Command {
	var (
		product string
		cost    float64
		budget  float64
		follow  bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new campaign pipeline run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newClient()
			resp, err := client.StartCampaign(cmd.Context(), backend.StartCampaignRequest{
				Product:     product,
				ProductCost: cost,
				Budget:      budget,
			})
			if err != nil {
				return err
			}

			id := resp.SessionID()
			fmt.Fprintln(cmd.OutOrStdout(), id)
			if !follow {
				return nil
			}
			return followSession(cmd, client, logger, id)
		},
	}

	cmd.Flags().StringVar(&product, "product", "", "product to build the campaign for")
	cmd.Flags().Float64Var(&cost, "product-cost", 0, "unit cost of the product")
	cmd.Flags().Float64Var(&budget, "budget", 0, "total campaign budget")
	cmd.Flags().BoolVar(&follow, "follow", false, "follow the session after starting it")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}
