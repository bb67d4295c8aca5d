package main

import (
	"fmt"
	"log/slog"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/Isha1703/campaign-dashboard-sub001/backend"
	"github.com/Isha1703/campaign-dashboard-sub001/campaign"
	"github.com/Isha1703/campaign-dashboard-sub001/internal/config"
	"github.com/Isha1703/campaign-dashboard-sub001/media"
)

// newFetchCmd creates the "campaignsync fetch" subcommand. It downloads a
// session's generated assets into the configured media directory.
func newFetchCmd(newClient func() *backend.Client, cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <session-id>",
		Short: "Download a session's generated assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := newClient()

			results, err := client.Results(ctx, args[0])
			if err != nil {
				return err
			}
			var assets []campaign.Asset
			for _, result := range results {
				assets = append(assets, campaign.AssetsFromResult(result)...)
			}
			if len(assets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no generated assets yet")
				return nil
			}

			var fetcher media.Fetcher = media.NewBackendFetcher(client)
			if cfg.Media.DirectS3 {
				fetcher, err = media.NewStoreFetcherFromEnv(ctx)
				if err != nil {
					return err
				}
			}
			cache := media.NewCache(fetcher,
				media.WithStore(osfs.New(".")),
				media.WithMediaDir(cfg.Media.Dir),
				media.WithLogger(logger),
			)
			defer cache.Close()

			out := cmd.OutOrStdout()
			resolved, err := cache.BatchResolve(ctx, assets, media.BatchHooks{
				OnResolved: func(asset campaign.Asset, h *media.Handle) {
					switch {
					case h.LocalPath != "":
						fmt.Fprintf(out, "%s (%s) -> %s\n", asset.ID, h.Category, h.LocalPath)
					case h.URL != "":
						fmt.Fprintf(out, "%s (%s) -> %s\n", asset.ID, h.Category, h.URL)
					default:
						fmt.Fprintf(out, "%s (%s) inline\n", asset.ID, h.Category)
					}
				},
				OnFailed: func(asset campaign.Asset, err error) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s failed: %v\n", asset.ID, err)
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "resolved %d of %d assets\n", len(resolved), len(assets))
			return nil
		},
	}
}
