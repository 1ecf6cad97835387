package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Specoptor/trendyol/internal/app"
)

func newDiscoverCmd() *cobra.Command {
	var (
		out   string
		pages int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Enumerate product URLs from the sitemap and save them as a JSON list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			if cmd.Flags().Changed("pages") {
				cfg.Discovery.IndexPageBound = pages
			}
			if cmd.Flags().Changed("cap") {
				cfg.Discovery.ItemCap = limit
			}
			cfg.Harvest.InputFile = ""
			if err := cfg.Validate(); err != nil {
				return err
			}

			n, uri, err := app.New(cfg, rt.logger).Discover(cmd.Context(), out)
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d urls written to %s\n", n, uri)
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "urls.json", "URL list path or gs:// URI")
	cmd.Flags().IntVar(&pages, "pages", 0, "number of sitemap pages to read")
	cmd.Flags().IntVar(&limit, "cap", 0, "stop after this many unique URLs (0 = unbounded)")
	return cmd
}
