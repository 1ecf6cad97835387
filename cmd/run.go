package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/app"
)

func newRunCmd() *cobra.Command {
	var (
		input   string
		out     string
		backend string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover or load product URLs and harvest them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			flags := cmd.Flags()
			if flags.Changed("input") {
				cfg.Harvest.InputFile = input
			}
			if flags.Changed("out") {
				cfg.Output.Path = out
			}
			if flags.Changed("backend") {
				cfg.Harvest.Backend = backend
			}
			if flags.Changed("workers") {
				cfg.Harvest.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			report, err := app.New(cfg, rt.logger).Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("harvest run: %w", err)
			}
			c := report.Summary.Counts
			rt.logger.Info("harvest finished",
				zap.String("run_id", report.RunID),
				zap.Int("total", c.Total),
				zap.Int("completed", c.Completed),
				zap.Int("unavailable", c.Unavailable),
				zap.Int("failed", c.Failed),
				zap.Int("canceled", c.Canceled),
				zap.Float64("items_per_second", report.Stats.ItemsPerSecond()),
				zap.String("artifact", report.Summary.Artifacts["json"]),
			)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d completed, %d unavailable, %d failed, %d canceled\n",
				report.RunID, c.Completed, c.Unavailable, c.Failed, c.Canceled)
			return err
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "JSON URL list to harvest instead of sitemap discovery")
	cmd.Flags().StringVar(&out, "out", "", "JSON artifact path or gs:// URI")
	cmd.Flags().StringVar(&backend, "backend", "", "extraction backend: api or rendered")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of concurrent workers")
	return cmd
}
