package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Specoptor/trendyol/internal/app"
)

func newNormalizeCmd() *cobra.Command {
	var opts app.NormalizeOptions
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Re-normalize a raw content API dump into JSON (and CSV) without network access",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := app.New(rt.cfg, rt.logger).Normalize(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("normalize: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d of %d records normalized to %s\n",
				summary.Counts.Completed, summary.Counts.Total, summary.Artifacts["json"])
			return err
		},
	}
	cmd.Flags().StringVar(&opts.DumpPath, "dump", "", "raw dump produced by output.raw_path")
	cmd.Flags().StringVar(&opts.OutPath, "out", "products.json", "JSON artifact path or gs:// URI")
	cmd.Flags().StringVar(&opts.CSVPath, "csv", "", "optional CSV artifact path or gs:// URI")
	_ = cmd.MarkFlagRequired("dump")
	return cmd
}
