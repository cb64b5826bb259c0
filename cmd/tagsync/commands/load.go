package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"tagsync/internal/report"
)

func newLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Replace the local catalog with every submission from the configured sites.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeStore, err := a.service(true)
			if err != nil {
				return err
			}
			defer closeStore()

			counts, err := svc.Load(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.FormatLoadSummary(counts))
			return nil
		},
	}
}
