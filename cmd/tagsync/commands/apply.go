package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"tagsync/internal/report"
)

func newApplyCmd(a *app) *cobra.Command {
	var (
		search string
		tags   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "apply --search <tags> --tags <change> [--dry-run]",
		Short: "Add or remove tags on every submission matching a query.",
		Long: `Add or remove tags on every submission matching a query.

The change is a space separated list of tags. Plain tags are appended and
tags prefixed with "-" are removed, ignoring case. Each change is written to
the origin site first and then to the local catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeStore, err := a.service(!dryRun)
			if err != nil {
				return err
			}
			defer closeStore()

			changes, applyErr := svc.Apply(cmd.Context(), search, tags, dryRun)

			out := cmd.OutOrStdout()
			for _, c := range changes {
				fmt.Fprintln(out, report.FormatChange(c))
			}
			if applyErr != nil {
				return fmt.Errorf("after %d updates: %w", len(changes), applyErr)
			}

			if dryRun {
				a.log.Info("dry run finished", "planned", len(changes))
			} else {
				a.log.Info("apply finished", "updated", len(changes))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&search, "search", "", "tag query selecting submissions")
	flags.StringVar(&tags, "tags", "", "tag change, e.g. \"autumn -sketch\"")
	flags.BoolVar(&dryRun, "dry-run", false, "print the changes without writing them")
	_ = cmd.MarkFlagRequired("search")
	_ = cmd.MarkFlagRequired("tags")
	return cmd
}
