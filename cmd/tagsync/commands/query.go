package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"tagsync/internal/report"
)

func newQueryCmd(a *app) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "query --search <tags>",
		Short: "Print stored submissions matching a tag query.",
		Long: `Print stored submissions matching a tag query.

The query is a space separated list of tags. A submission matches when it
has every plain tag and none of the tags prefixed with "-". Matching ignores
case.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeStore, err := a.service(false)
			if err != nil {
				return err
			}
			defer closeStore()

			subs, err := svc.Query(cmd.Context(), search)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, sub := range subs {
				fmt.Fprintln(out, report.FormatSubmission(sub))
			}
			a.log.Info("query finished", "matches", len(subs))
			return nil
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "tag query, e.g. \"fox -sketch\"")
	_ = cmd.MarkFlagRequired("search")
	return cmd
}
