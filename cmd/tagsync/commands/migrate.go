package commands

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"tagsync/migrations"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <command>",
		Short: "Manage the catalog database schema.",
		Long: `Manage the catalog database schema.

Commands:
  up          Migrate to the latest version
  up-one      Migrate one version up
  down        Roll back one version
  status      Show migration status
  version     Show current version
  reset       Roll back all migrations`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "up-one", "down", "status", "version", "reset"},
		RunE: func(_ *cobra.Command, args []string) error {
			db, err := sql.Open("sqlite", a.cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			if err := migrations.Setup(); err != nil {
				return err
			}

			name := args[0]
			switch name {
			case "up":
				err = goose.Up(db, ".")
			case "up-one":
				err = goose.UpByOne(db, ".")
			case "down":
				err = goose.Down(db, ".")
			case "status":
				err = goose.Status(db, ".")
			case "version":
				err = goose.Version(db, ".")
			case "reset":
				err = goose.Reset(db, ".")
			default:
				return fmt.Errorf("unknown migrate command: %s", name)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		},
	}
}
