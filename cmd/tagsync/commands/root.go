// Package commands implements the tagsync command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tagsync/internal/catalog"
	"tagsync/internal/config"
	"tagsync/internal/source"
	"tagsync/internal/storage"
)

// ExecuteContext runs the command line and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		os.Exit(1)
	}
}

// app carries the global flags and what they resolve to.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "tagsync",
		Short:         "tagsync mirrors gallery submissions locally and edits their tags in bulk.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", os.Getenv("TAGSYNC_CONFIG"), "path to a YAML config file")
	flags.StringVar(&a.dbPath, "db", "", "path to sqlite database (overrides DATABASE_PATH)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	root.AddCommand(
		newLoadCmd(a),
		newQueryCmd(a),
		newApplyCmd(a),
		newMigrateCmd(a),
	)
	return root
}

func (a *app) setup(logOut io.Writer) error {
	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.dbPath != "" {
		cfg.DatabasePath = a.dbPath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	a.cfg = cfg
	a.log = newLogger(cfg.LogLevel, logOut)
	return nil
}

func (a *app) openStore() (*storage.SQLite, error) {
	if dir := filepath.Dir(a.cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(a.cfg.DatabasePath, a.log)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.DatabasePath, err)
	}
	loc, err := a.cfg.Location()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	store.SetLocation(loc)
	return store, nil
}

// sources builds a source for every site that has credentials.
func (a *app) sources() ([]source.Source, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	cfg := a.cfg

	var out []source.Source
	if cfg.WeasylEnabled() {
		out = append(out, source.NewWeasyl(source.WeasylOptions{
			HTTP:     a.httpOptions(cfg.Weasyl.BaseURL),
			APIKey:   cfg.Weasyl.APIKey,
			User:     cfg.Weasyl.User,
			Workers:  cfg.DetailWorkers,
			Location: loc,
		}, a.log))
	}
	if cfg.FurAffinityEnabled() {
		out = append(out, source.NewFurAffinity(source.FurAffinityOptions{
			HTTP:     a.httpOptions(cfg.FurAffinity.BaseURL),
			CookieA:  cfg.FurAffinity.CookieA,
			CookieB:  cfg.FurAffinity.CookieB,
			User:     cfg.FurAffinity.User,
			Workers:  cfg.DetailWorkers,
			MaxPages: cfg.FurAffinity.MaxPages,
			Location: loc,
		}, a.log))
	}
	return out, nil
}

func (a *app) httpOptions(baseURL string) source.HTTPOptions {
	return source.HTTPOptions{
		BaseURL: baseURL,
		Timeout: a.cfg.HTTPTimeout,
		Retries: a.cfg.HTTPRetries,
	}
}

// service opens the store and wires the configured sources. needSite makes
// a missing site configuration an error. The returned close func releases
// the store.
func (a *app) service(needSite bool) (*catalog.Service, func(), error) {
	if needSite {
		if err := a.cfg.RequireSite(); err != nil {
			return nil, nil, err
		}
	}
	srcs, err := a.sources()
	if err != nil {
		return nil, nil, err
	}
	store, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	return catalog.New(store, srcs, a.log), func() { _ = store.Close() }, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
