package main

import (
	"context"
	"log/slog"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/eularod/faculty-infortmation-system-eula/activitymap"
	"github.com/eularod/faculty-infortmation-system-eula/repository"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

type app struct {
	configPath string
	driver     string
	dsn        string
	logLevel   string
	logFormat  string

	opts    auth.Options
	logger  *slog.Logger
	db      *bun.DB
	closers []func() error
}

// NewRootCmd creates the root cobra command for fisctl.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "fisctl",
		Short: "Administer faculty information system accounts",
		Long:  "fisctl migrates the database and manages accounts, staff profile links and sessions.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&a.driver, "driver", "", "Database driver (sqlite, postgres), overrides config")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "Database DSN, overrides config")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newMigrateCmd(a),
		newAccountCmd(a),
		newProfileCmd(a),
		newLinkCmd(a),
		newUnlinkCmd(a),
		newCanCmd(a),
		newSessionsCmd(a),
	)

	return root
}

func (a *app) load(cmd *cobra.Command) error {
	opts, err := auth.LoadOptions(a.configPath)
	if err != nil {
		return err
	}

	if a.driver != "" {
		opts.Database.Driver = a.driver
	}
	if a.dsn != "" {
		opts.Database.DSN = a.dsn
	}
	if a.logLevel != "" {
		opts.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		opts.Log.Format = a.logFormat
	}

	a.opts = opts
	a.logger = auth.NewLoggerWithWriter(auth.ParseLogLevel(opts.Log.Level), opts.Log.Format, cmd.ErrOrStderr())
	return nil
}

func (a *app) database(ctx context.Context) (*bun.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := repository.OpenDB(ctx, a.opts.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) manager(ctx context.Context) (auth.RepositoryManager, error) {
	db, err := a.database(ctx)
	if err != nil {
		return nil, err
	}
	return auth.NewRepositoryManager(db), nil
}

func (a *app) linkage(repo auth.RepositoryManager) *auth.IdentityLinkage {
	return auth.NewIdentityLinkage(repo).
		WithLogger(a.logger).
		WithActivitySink(a.activity())
}

// revoker returns a session manager over the configured store. The memory
// backend lives inside the server process, so there is nothing to revoke
// from here and nil is returned.
func (a *app) revoker(ctx context.Context) (auth.SessionRevoker, error) {
	switch a.opts.Sessions.Backend {
	case "", repository.BackendMemory:
		return nil, nil
	}

	var db *bun.DB
	if a.opts.Sessions.Backend == repository.BackendSQL {
		var err error
		if db, err = a.database(ctx); err != nil {
			return nil, err
		}
	}

	store, closeStore, err := repository.NewSessionStore(ctx, a.opts, db)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	return auth.NewSessionManager(store, a.opts).WithLogger(a.logger), nil
}

func (a *app) activity() auth.ActivitySink {
	return activitymap.LogSink(a.logger, activitymap.WithActorFallback("fisctl"))
}

func (a *app) close() error {
	var err error
	for _, closeFn := range a.closers {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.closers = nil

	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
		a.db = nil
	}
	return err
}
