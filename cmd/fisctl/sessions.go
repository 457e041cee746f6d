package main

import (
	"fmt"
	"time"

	"github.com/eularod/faculty-infortmation-system-eula/repository"
	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain stored sessions",
	}
	cmd.AddCommand(newSessionsPurgeCmd(a))
	return cmd
}

func newSessionsPurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove sessions idle for longer than the session timeout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.opts.Sessions.Backend != repository.BackendSQL {
				return fmt.Errorf("purge needs the sql session backend, configured backend is %q", a.opts.Sessions.Backend)
			}

			db, err := a.database(cmd.Context())
			if err != nil {
				return err
			}

			cutoff := time.Now().Add(-a.opts.GetSessionTimeout())
			n, err := repository.NewSQLSessionStore(db).PurgeIdle(cmd.Context(), cutoff)
			if err != nil {
				return err
			}

			a.logger.Info("sessions purged", "count", n, "timeout", a.opts.GetSessionTimeout().String())
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d idle session(s)\n", n)
			return nil
		},
	}
}
