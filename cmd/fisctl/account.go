package main

import (
	"fmt"
	"text/tabwriter"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage login accounts",
	}
	cmd.AddCommand(
		newAccountCreateCmd(a),
		newAccountListCmd(a),
		newAccountDeleteCmd(a),
	)
	return cmd
}

func newAccountCreateCmd(a *app) *cobra.Command {
	var (
		username string
		password string
		role     string
		profile  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account, optionally linked to a staff profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, err := a.manager(ctx)
			if err != nil {
				return err
			}

			userType, err := repo.Accounts().UserTypeByName(ctx, role)
			if err != nil {
				return fmt.Errorf("role %q: %w", role, err)
			}

			msg := auth.CreateAccountMessage{
				Username:   username,
				Password:   password,
				UserTypeID: userType.ID,
			}
			if profile != "" {
				id, err := uuid.Parse(profile)
				if err != nil {
					return fmt.Errorf("invalid profile id: %w", err)
				}
				msg.ProfileID = uuid.NullUUID{UUID: id, Valid: true}
			}

			handler := auth.NewCreateAccountHandler(repo, a.linkage(repo)).
				WithLogger(a.logger).
				WithActivitySink(a.activity())

			account, err := handler.Execute(ctx, msg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s) as %s\n", account.Username, account.ID, userType.Role())
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	cmd.Flags().StringVar(&role, "role", auth.RoleNameFaculty, "Account type (administrator, faculty)")
	cmd.Flags().StringVar(&profile, "profile", "", "Staff profile id to link")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")

	return cmd
}

func newAccountListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with their roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, err := a.manager(ctx)
			if err != nil {
				return err
			}

			accounts, err := repo.Accounts().ListWithRoles(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tACTIVE")
			for _, account := range accounts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", account.ID, account.Username, account.Role(), account.IsActive)
			}
			return w.Flush()
		},
	}
}

func newAccountDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <account_id>",
		Short: "Delete an account and release its staff profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}

			repo, err := a.manager(ctx)
			if err != nil {
				return err
			}

			sessions, err := a.revoker(ctx)
			if err != nil {
				return err
			}

			handler := auth.NewDeleteAccountHandler(repo, a.linkage(repo)).
				WithLogger(a.logger).
				WithActivitySink(a.activity()).
				WithSessionRevoker(sessions)

			if err := handler.Execute(ctx, auth.DeleteAccountMessage{AccountID: id}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			return nil
		},
	}
}
