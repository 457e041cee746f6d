package main

import (
	"fmt"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newCanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "can <account_id> <profile_id>",
		Short: "Show what an account may do to a staff profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			accountID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}
			profileID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid profile id: %w", err)
			}

			repo, err := a.manager(ctx)
			if err != nil {
				return err
			}

			account, err := repo.Accounts().FindWithRole(ctx, accountID)
			if err != nil {
				return err
			}
			identity := account.Identity()

			resolver := auth.NewAuthorizationResolver(a.linkage(repo)).WithLogger(a.logger)
			caps, err := resolver.Capabilities(ctx, &identity, profileID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): view=%t edit=%t delete=%t\n",
				identity.Username, identity.Role, caps.View, caps.Edit, caps.Delete)
			return nil
		},
	}
}
