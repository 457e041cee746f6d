package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newLinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "link <account_id> <profile_id>",
		Short: "Link a faculty account to a staff profile",
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

			if err := a.linkage(repo).Link(ctx, accountID, profileID); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to %s\n", accountID, profileID)
			return nil
		},
	}
}

func newUnlinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <account_id>",
		Short: "Release the staff profile owned by an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			accountID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}

			repo, err := a.manager(ctx)
			if err != nil {
				return err
			}

			if err := a.linkage(repo).Unlink(ctx, accountID); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s\n", accountID)
			return nil
		},
	}
}
