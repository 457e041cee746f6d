package main

import (
	"fmt"
	"text/tabwriter"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage staff profiles",
	}
	cmd.AddCommand(
		newProfileAddCmd(a),
		newProfileUnlinkedCmd(a),
	)
	return cmd
}

func newProfileAddCmd(a *app) *cobra.Command {
	profile := &auth.StaffProfile{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a staff profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if err := profile.Validate(); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile")
			}

			repo, err := a.manager(ctx)
			if err != nil {
				return err
			}

			profile.ID = uuid.New()
			created, err := repo.Profiles().Create(ctx, profile)
			if err != nil {
				return auth.NewStoreUnavailableError(err, "profiles.create")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", created.FullName(), created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&profile.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&profile.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&profile.Department, "department", "", "Department")

	return cmd
}

func newProfileUnlinkedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlinked",
		Short: "List staff profiles no account owns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, err := a.manager(ctx)
			if err != nil {
				return err
			}

			profiles, err := a.linkage(repo).UnlinkedProfiles(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT")
			for _, p := range profiles {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.FullName(), p.Department)
			}
			return w.Flush()
		},
	}
}
