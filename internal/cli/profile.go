package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/storefront"
	"github.com/itsneelabh/storefront/api"
)

// NewProfileCommand creates the profile command group.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your profile",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				profile, found, err := app.Profile(ctx)
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(profile, func(w io.Writer) error {
					if !found {
						_, err := fmt.Fprintln(w, "No profile yet. Create one with: storefront profile set")
						return err
					}
					return writeTable(w, []string{"FIELD", "VALUE"}, [][]string{
						{"name", profile.FullName},
						{"email", profile.Email},
						{"phone", profile.PhoneNumber},
						{"gender", profile.Gender},
						{"born", profile.DateOfBirth},
						{"avatar", profile.Avatar},
					})
				})
			})
		},
	})
	cmd.AddCommand(newProfileSetCommand(rootOpts))
	return cmd
}

func newProfileSetCommand(rootOpts *RootOptions) *cobra.Command {
	p := api.Profile{}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Save your profile; name and email are required",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				if err := app.SaveProfile(ctx, p); err != nil {
					return f.Fail(err)
				}
				return f.Success(p, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Profile saved")
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&p.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&p.Email, "email", "", "email")
	cmd.Flags().StringVar(&p.PhoneNumber, "phone", "", "phone number")
	cmd.Flags().StringVar(&p.Gender, "gender", "", "gender")
	cmd.Flags().StringVar(&p.DateOfBirth, "dob", "", "date of birth")
	cmd.Flags().StringVar(&p.Bio, "bio", "", "short bio")
	cmd.Flags().StringVar(&p.Avatar, "avatar", "", "avatar path or URL")
	return cmd
}
