package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/storefront"
	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/core"
)

// NewAuthCommand creates the auth command group.
func NewAuthCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in, sign up and sign out",
	}
	cmd.AddCommand(newLoginCommand(rootOpts))
	cmd.AddCommand(newSignupCommand(rootOpts))
	cmd.AddCommand(newLogoutCommand(rootOpts))
	cmd.AddCommand(newWhoAmICommand(rootOpts))
	return cmd
}

func newLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and merge the saved cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				sess, result, err := app.Login(ctx, email, password)
				if err != nil {
					return f.Fail(err)
				}
				for _, d := range result.Degradations {
					f.Notice("warning: %s", d.Error())
				}
				return f.Success(sess.User, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Signed in as %s (%d items in cart)\n", displayName(sess.User), app.Store.Snapshot().ItemCount())
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newSignupCommand(rootOpts *RootOptions) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account; sign in afterwards with auth login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				user, err := app.Signup(ctx, username, email, password)
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(user, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Account created. Sign in with: storefront auth login")
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				if !app.Sessions.Authenticated() {
					return f.Fail(core.NewStoreError("auth.logout", "auth", core.ErrNotAuthenticated))
				}
				if err := app.Logout(ctx); err != nil {
					return f.Fail(err)
				}
				return f.Success(map[string]bool{"signedOut": true}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Signed out")
					return err
				})
			})
		},
	}
}

func newWhoAmICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				sess := app.Sessions.Current()
				if sess == nil {
					return f.Fail(core.NewStoreError("auth.whoami", "auth", core.ErrNotAuthenticated))
				}
				return f.Success(sess.User, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s <%s> id=%s\n", displayName(sess.User), sess.User.Email, sess.User.ID)
					return err
				})
			})
		},
	}
}

func displayName(u api.User) string {
	if u.Username != "" {
		return u.Username
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}
