package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/storefront"
	"github.com/itsneelabh/storefront/api"
)

// NewAddressCommand creates the address command group.
func NewAddressCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "address",
		Aliases: []string{"addresses"},
		Short:   "Manage delivery addresses",
	}
	cmd.AddCommand(newAddressListCommand(rootOpts))
	cmd.AddCommand(newAddressAddCommand(rootOpts))
	cmd.AddCommand(newAddressDeleteCommand(rootOpts))
	return cmd
}

func newAddressListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				addresses, err := app.Addresses(ctx)
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(addresses, func(w io.Writer) error {
					if len(addresses) == 0 {
						_, err := fmt.Fprintln(w, "No saved addresses")
						return err
					}
					rows := make([][]string, 0, len(addresses))
					for _, a := range addresses {
						def := ""
						if a.IsDefault {
							def = "*"
						}
						rows = append(rows, []string{a.ID, a.Label + def, fmt.Sprintf("%s, %s, %s %s", a.FullAddress, a.City, a.State, a.Pincode)})
					}
					return writeTable(w, []string{"ID", "LABEL", "ADDRESS"}, rows)
				})
			})
		},
	}
}

func newAddressAddCommand(rootOpts *RootOptions) *cobra.Command {
	in := api.AddressInput{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a delivery address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				addr, err := app.AddAddress(ctx, in)
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(addr, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Saved address %s (%s)\n", addr.ID, addr.Label)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&in.Label, "label", "", "Home, Work or Other (default Home)")
	cmd.Flags().StringVar(&in.FullAddress, "address", "", "street address")
	cmd.Flags().StringVar(&in.City, "city", "", "city")
	cmd.Flags().StringVar(&in.State, "state", "", "state")
	cmd.Flags().StringVar(&in.Pincode, "pincode", "", "postal code")
	cmd.Flags().BoolVar(&in.IsDefault, "default", false, "make this the default address")
	return cmd
}

func newAddressDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <address-id>",
		Short: "Delete a saved address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				if err := app.DeleteAddress(ctx, args[0]); err != nil {
					return f.Fail(err)
				}
				return f.Success(map[string]string{"deleted": args[0]}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Deleted address %s\n", args[0])
					return err
				})
			})
		},
	}
}
