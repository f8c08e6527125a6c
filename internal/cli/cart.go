package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/storefront"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/store"
)

// CartView is the cart as printed by the cart commands
type CartView struct {
	Lines     []store.CartLine `json:"lines"`
	Total     float64          `json:"total"`
	ItemCount int              `json:"itemCount"`
	Guest     bool             `json:"guest"`
}

// NewCartCommand creates the cart command group.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and change the cart",
		Long: `Show and change the cart.

Changes are saved to the server when signed in. A guest cart lives only
for the duration of one command.`,
	}
	cmd.AddCommand(newCartShowCommand(rootOpts))
	cmd.AddCommand(newCartAddCommand(rootOpts))
	cmd.AddCommand(newCartSetCommand(rootOpts))
	cmd.AddCommand(newCartRemoveCommand(rootOpts))
	cmd.AddCommand(newCartClearCommand(rootOpts))
	return cmd
}

// runCart reconciles, applies mutate and prints the resulting cart
func runCart(cmd *cobra.Command, rootOpts *RootOptions, mutate func(app *storefront.App) error) error {
	return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
		result := app.Refresh(ctx)
		for _, d := range result.Degradations {
			f.Notice("warning: %s", d.Error())
		}
		if mutate != nil {
			if !result.Authenticated {
				f.Notice("Not signed in: cart changes are not saved")
			}
			if err := mutate(app); err != nil {
				return f.Fail(err)
			}
		}

		snap := app.Store.Snapshot()
		view := CartView{
			Lines:     snap.Cart,
			Total:     snap.Total(),
			ItemCount: snap.ItemCount(),
			Guest:     !result.Authenticated,
		}
		return f.Success(view, func(w io.Writer) error {
			return writeCart(w, view)
		})
	})
}

func writeCart(w io.Writer, view CartView) error {
	if len(view.Lines) == 0 {
		fmt.Fprintln(w, "Cart is empty")
		return nil
	}
	rows := make([][]string, 0, len(view.Lines))
	for _, l := range view.Lines {
		rows = append(rows, []string{
			l.ProductID,
			l.Name,
			strconv.Itoa(l.Quantity),
			formatMoney(l.Price * float64(l.Quantity)),
		})
	}
	if err := writeTable(w, []string{"PRODUCT", "NAME", "QTY", "SUBTOTAL"}, rows); err != nil {
		return err
	}
	_, err := printer.Fprintf(w, "Total: %s (%d items)\n", formatMoney(view.Total), view.ItemCount)
	return err
}

func newCartShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, rootOpts, nil)
		},
	}
}

func newCartAddCommand(rootOpts *RootOptions) *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, rootOpts, func(app *storefront.App) error {
				if qty < 1 {
					return core.NewStoreError("cart.add", "validation", fmt.Errorf("%w: quantity must be at least 1", core.ErrInvalidInput))
				}
				product, ok := app.Store.Product(args[0])
				if !ok {
					return &core.StoreError{Op: "cart.add", Kind: "validation", ID: args[0], Err: fmt.Errorf("%w: unknown product", core.ErrInvalidInput)}
				}
				current := 0
				for _, l := range app.Store.Cart() {
					if l.ProductID == product.ID {
						current = l.Quantity
					}
				}
				app.Store.AddItem(product)
				if qty > 1 {
					app.Store.SetQuantity(product.ID, current+qty)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&qty, "qty", "q", 1, "quantity to add")
	return cmd
}

func newCartSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Set the quantity of a cart line; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, rootOpts, func(app *storefront.App) error {
				qty, err := strconv.Atoi(args[1])
				if err != nil {
					return core.NewStoreError("cart.set", "validation", fmt.Errorf("%w: quantity %q is not a number", core.ErrInvalidInput, args[1]))
				}
				app.Store.SetQuantity(args[0], qty)
				return nil
			})
		},
	}
}

func newCartRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, rootOpts, func(app *storefront.App) error {
				app.Store.RemoveItem(args[0])
				return nil
			})
		},
	}
}

func newCartClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCart(cmd, rootOpts, func(app *storefront.App) error {
				app.Store.Clear()
				return nil
			})
		},
	}
}
