package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/storefront"
	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/checkout"
)

// NewOrdersCommand creates the orders command.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List your orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				orders, err := app.Orders(ctx)
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(orders, func(w io.Writer) error {
					if len(orders) == 0 {
						_, err := fmt.Fprintln(w, "No orders yet")
						return err
					}
					rows := make([][]string, 0, len(orders))
					for _, o := range orders {
						rows = append(rows, []string{
							api.PlacedOrder{ID: o.ID}.ShortID(),
							o.Status,
							o.PaymentMethod,
							strconv.Itoa(len(o.Items)),
							formatMoney(o.TotalAmount),
						})
					}
					return writeTable(w, []string{"ORDER", "STATUS", "PAYMENT", "ITEMS", "TOTAL"}, rows)
				})
			})
		},
	}
}

// NewCheckoutCommand creates the checkout command.
func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	var addressID, method string
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the current cart",
		Long: `Place an order for the current cart with cash on delivery.

Online payment needs an interactive payment sheet and is not available
from the command line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				app.Refresh(ctx)
				req := checkout.Request{AddressID: addressID, PaymentMethod: paymentMethod(method)}
				result, err := app.PlaceOrder(ctx, req)
				if err != nil {
					if app.Checkout.State() == checkout.StateFailed {
						f.Notice("Your cart was kept; run checkout again to retry")
					}
					return f.Fail(err)
				}
				return f.Success(result, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Order #%s placed (%s)\n", result.Order.ShortID(), formatMoney(result.Total))
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&addressID, "address", "", "delivery address id (see address list)")
	cmd.Flags().StringVar(&method, "method", "cod", "payment method (cod)")
	return cmd
}

func paymentMethod(flag string) string {
	switch flag {
	case "cod", api.PaymentCashOnDelivery:
		return api.PaymentCashOnDelivery
	default:
		return flag
	}
}
