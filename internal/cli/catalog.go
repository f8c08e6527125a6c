package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/storefront"
	"github.com/itsneelabh/storefront/api"
)

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse products, categories and banners",
	}
	cmd.AddCommand(newCatalogListCommand(rootOpts))
	cmd.AddCommand(newCatalogCategoriesCommand(rootOpts))
	cmd.AddCommand(newCatalogSubcategoriesCommand(rootOpts))
	cmd.AddCommand(newCatalogBannersCommand(rootOpts))
	cmd.AddCommand(newCatalogHomeCommand(rootOpts))
	return cmd
}

type listOptions struct {
	search      string
	category    string
	subcategory string
}

func newCatalogListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Long: `List products from the full catalog.

--search filters by name, ignoring case. --category and --subcategory ask
the backend for one category or subcategory instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				return runCatalogList(ctx, app, f, opts)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "filter by product name")
	cmd.Flags().StringVar(&opts.category, "category", "", "category id")
	cmd.Flags().StringVar(&opts.subcategory, "subcategory", "", "subcategory id")
	return cmd
}

func runCatalogList(ctx context.Context, app *storefront.App, f *OutputFormatter, opts *listOptions) error {
	var products []api.Product
	var err error
	switch {
	case opts.category != "":
		products, err = app.API.ProductsByCategory(ctx, opts.category)
	case opts.subcategory != "":
		products, err = app.API.ProductsBySubcategory(ctx, opts.subcategory)
	default:
		result := app.Refresh(ctx)
		products = app.Store.Search(opts.search)
		if result.Degraded() && len(products) == 0 {
			err = app.Store.LastError()
		}
	}
	if err != nil {
		return f.Fail(err)
	}
	if products == nil {
		products = []api.Product{}
	}

	return f.Success(products, func(w io.Writer) error {
		if len(products) == 0 {
			fmt.Fprintln(w, "No products found")
			return nil
		}
		return writeProducts(w, products)
	})
}

func writeProducts(w io.Writer, products []api.Product) error {
	rows := make([][]string, 0, len(products))
	for _, p := range products {
		rows = append(rows, []string{p.ID, p.Name, p.Unit, formatMoney(p.Price)})
	}
	return writeTable(w, []string{"ID", "NAME", "UNIT", "PRICE"}, rows)
}

func newCatalogCategoriesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				categories, err := app.API.Categories(ctx)
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(categories, func(w io.Writer) error {
					rows := make([][]string, 0, len(categories))
					for _, c := range categories {
						rows = append(rows, []string{c.ID, c.Name})
					}
					return writeTable(w, []string{"ID", "NAME"}, rows)
				})
			})
		},
	}
}

func newCatalogSubcategoriesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "subcategories <category-id>",
		Short: "List the subcategories of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				subs, err := app.API.Subcategories(ctx, args[0])
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(subs, func(w io.Writer) error {
					rows := make([][]string, 0, len(subs))
					for _, s := range subs {
						rows = append(rows, []string{s.ID, s.Name})
					}
					return writeTable(w, []string{"ID", "NAME"}, rows)
				})
			})
		},
	}
}

func newCatalogBannersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "banners",
		Short: "List promotional banners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				banners, err := app.API.Banners(ctx)
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(banners, func(w io.Writer) error {
					rows := make([][]string, 0, len(banners))
					for _, b := range banners {
						rows = append(rows, []string{b.ID, b.Title, b.ImageURL})
					}
					return writeTable(w, []string{"ID", "TITLE", "IMAGE"}, rows)
				})
			})
		},
	}
}

func newCatalogHomeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Show the home feed: categories and featured products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *storefront.App, f *OutputFormatter) error {
				feed, err := app.Store.HomeFeed(ctx)
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(feed, func(w io.Writer) error {
					fmt.Fprintf(w, "%d categories, products from %s\n", len(feed.Categories), feed.Source)
					return writeProducts(w, feed.Products)
				})
			})
		},
	}
}
