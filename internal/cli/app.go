package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/storefront"
	"github.com/itsneelabh/storefront/core"
)

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openApp builds the client from flags and config. Logs go to stderr, at
// debug level with --verbose and warn otherwise.
func openApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*storefront.App, error) {
	cfgOpts := []core.Option{core.WithName("storefront-cli")}
	if opts.ConfigFile != "" {
		cfgOpts = append(cfgOpts, core.WithConfigFile(opts.ConfigFile))
	}
	if opts.BaseURL != "" {
		cfgOpts = append(cfgOpts, core.WithBaseURL(opts.BaseURL))
	}
	if opts.DB != "" {
		cfgOpts = append(cfgOpts, core.WithSQLiteStorage(opts.DB))
	}
	cfg, err := core.NewConfig(cfgOpts...)
	if err != nil {
		return nil, err
	}

	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
	logger.SetOutput(cmd.ErrOrStderr())
	if opts.Verbose {
		logger.SetLevel("debug")
	} else if !cfg.Development.Enabled {
		logger.SetLevel("warn")
	}

	return storefront.New(ctx, storefront.WithConfig(cfg), storefront.WithLogger(logger))
}

// withApp restores the stored session, runs fn and closes the App, which
// also flushes pending cart writes.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, app *storefront.App, f *OutputFormatter) error) error {
	f := newFormatter(cmd, opts)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := openApp(ctx, cmd, opts)
	if err != nil {
		return f.Fail(err)
	}
	defer func() {
		if cerr := app.Close(ctx); cerr != nil {
			f.Notice("warning: %v", cerr)
		}
	}()

	if _, err := app.Sessions.Load(ctx); err != nil {
		return f.Fail(err)
	}
	return fn(ctx, app, f)
}
