package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/internal/mockbackend"
)

type mockServerOptions struct {
	addr      string
	coldStart time.Duration
	coldCount int
	latency   time.Duration
	errorRate float64
	trace     bool
	noSeed    bool
	demoUser  bool
}

// NewMockServerCommand creates the mock-server command.
func NewMockServerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &mockServerOptions{}
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a local fake backend",
		Long: `Run a local fake of the storefront backend with a seeded catalog.

It can imitate a sleeping free-tier host (--cold-start) and flaky
infrastructure (--error-rate). Point other commands at it with
--base-url http://localhost:8080.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMockServer(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().DurationVar(&opts.coldStart, "cold-start", 0, "delay added to the first requests")
	cmd.Flags().IntVar(&opts.coldCount, "cold-requests", 1, "number of requests that see the cold-start delay")
	cmd.Flags().DurationVar(&opts.latency, "latency", 0, "delay added to every request")
	cmd.Flags().Float64Var(&opts.errorRate, "error-rate", 0, "probability of a 503 response (0.0-1.0)")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "emit server spans to the configured telemetry exporter")
	cmd.Flags().BoolVar(&opts.noSeed, "empty", false, "start with an empty catalog")
	cmd.Flags().BoolVar(&opts.demoUser, "demo-user", true, "register demo@example.com / demo1234")
	return cmd
}

func runMockServer(cmd *cobra.Command, rootOpts *RootOptions, opts *mockServerOptions) error {
	f := newFormatter(cmd, rootOpts)
	level := "info"
	if rootOpts.Verbose {
		level = "debug"
	}
	logger := core.NewProductionLogger(core.LoggingConfig{Level: level, Format: "text"}, core.DevelopmentConfig{}, "storefront-mock")
	logger.SetOutput(cmd.ErrOrStderr())

	serverOpts := []mockbackend.Option{mockbackend.WithLogger(logger)}
	if opts.trace {
		serverOpts = append(serverOpts, mockbackend.WithTracing("storefront-mock"))
	}
	if opts.noSeed {
		serverOpts = append(serverOpts, mockbackend.WithoutSeed())
	}
	srv := mockbackend.New(serverOpts...)

	if opts.errorRate > 0 {
		if err := srv.Injector.Configure(mockbackend.InjectRequest{
			Mode:            mockbackend.ModeServerError,
			ServerErrorRate: opts.errorRate,
		}); err != nil {
			return f.Fail(fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
		}
	}
	if opts.latency > 0 {
		srv.Injector.SetLatency(opts.latency)
	}
	if opts.coldStart > 0 {
		srv.Injector.SetColdStart(opts.coldStart, opts.coldCount)
	}
	if opts.demoUser {
		if _, err := srv.RegisterUser("demo", "demo@example.com", "demo1234"); err != nil {
			return f.Fail(err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f.Notice("Mock backend listening on %s", opts.addr)
	if err := srv.ListenAndServe(ctx, opts.addr); err != nil {
		return f.Fail(err)
	}
	return nil
}
