package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/fmueller/voxscribe/internal/health"
	"github.com/fmueller/voxscribe/internal/observe"
	"github.com/fmueller/voxscribe/internal/version"
	"github.com/fmueller/voxscribe/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local web interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			serveFn := app.serveFn
			if serveFn == nil {
				serveFn = app.serve
			}
			return serveFn(cmd.Context(), cmd)
		},
	}

	bindServeFlags(cmd, app)
	return cmd
}

func (a *appState) serve(ctx context.Context, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := web.Options{
		Logger:       a.log(),
		Metrics:      observe.Discard(),
		ShowErrors:   a.cfg.Server.ShowErrors,
		DefaultModel: a.cfg.Engine.Model,
	}

	if a.cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    "voxscribe",
			ServiceVersion: version.Get().Version,
			Registerer:     registry,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				a.log().Warn("failed to flush telemetry", zap.Error(err))
			}
		}()
		opts.Metrics = observe.DefaultMetrics()
		opts.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	p, err := a.openPipeline(ctx, pipelineOptions{Metrics: opts.Metrics})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			a.log().Warn("failed to release model", zap.Error(err))
		}
	}()

	opts.Transcriber = p.svc
	opts.Checkers = p.checkers()
	opts.Runtime = health.Runtime{Engine: a.cfg.Engine.Backend, LoadedModel: p.cache.Loaded}

	server := web.New(opts)
	err = server.ListenAndServe(ctx, a.cfg.Server.Addr, func(addr net.Addr) {
		fmt.Fprintf(cmd.OutOrStdout(), "voxscribe is running at http://%s/\n", addr)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
