package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"minutes/internal/deps"
	"minutes/internal/metrics"
	"minutes/internal/preflight"
	"minutes/internal/webui"
	"minutes/internal/workflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bindFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web upload UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind := strings.TrimSpace(bindFlag); bind != "" {
				cfg.Web.Bind = bind
			}
			if missing := deps.Missing(preflight.CheckSystemDeps(cfg)); len(missing) > 0 {
				return missingDepsError(missing)
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			provider, err := metrics.InitProvider(version)
			if err != nil {
				return err
			}
			defer func() { _ = provider.Shutdown(context.Background()) }()

			runnerOpts := []workflow.Option{}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				runnerOpts = append(runnerOpts, workflow.WithHistory(store))
			}

			p, err := buildPipeline(cfg, provider.Metrics, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			runner := workflow.New(cfg, p, logger, runnerOpts...)
			server := webui.New(cfg, runner, logger, webui.WithMetrics(provider.Metrics, provider.Handler()))

			fmt.Fprintf(cmd.OutOrStdout(), "Web UI: http://%s (backend: %s)\n", cfg.Web.Bind, p.Backend())
			if err := server.ListenAndServe(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bindFlag, "bind", "", "Listen address (overrides web.bind)")
	return cmd
}
