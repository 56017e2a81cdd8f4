package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/flowgraph/agentgraph/internal/adapters/http"
	"github.com/flowgraph/agentgraph/internal/app/usecases"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve every registered graph over HTTP",
		Long: `Starts the JSON API: graph invocation, threads, runs with multitask
strategies, /healthz and Prometheus /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			graphs, err := a.build(ctx, "")
			if err != nil {
				return err
			}
			locker, err := a.openLocker(ctx)
			if err != nil {
				return err
			}

			api, err := httpadapter.NewServer(graphs,
				httpadapter.WithLogger(a.logger),
				httpadapter.WithMetrics(a.metrics),
				httpadapter.WithRunOptions(
					usecases.WithLocker(locker),
					usecases.WithLockTTL(cfg.Lock.TTL),
				),
			)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			serverErrors := make(chan error, 1)
			go func() {
				a.logger.Info("server listening", "addr", srv.Addr, "graphs", len(graphs),
					"checkpoint", cfg.Checkpoint.Driver, "lock", cfg.Lock.Driver)
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			// Stop accepting requests before cancelling the runs they started.
			err = srv.Shutdown(shutdownCtx)
			if rerr := api.Shutdown(shutdownCtx); rerr != nil {
				err = errors.Join(err, rerr)
			}
			if err != nil {
				a.logger.Error("graceful shutdown incomplete", "error", err)
				_ = srv.Close()
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from config)")
	return cmd
}
