package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fabfab/ragconsole/api"
)

const shutdownTimeout = 10 * time.Second

func buildServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session over HTTP with a websocket state feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runWithSignals(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			return serve(ctx, a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides RAG_LISTEN_ADDR)")
	return cmd
}

// serve runs the HTTP API until ctx is cancelled or the listener fails, then
// drains open requests and in-flight submissions.
func serve(ctx context.Context, a *app, addr string) error {
	g, gctx := errgroup.WithContext(ctx)

	deps := api.Dependencies{
		Session:   a.session,
		Ingestion: a.ingest,
		Query:     a.query,
		Gatherer:  a.registry,
		Logger:    a.logger.Named("api"),
	}
	if a.archive != nil {
		deps.Archive = a.archive
	}
	if a.graph != nil {
		deps.Graph = a.graph
	}
	srv := api.New(gctx, deps)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", addr), zap.String("backend", a.client.BaseURL()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		srv.Wait()
		return err
	})

	return g.Wait()
}
