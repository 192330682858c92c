package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockedby/telememo/internal/collector"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stored channels and background syncs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := a.log.Component("server")

			// reads work without a session; syncs fail with a remote-unavailable error until login
			mgr, err := a.manager(ctx, false)
			if err != nil {
				return err
			}
			status := func() string { return string(a.tg.GetStatus()) }

			if port == 0 {
				port = a.cfg.HTTPPort
			}
			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           collector.NewRouter(collector.NewHandler(mgr, status)),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Int("port", port).Str("telegram", status()).Msg("starting http server")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			case <-ctx.Done():
			}
			log.Info().Msg("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("http server shutdown")
			}
			if err := mgr.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("background jobs did not stop in time")
			}

			log.Info().Msg("shutdown complete")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config, 3100)")
	return cmd
}
