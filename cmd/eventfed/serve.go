package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pevans/eventfed/api"
	"github.com/pevans/eventfed/logger"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if listen == "" {
				listen = a.cfg.Server.Listen
			}

			server := api.NewServer(a.store, a.service, a.runner, a.metrics, api.Config{
				BatchLimit:    a.cfg.Batch.Limit,
				MaxDistanceKm: a.cfg.Batch.MaxDistanceKm,
			}, a.log)

			httpServer := &http.Server{
				Addr:              listen,
				Handler:           server.SetupRouter(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("starting api server", logger.String("addr", listen))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			a.log.Info("shutting down api server")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}
