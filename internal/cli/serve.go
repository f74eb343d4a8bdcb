package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JamesDodds/ipmi-api-gateway/internal/gateway"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	Long:  `Start the HTTP server and serve the power management API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gatewayApp := getApp(cmd)
		defer gatewayApp.Close()

		server := gateway.NewServer(
			gatewayApp.Registry,
			gatewayApp.Resolver,
			gatewayApp.Dispatcher,
			gatewayApp.Journal,
			gatewayApp.Store,
			gatewayApp.Logger,
		)

		httpServer := &http.Server{
			Addr:    gatewayApp.Config.Listen,
			Handler: server.Handler(),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			gatewayApp.Logger.Info("Server listening",
				"addr", gatewayApp.Config.Listen,
				"targets", gatewayApp.Registry.Size())
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		gatewayApp.Logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
