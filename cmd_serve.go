package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"automagick_post_producer/logger"
	"automagick_post_producer/server"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API",
	Long: `serve installs the recurring generation from the saved settings, then
serves the JSON API (settings, manual runs, run history, schedule) and
Prometheus metrics until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.Start(ctx); err != nil {
		return err
	}
	a.trigger.Start()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	srv, err := server.New(a.service, a.registry, a.log.With(logger.String("component", "http")))
	if err != nil {
		return err
	}

	listen := cfg.ServerAddr
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		listen = addr
	}
	httpServer := &http.Server{
		Addr:              listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting web server", logger.String("addr", listen))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
