package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metapool/internal/config"
	"metapool/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only pool API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	addPoolFlags(cmd.Flags())
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().String("api-key", "", "require this X-API-Key header when set")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, logger, err := loadCommand(ctx, cfg.Config)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer b.Close()

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: &server.Handlers{Service: b.svc, Logger: logger},
		Config:   server.ServerConfig{Addr: cfg.Listen, APIKey: cfg.APIKey},
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.String("backend", cfg.Backend),
		zap.String("pool", cfg.Pool),
		zap.Bool("api_key", cfg.APIKey != ""),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("serve shutdown")
	if err := srv.Shutdown(context.Background()); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
