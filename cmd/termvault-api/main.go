package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openalpha/termvault/api"
)

func main() {
	root := &cobra.Command{
		Use:          "termvault-api",
		Short:        "TermVault REST and WebSocket server",
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().String("config", "", "config file path (default ./termvault.yaml)")
	api.RegisterFlags(root.Flags())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := api.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := api.NewLogger(os.Stderr, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	logger.Info("TermVault API server started",
		"host", cfg.Host,
		"port", cfg.Port,
		"websocket", fmt.Sprintf("ws://%s:%d/ws", cfg.Host, cfg.Port),
		"approved_assets", cfg.Chain.Params.ApprovedAssets,
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}
