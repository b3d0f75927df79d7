package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcrawfurd/slipway/apikeys"
	slipwayhttp "github.com/mcrawfurd/slipway/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long:  `Start the Slipway HTTP gateway server.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 5980, "HTTP server port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	service, signer, closeDB, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	var keys apikeys.Store
	if len(cfg.Auth.Keys.Inline) > 0 || cfg.Auth.Keys.File != "" {
		keys, err = apikeys.NewStore(cfg.Auth.Keys)
		if err != nil {
			return fmt.Errorf("load api keys: %w", err)
		}
	} else {
		slog.Warn("no api keys configured, management api is public")
	}

	handlerConfig := slipwayhttp.HandlerConfig{
		Signer: signer,
		Keys:   keys,
		CORS:   cfg.CORS,
	}

	handler := slipwayhttp.NewHandler(&handlerConfig, service)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
		cancel()
	}()

	slog.Info("starting server", "addr", addr, "backend", cfg.Backend.Type)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
