package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcrawfurd/slipway"
	"github.com/mcrawfurd/slipway/backend"
	"github.com/mcrawfurd/slipway/config"
	"github.com/mcrawfurd/slipway/database"
)

// loadConfig loads and validates configuration, then installs the
// process logger at the configured level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFiles, cmd.Flags())
	if err != nil {
		return nil, err
	}

	setupLogging(cfg.Log.Level)
	return cfg, nil
}

// buildService wires the metadata store, blob backend and signer into a
// gateway service. The signer is returned alongside the service for the
// HTTP handler. The returned cleanup releases the database connection.
func buildService(ctx context.Context, cfg *config.Config) (*slipway.GatewayService, *slipway.Signer, func(), error) {
	repo, closeDB, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("connected to database", "type", cfg.Database.Type)

	blobs, err := buildBackend(ctx, cfg)
	if err != nil {
		closeDB()
		return nil, nil, nil, err
	}

	signer, err := slipway.NewSigner(slipway.SignerConfig{
		Secret:  cfg.Signing.Secret,
		BaseURL: cfg.Signing.BaseURL,
		MaxTTL:  time.Duration(cfg.Signing.MaxTTL) * time.Second,
	})
	if err != nil {
		closeDB()
		return nil, nil, nil, fmt.Errorf("create signer: %w", err)
	}

	service, err := slipway.NewGatewayService(repo, blobs, signer, slipway.ServiceConfig{
		DefaultGrantTTL: time.Duration(cfg.Signing.DefaultTTL) * time.Second,
		BackendTimeout:  time.Duration(cfg.Service.BackendTimeout) * time.Second,
	})
	if err != nil {
		closeDB()
		return nil, nil, nil, fmt.Errorf("create service: %w", err)
	}

	return service, signer, closeDB, nil
}

func buildBackend(ctx context.Context, cfg *config.Config) (slipway.BlobStore, error) {
	switch cfg.Backend.Type {
	case "memory":
		slog.Warn("using in-memory blob backend, data will not survive restarts")
		return backend.NewMemoryStore(), nil
	case "minio":
		store, err := backend.NewMinioStore(cfg.Backend.Minio)
		if err != nil {
			return nil, fmt.Errorf("create blob backend: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure backend bucket: %w", err)
		}
		slog.Info("connected to blob backend", "endpoint", cfg.Backend.Minio.Endpoint, "bucket", cfg.Backend.Minio.Bucket)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
}
