package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim expired pending uploads",
	Long: `Process objects whose upload grant expired without the upload
completing. For each expired PENDING object the blob backend is consulted:
  1. If the bytes arrived, the object is committed.
  2. If they never arrived, the metadata row is reclaimed.

Run this periodically to keep abandoned uploads from accumulating.`,
	RunE: runSweep,
}

var sweepBatchSize int

func init() {
	sweepCmd.Flags().IntVar(&sweepBatchSize, "batch-size", 0, "rows processed per batch (default from config)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	service, _, closeDB, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	batchSize := sweepBatchSize
	if batchSize <= 0 {
		batchSize = cfg.Service.SweepBatchSize
	}

	slog.Info("starting sweep", "batch_size", batchSize)

	reclaimed, committed, err := service.Sweep(ctx, batchSize)
	if err != nil {
		return err
	}

	slog.Info("sweep complete", "reclaimed", reclaimed, "committed", committed)
	return nil
}
