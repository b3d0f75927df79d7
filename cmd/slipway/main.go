package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var configFiles []string

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "slipway",
	Short:   "Object storage gateway with presigned URL access",
	Long: `Slipway is an object storage gateway that fronts an S3-compatible
blob backend with a relational metadata store. Clients create buckets and
request time-limited presigned URLs through an API-key-protected control
surface, then upload and download object bytes directly with those URLs.`,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&configFiles, "config", nil, "config file path (default: ./config.yaml, repeatable)")
	rootCmd.PersistentFlags().String("db-type", "", "database type: sqlite, postgres (env: SLIPWAY_DATABASE_TYPE)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database connection string (env: SLIPWAY_DATABASE_DSN)")
	rootCmd.PersistentFlags().String("backend", "", "blob backend type: minio, memory (env: SLIPWAY_BACKEND_TYPE)")
	rootCmd.PersistentFlags().String("base-url", "", "public base URL for presigned URLs (env: SLIPWAY_SIGNING_BASE_URL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
