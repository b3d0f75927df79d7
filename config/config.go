// Package config loads and validates slipway configuration from config
// files, environment variables and CLI flags.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mcrawfurd/slipway/apikeys"
	"github.com/mcrawfurd/slipway/backend"
	"github.com/mcrawfurd/slipway/database"
	slipwayhttp "github.com/mcrawfurd/slipway/http"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for slipway.
type Config struct {
	Server   ServerConfig           `mapstructure:"server"`
	Signing  SigningConfig          `mapstructure:"signing"`
	Service  ServiceConfig          `mapstructure:"service"`
	Database database.Config        `mapstructure:"database"`
	Backend  BackendConfig          `mapstructure:"backend"`
	Auth     AuthConfig             `mapstructure:"auth"`
	CORS     slipwayhttp.CORSConfig `mapstructure:"cors"`
	Log      LogConfig              `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// SigningConfig holds presigned URL configuration. Secret is loaded here
// once at startup and handed to the signer; it is never logged.
type SigningConfig struct {
	Secret     string `mapstructure:"secret" validate:"required"`
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	DefaultTTL int    `mapstructure:"default_ttl" validate:"min=0"` // seconds
	MaxTTL     int    `mapstructure:"max_ttl" validate:"min=0"`     // seconds
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	BackendTimeout int `mapstructure:"backend_timeout" validate:"min=1"` // seconds
	SweepBatchSize int `mapstructure:"sweep_batch_size" validate:"min=1"`
}

// BackendConfig holds blob backend configuration.
type BackendConfig struct {
	Type  string              `mapstructure:"type" validate:"required,oneof=minio memory"`
	Minio backend.MinioConfig `mapstructure:"minio"`
}

// AuthConfig holds API key authentication configuration. An empty key
// set leaves the management API open; presigned URLs work either way.
type AuthConfig struct {
	Keys apikeys.KeysConfig `mapstructure:"keys"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type":  "database.type",
	"db-dsn":   "database.dsn",
	"port":     "server.port",
	"backend":  "backend.type",
	"base-url": "signing.base_url",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5980)

	// Registered empty so the env binding is visible to Unmarshal;
	// validation rejects it if nothing fills it in.
	v.SetDefault("signing.secret", "")
	v.SetDefault("signing.base_url", "http://localhost:5980")
	v.SetDefault("signing.default_ttl", 900)    // 15m
	v.SetDefault("signing.max_ttl", 604800)     // 7d
	v.SetDefault("service.backend_timeout", 30) // seconds
	v.SetDefault("service.sweep_batch_size", 100)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "slipway.db")
	v.SetDefault("database.tables.buckets", "slipway_buckets")
	v.SetDefault("database.tables.objects", "slipway_objects")

	v.SetDefault("backend.type", "minio")
	v.SetDefault("backend.minio.endpoint", "localhost:9000")
	v.SetDefault("backend.minio.region", "us-east-1")
	v.SetDefault("backend.minio.bucket", "slipway")

	v.SetDefault("log.level", "info")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("SLIPWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
