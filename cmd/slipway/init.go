package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Generate a config file interactively",
	Long: `Generate a slipway configuration file interactively.

You will be prompted for:
  - Signing secret (leave empty to generate one)
  - Public base URL for presigned URLs
  - Database type and connection string
  - Blob backend settings
  - HTTP server port

The result is written as YAML (default: ./config.yaml).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, args []string) error {
	path := "config.yaml"
	if len(args) > 0 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("File '%s' already exists. Overwrite it", path),
			IsConfirm: true,
		}
		if _, promptErr := prompt.Run(); promptErr != nil {
			fmt.Println("Cancelled.")
			return nil //nolint:nilerr // User cancelled, not an error
		}
	}

	secretPrompt := promptui.Prompt{
		Label: "Signing secret (empty to generate)",
		Mask:  '*',
	}
	secret, err := secretPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}
	if secret == "" {
		secret, err = generateSecret()
		if err != nil {
			return err
		}
		fmt.Println("Generated a random signing secret.")
	}

	baseURLPrompt := promptui.Prompt{
		Label:   "Public base URL",
		Default: "http://localhost:5980",
		Validate: func(input string) error {
			parsedURL, parseErr := url.Parse(input)
			if parseErr != nil {
				return fmt.Errorf("invalid URL: %w", parseErr)
			}
			if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
				return errors.New("URL must start with http:// or https://")
			}
			return nil
		},
	}
	baseURL, err := baseURLPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	dbSelect := promptui.Select{
		Label: "Database type",
		Items: []string{"sqlite", "postgres"},
	}
	_, dbType, err := dbSelect.Run()
	if err != nil {
		return handlePromptError(err)
	}

	dsnDefault := "slipway.db"
	if dbType == "postgres" {
		dsnDefault = "postgres://localhost:5432/slipway"
	}
	dsnPrompt := promptui.Prompt{
		Label:   "Database DSN",
		Default: dsnDefault,
	}
	dsn, err := dsnPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	backendSelect := promptui.Select{
		Label: "Blob backend",
		Items: []string{"minio", "memory"},
	}
	_, backendType, err := backendSelect.Run()
	if err != nil {
		return handlePromptError(err)
	}

	backendCfg := map[string]any{"type": backendType}
	if backendType == "minio" {
		minioCfg, minioErr := promptMinio()
		if minioErr != nil {
			return minioErr
		}
		backendCfg["minio"] = minioCfg
	}

	portPrompt := promptui.Prompt{
		Label:   "HTTP server port",
		Default: "5980",
		Validate: func(input string) error {
			p, convErr := strconv.Atoi(input)
			if convErr != nil || p < 1 || p > 65535 {
				return errors.New("port must be between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}
	port, _ := strconv.Atoi(portStr)

	cfg := map[string]any{
		"server": map[string]any{"port": port},
		"signing": map[string]any{
			"secret":   secret,
			"base_url": baseURL,
		},
		"database": map[string]any{
			"type": dbType,
			"dsn":  dsn,
		},
		"backend": backendCfg,
		"log":     map[string]any{"level": "info"},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Wrote %s.\n", path)
	fmt.Println("Start the gateway with 'slipway serve'.")
	return nil
}

func promptMinio() (map[string]any, error) {
	endpointPrompt := promptui.Prompt{
		Label:   "MinIO endpoint",
		Default: "localhost:9000",
	}
	endpoint, err := endpointPrompt.Run()
	if err != nil {
		return nil, handlePromptError(err)
	}

	accessKeyPrompt := promptui.Prompt{
		Label: "Access Key",
	}
	accessKey, err := accessKeyPrompt.Run()
	if err != nil {
		return nil, handlePromptError(err)
	}

	secretKeyPrompt := promptui.Prompt{
		Label: "Secret Key",
		Mask:  '*',
	}
	secretKey, err := secretKeyPrompt.Run()
	if err != nil {
		return nil, handlePromptError(err)
	}

	bucketPrompt := promptui.Prompt{
		Label:   "Physical bucket",
		Default: "slipway",
	}
	bucket, err := bucketPrompt.Run()
	if err != nil {
		return nil, handlePromptError(err)
	}

	return map[string]any{
		"endpoint":   endpoint,
		"access_key": accessKey,
		"secret_key": secretKey,
		"bucket":     bucket,
	}, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// handlePromptError handles promptui errors.
func handlePromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) {
		fmt.Println("\nCancelled.")
		os.Exit(0)
	}
	if errors.Is(err, promptui.ErrAbort) {
		fmt.Println("Cancelled.")
		return nil
	}
	return err
}
