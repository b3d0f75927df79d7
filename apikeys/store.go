// Package apikeys provides Store implementations for gateway API key
// authentication. Keys authorize the management surface (bucket CRUD,
// grant issuance); signed URLs authorize the direct object surface.
package apikeys

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Store answers whether an API key is authorized.
type Store interface {
	// Check returns nil if key is authorized, ErrUnknownKey otherwise.
	Check(key string) error
}

// KeysConfig holds configuration for loading API keys.
type KeysConfig struct {
	Inline []string `mapstructure:"inline"` // Inline keys from config
	File   string   `mapstructure:"file"`   // Path to a YAML file listing keys
}

// NewStore creates a Store from the given configuration. It merges
// inline keys with keys from the file (if specified).
func NewStore(cfg KeysConfig) (Store, error) {
	keys := make(map[string]struct{})

	for _, k := range cfg.Inline {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	if cfg.File != "" {
		fileKeys, err := LoadKeysFromFile(cfg.File)
		if err != nil {
			return nil, err
		}
		for _, k := range fileKeys {
			keys[k] = struct{}{}
		}
	}

	return NewMapStore(keys), nil
}

// LoadKeysFromFile reads a YAML file containing a list of API keys.
//
// Expected format:
//
//	- "key-one"
//	- "key-two"
func LoadKeysFromFile(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("load keys from %s: %w", path, err)
	}

	var keys []string
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("load keys from %s: %w", path, err)
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}

	return out, nil
}
