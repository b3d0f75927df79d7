package apikeys

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

// ErrUnknownKey is returned when an API key is not authorized.
var ErrUnknownKey = errors.New("unknown api key")

// MapStore checks keys against an in-memory set.
// Suitable for configuration file-based key storage.
type MapStore struct {
	keys map[string]struct{}
}

// NewMapStore creates a new map-based key store from the given set.
func NewMapStore(keys map[string]struct{}) *MapStore {
	return &MapStore{keys: keys}
}

// Check reports whether key is in the set. Comparison is constant-time
// per candidate so key content does not leak through timing.
func (s *MapStore) Check(key string) error {
	if key == "" {
		return fmt.Errorf("check api key: %w", ErrUnknownKey)
	}

	for candidate := range s.keys {
		if len(candidate) == len(key) && subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return nil
		}
	}

	return fmt.Errorf("check api key: %w", ErrUnknownKey)
}
