package apikeys_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcrawfurd/slipway/apikeys"
)

func TestMapStore_Check(t *testing.T) {
	store := apikeys.NewMapStore(map[string]struct{}{
		"key-one": {},
		"key-two": {},
	})

	assert.NoError(t, store.Check("key-one"))
	assert.NoError(t, store.Check("key-two"))

	assert.ErrorIs(t, store.Check("key-three"), apikeys.ErrUnknownKey)
	assert.ErrorIs(t, store.Check(""), apikeys.ErrUnknownKey)
	// Same length as a known key but different content.
	assert.ErrorIs(t, store.Check("key-0ne"), apikeys.ErrUnknownKey)
}

func TestNewStore(t *testing.T) {
	t.Run("inline keys", func(t *testing.T) {
		store, err := apikeys.NewStore(apikeys.KeysConfig{Inline: []string{"alpha", "", "beta"}})
		assert.NoError(t, err)

		assert.NoError(t, store.Check("alpha"))
		assert.NoError(t, store.Check("beta"))
		assert.ErrorIs(t, store.Check(""), apikeys.ErrUnknownKey)
	})

	t.Run("file keys merge with inline", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keys.yaml")
		err := os.WriteFile(path, []byte("- \"from-file\"\n- \"also-file\"\n"), 0o600)
		assert.NoError(t, err)

		store, err := apikeys.NewStore(apikeys.KeysConfig{
			Inline: []string{"inline-key"},
			File:   path,
		})
		assert.NoError(t, err)

		assert.NoError(t, store.Check("inline-key"))
		assert.NoError(t, store.Check("from-file"))
		assert.NoError(t, store.Check("also-file"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := apikeys.NewStore(apikeys.KeysConfig{File: "/nonexistent/keys.yaml"})
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keys.yaml")
		err := os.WriteFile(path, []byte("not: a\nlist: here\n"), 0o600)
		assert.NoError(t, err)

		_, err = apikeys.NewStore(apikeys.KeysConfig{File: path})
		assert.Error(t, err)
	})
}
