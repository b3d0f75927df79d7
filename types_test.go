package slipway_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcrawfurd/slipway"
)

func TestIsValidBucketName(t *testing.T) {
	valid := []string{
		"abc",
		"photos",
		"my-bucket",
		"bucket-123",
		"123",
		strings.Repeat("a", 63),
	}
	for _, name := range valid {
		assert.True(t, slipway.IsValidBucketName(name), "expected %q to be valid", name)
	}

	invalid := []string{
		"",
		"ab",
		strings.Repeat("a", 64),
		"UPPER",
		"has_underscore",
		"has.dot",
		"-leading",
		"trailing-",
		"with space",
		"émoji",
	}
	for _, name := range invalid {
		assert.False(t, slipway.IsValidBucketName(name), "expected %q to be invalid", name)
	}
}

func TestIsValidObjectKey(t *testing.T) {
	valid := []string{
		"a.txt",
		"docs/a.txt",
		"deeply/nested/path/file.bin",
		"file-with_chars.2026.txt",
	}
	for _, key := range valid {
		assert.True(t, slipway.IsValidObjectKey(key), "expected %q to be valid", key)
	}

	invalid := []string{
		"",
		"/",
		".",
		"/leading.txt",
		"trailing/",
		"a//b.txt",
		"../escape.txt",
		"a/../b.txt",
		"./relative.txt",
		"has space.txt",
		"has\ttab.txt",
		"has\x00null.txt",
		`back\slash.txt`,
		"query?.txt",
		"frag#.txt",
		"tilde~.txt",
	}
	for _, key := range invalid {
		assert.False(t, slipway.IsValidObjectKey(key), "expected %q to be invalid", key)
	}
}

func TestParseGrantMethod(t *testing.T) {
	m, err := slipway.ParseGrantMethod("get")
	assert.NoError(t, err)
	assert.Equal(t, slipway.MethodRead, m)

	m, err = slipway.ParseGrantMethod("PUT")
	assert.NoError(t, err)
	assert.Equal(t, slipway.MethodWrite, m)

	_, err = slipway.ParseGrantMethod("DELETE")
	assert.Error(t, err)

	_, err = slipway.ParseGrantMethod("")
	assert.Error(t, err)
}

func TestTablesValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tables := slipway.Tables{Buckets: "slipway_buckets", Objects: "slipway_objects"}
		assert.NoError(t, tables.Validate())
	})

	t.Run("empty name", func(t *testing.T) {
		tables := slipway.Tables{Buckets: "slipway_buckets"}
		assert.Error(t, tables.Validate())
	})

	t.Run("injection attempt", func(t *testing.T) {
		tables := slipway.Tables{Buckets: "buckets; drop table users", Objects: "objects"}
		assert.Error(t, tables.Validate())
	})
}
