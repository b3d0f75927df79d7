package slipway

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ObjectStatus tracks where an object sits in the upload protocol.
// A row is PENDING from the moment an upload grant is issued until the
// backend write has been confirmed, at which point it becomes COMMITTED.
type ObjectStatus string

const (
	// StatusPending means the metadata row exists but the backend write
	// has not been confirmed yet. PENDING rows are never listed or served.
	StatusPending ObjectStatus = "PENDING"
	// StatusCommitted means the backend write was confirmed and the object
	// is readable and listable.
	StatusCommitted ObjectStatus = "COMMITTED"
)

func (s ObjectStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusCommitted:
		return true
	default:
		return false
	}
}

// GrantMethod is the HTTP method a grant is bound to.
type GrantMethod string

const (
	MethodRead  GrantMethod = "GET"
	MethodWrite GrantMethod = "PUT"
)

func (m GrantMethod) IsValid() bool {
	switch m {
	case MethodRead, MethodWrite:
		return true
	default:
		return false
	}
}

func ParseGrantMethod(s string) (GrantMethod, error) {
	m := GrantMethod(strings.ToUpper(s))
	if !m.IsValid() {
		return "", fmt.Errorf("invalid grant method: %s (valid methods: GET, PUT)", s)
	}
	return m, nil
}

// Bucket is a named namespace for objects. The name is globally unique
// and immutable after creation.
type Bucket struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ObjectInfo is the metadata row for one object, keyed by (Bucket, Key).
// The row is the source of truth for existence and listing; the backend
// blob is the source of truth for bytes, size and checksum.
type ObjectInfo struct {
	ID             uuid.UUID    `json:"id"`
	Bucket         string       `json:"bucket"`
	Key            string       `json:"key"`
	SizeBytes      int64        `json:"size_bytes"`
	ContentType    string       `json:"content_type"`
	Checksum       string       `json:"checksum"`
	Status         ObjectStatus `json:"status"`
	GrantExpiresAt time.Time    `json:"grant_expires_at"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Grant is an ephemeral, signed permission to perform one HTTP method
// against one object key directly on the gateway's signed-URL surface.
// Grants are never persisted and cannot be revoked before expiry.
type Grant struct {
	Bucket    string      `json:"bucket"`
	Key       string      `json:"key"`
	Method    GrantMethod `json:"method"`
	ExpiresAt time.Time   `json:"expires_at"`
	Signature string      `json:"signature"`
	URL       string      `json:"url"`
}

// StatInfo is what the blob backend reports for a stored object.
type StatInfo struct {
	SizeBytes int64
	Checksum  string
}

type ListQuery struct {
	Prefix string
	Limit  int
	Cursor string
}

type ListResult struct {
	Items      []ObjectInfo `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// Tables holds configurable table names for metadata storage.
// This allows multi-tenant deployments to use different table names.
type Tables struct {
	Buckets string `mapstructure:"buckets"`
	Objects string `mapstructure:"objects"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	for _, name := range []string{t.Buckets, t.Objects} {
		if name == "" {
			return fmt.Errorf("validate tables: table name cannot be empty")
		}
		if !IsValidTableName(name) {
			return fmt.Errorf("validate tables: invalid table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", name)
		}
	}
	return nil
}

var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

// IsValidBucketName validates a bucket name: lowercase alphanumeric and
// hyphen, 3 to 63 characters, starting and ending with an alphanumeric.
func IsValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	return bucketNameRegex.MatchString(name)
}

// IsValidObjectKey validates that a key is usable as a storage path.
// It checks that the key:
//   - is not empty, ".", or "/"
//   - is relative (does not start with "/") and does not end with "/"
//   - does not contain ".." (path traversal) or "//" (empty segments)
//   - does not contain invalid characters: \ ? # ~
//   - is valid UTF-8 with no "." segments
//   - does not contain null bytes, control characters, DEL, or whitespace
func IsValidObjectKey(key string) bool {
	if key == "" || key == "/" || key == "." {
		return false
	}

	if key[0] == '/' {
		return false
	}

	if strings.HasSuffix(key, "/") {
		return false
	}

	if strings.Contains(key, "..") {
		return false
	}

	if strings.Contains(key, "//") {
		return false
	}

	if strings.ContainsAny(key, `\?#~`) {
		return false
	}

	if !utf8.ValidString(key) {
		return false
	}

	if strings.Contains(key, "/./") || strings.HasPrefix(key, "./") || strings.HasSuffix(key, "/.") {
		return false
	}

	for _, r := range key {
		if r == 0 || r < 0x20 || r == 0x7f || unicode.IsSpace(r) {
			return false
		}
	}

	return true
}
