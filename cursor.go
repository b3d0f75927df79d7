package slipway

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodeCursor encodes the last returned object key into an opaque
// pagination cursor. Listing is ordered by key, so the key alone is
// enough to resume.
func EncodeCursor(key string) string {
	return base64.URLEncoding.EncodeToString([]byte("k|" + key))
}

// DecodeCursor decodes a pagination cursor back to the key it points at.
// An empty cursor decodes to an empty key (start from the beginning).
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("decode cursor: %w: invalid encoding", ErrInvalidArgument)
	}

	rest, ok := strings.CutPrefix(string(decoded), "k|")
	if !ok {
		return "", fmt.Errorf("decode cursor: %w: invalid format", ErrInvalidArgument)
	}

	if rest == "" {
		return "", fmt.Errorf("decode cursor: %w: empty key", ErrInvalidArgument)
	}

	return rest, nil
}

// EscapeLikePattern escapes special LIKE characters (%, _, \) to prevent SQL injection.
func EscapeLikePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	pattern = strings.ReplaceAll(pattern, `%`, `\%`)
	pattern = strings.ReplaceAll(pattern, `_`, `\_`)
	return pattern
}
