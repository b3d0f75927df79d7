package slipway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMaxGrantTTL caps how far in the future a grant may expire.
	DefaultMaxGrantTTL = 7 * 24 * time.Hour

	// Query parameter names on signed URLs. Bucket, key and method are
	// carried by the URL path and HTTP verb, not by parameters.
	ParamExpires   = "expires"
	ParamSignature = "signature"
)

// SignerConfig configures a Signer. Secret and BaseURL are required.
type SignerConfig struct {
	// Secret is the process-wide signing secret. It is loaded once at
	// startup and must never be logged or echoed in errors.
	Secret string
	// BaseURL is the public base URL signed URLs are built on,
	// e.g. "https://storage.example.com".
	BaseURL string
	// MaxTTL bounds grant lifetimes. Zero selects DefaultMaxGrantTTL.
	MaxTTL time.Duration
	// Now overrides the clock, for tests. Nil selects time.Now.
	Now func() time.Time
}

// Signer mints and verifies time-limited, method-bound, resource-bound
// URL signatures. It holds no state beyond immutable configuration:
// verification is a pure recomputation, so issued grants cannot be
// revoked before they expire.
type Signer struct {
	secret  []byte
	baseURL string
	maxTTL  time.Duration
	now     func() time.Time
}

func NewSigner(cfg SignerConfig) (*Signer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("new signer: %w: signing secret cannot be empty", ErrInvalidArgument)
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("new signer: %w: base URL cannot be empty", ErrInvalidArgument)
	}

	maxTTL := cfg.MaxTTL
	if maxTTL <= 0 {
		maxTTL = DefaultMaxGrantTTL
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Signer{
		secret:  []byte(cfg.Secret),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		maxTTL:  maxTTL,
		now:     now,
	}, nil
}

// Mint produces a signed URL granting one method on one object until
// now+ttl. The ttl must be positive and no larger than the configured
// maximum.
func (s *Signer) Mint(bucket, key string, method GrantMethod, ttl time.Duration) (Grant, error) {
	if !method.IsValid() {
		return Grant{}, fmt.Errorf("mint grant: %w: method %q", ErrInvalidArgument, method)
	}

	if ttl <= 0 {
		return Grant{}, fmt.Errorf("mint grant: %w: ttl must be positive", ErrInvalidArgument)
	}

	if ttl > s.maxTTL {
		return Grant{}, fmt.Errorf("mint grant: %w: ttl %s exceeds maximum %s", ErrInvalidArgument, ttl, s.maxTTL)
	}

	expiresAt := s.now().Add(ttl).Truncate(time.Second)
	signature := s.sign(method, bucket, key, expiresAt.Unix())

	params := url.Values{}
	params.Set(ParamExpires, strconv.FormatInt(expiresAt.Unix(), 10))
	params.Set(ParamSignature, signature)

	return Grant{
		Bucket:    bucket,
		Key:       key,
		Method:    method,
		ExpiresAt: expiresAt,
		Signature: signature,
		URL:       fmt.Sprintf("%s/buckets/%s/objects/%s?%s", s.baseURL, url.PathEscape(bucket), escapeKeyPath(key), params.Encode()),
	}, nil
}

// Verify recomputes the signature for (bucket, key, method, expiresAt)
// and compares it in constant time. A mismatch returns
// ErrSignatureInvalid; a valid but stale signature returns
// ErrSignatureExpired. Callers must deny access on either -- the
// distinction is diagnostic only and must not leak to external callers.
//
// Expiry is strict (now <= expiresAt); skew tolerance, if any, belongs
// in the caller's choice of ttl.
func (s *Signer) Verify(bucket, key string, method GrantMethod, expiresAt time.Time, signature string) error {
	expected := s.sign(method, bucket, key, expiresAt.Unix())

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("verify grant: %w", ErrSignatureInvalid)
	}

	if s.now().After(expiresAt) {
		return fmt.Errorf("verify grant: %w", ErrSignatureExpired)
	}

	return nil
}

// VerifyQuery verifies the expires/signature pair as they appear on a
// signed URL's query string.
func (s *Signer) VerifyQuery(bucket, key string, method GrantMethod, query url.Values) error {
	expiresStr := query.Get(ParamExpires)
	signature := query.Get(ParamSignature)

	if expiresStr == "" || signature == "" {
		return fmt.Errorf("verify grant: missing parameters: %w", ErrSignatureInvalid)
	}

	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("verify grant: invalid expires: %w", ErrSignatureInvalid)
	}

	return s.Verify(bucket, key, method, time.Unix(expires, 0), signature)
}

// IsDenied reports whether err is a signature failure of either kind.
func IsDenied(err error) bool {
	return errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrSignatureExpired)
}

func (s *Signer) sign(method GrantMethod, bucket, key string, expiresUnix int64) string {
	canonical := string(method) + "\n" + bucket + "\n" + key + "\n" + strconv.FormatInt(expiresUnix, 10)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// escapeKeyPath escapes each segment of a key individually so that
// slashes survive as path separators.
func escapeKeyPath(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
