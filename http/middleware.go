package http

import (
	"net/http"
	"strings"

	"github.com/mcrawfurd/slipway"
	"github.com/mcrawfurd/slipway/apikeys"
)

// APIKeyHeader carries the management API key.
const APIKeyHeader = "X-Api-Key"

// APIKeyMiddleware enforces API key authentication on the management
// surface. Pass a nil store to disable authentication (public access).
func APIKeyMiddleware(keys apikeys.Store) func(http.Handler) http.Handler {
	if keys == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := keys.Check(r.Header.Get(APIKeyHeader)); err != nil {
				HandleError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ObjectAuthMiddleware authorizes the direct object surface. A request
// carrying presign parameters is checked against the Signer for the
// exact (bucket, key, method) of the request; otherwise the API key
// store decides. Presigned access exists only for GET and PUT -- the
// methods grants are minted for.
func ObjectAuthMiddleware(signer *slipway.Signer, keys apikeys.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()

			if query.Get(slipway.ParamSignature) != "" || query.Get(slipway.ParamExpires) != "" {
				method := slipway.GrantMethod(r.Method)
				if !method.IsValid() {
					WriteError(w, http.StatusForbidden, "access_denied", "Access denied")
					return
				}

				// Route params are not populated yet while middleware
				// runs, so the object path is parsed from the URL here.
				bucket, key, ok := parseObjectPath(r.URL.Path)
				if !ok {
					WriteError(w, http.StatusForbidden, "access_denied", "Access denied")
					return
				}

				if err := signer.VerifyQuery(bucket, key, method, query); err != nil {
					HandleError(w, err)
					return
				}

				next.ServeHTTP(w, r)
				return
			}

			if keys == nil {
				next.ServeHTTP(w, r)
				return
			}

			if err := keys.Check(r.Header.Get(APIKeyHeader)); err != nil {
				HandleError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// parseObjectPath splits an object route path of the form
// /buckets/{bucket}/objects/{key} into its bucket and key.
func parseObjectPath(path string) (string, string, bool) {
	rest, found := strings.CutPrefix(path, "/buckets/")
	if !found {
		return "", "", false
	}

	bucket, key, found := strings.Cut(rest, "/objects/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}

	return bucket, key, true
}
