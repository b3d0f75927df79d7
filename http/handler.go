// Package http provides the REST surface of the slipway gateway.
//
// The management routes (bucket CRUD, listing, grant issuance) are
// API-key authenticated. The object routes are the target of signed
// URLs: a presigned PUT streams bytes to the blob backend and confirms
// the upload, a presigned GET streams them back. Requests without
// presign parameters fall back to API key authentication.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/mcrawfurd/slipway"
	"github.com/mcrawfurd/slipway/apikeys"
)

type Service interface {
	CreateBucket(ctx context.Context, name string) (slipway.Bucket, error)
	DeleteBucket(ctx context.Context, name string) error
	ListBuckets(ctx context.Context) ([]slipway.Bucket, error)
	ListObjects(ctx context.Context, bucket string, q slipway.ListQuery) (slipway.ListResult, error)
	IssueUploadGrant(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (slipway.ObjectInfo, slipway.Grant, error)
	IssueDownloadGrant(ctx context.Context, bucket, key string, ttl time.Duration) (slipway.Grant, error)
	ConfirmUpload(ctx context.Context, bucket, key string) (slipway.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, key, contentType string, size int64, content io.Reader) (slipway.ObjectInfo, error)
	GetObjectInfo(ctx context.Context, bucket, key string) (slipway.ObjectInfo, error)
	OpenObject(ctx context.Context, bucket, key string) (slipway.ObjectInfo, io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	Signer *slipway.Signer
	Keys   apikeys.Store
	CORS   CORSConfig
}

// Handler provides HTTP handlers for the gateway API.
type Handler struct {
	config  HandlerConfig
	service Service
}

// NewHandler creates a new Handler with the given configuration and service.
func NewHandler(config *HandlerConfig, service Service) *Handler {
	return &Handler{
		config:  *config,
		service: service,
	}
}

// Router returns an http.Handler with all gateway routes configured.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.Get("/health", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(APIKeyMiddleware(h.config.Keys))
		r.Post("/buckets", h.handleCreateBucket)
		r.Get("/buckets", h.handleListBuckets)
		r.Delete("/buckets/{bucket}", h.handleDeleteBucket)
		r.Get("/buckets/{bucket}/objects", h.handleListObjects)
		r.Post("/buckets/{bucket}/presign", h.handlePresign)
	})

	r.Group(func(r chi.Router) {
		r.Use(ObjectAuthMiddleware(h.config.Signer, h.config.Keys))
		r.Put("/buckets/{bucket}/objects/*", h.handlePutObject)
		r.Get("/buckets/{bucket}/objects/*", h.handleGetObject)
		r.Head("/buckets/{bucket}/objects/*", h.handleHeadObject)
		r.Post("/buckets/{bucket}/objects/*", h.handleConfirmUpload)
		r.Delete("/buckets/{bucket}/objects/*", h.handleDeleteObject)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createBucketRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	var req createBucketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	bucket, err := h.service.CreateBucket(r.Context(), req.Name)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusCreated, bucket)
}

func (h *Handler) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.service.ListBuckets(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

func (h *Handler) handleDeleteBucket(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBucket(r.Context(), chi.URLParam(r, "bucket")); err != nil {
		HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListObjects(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	query := slipway.ListQuery{
		Prefix: r.URL.Query().Get("prefix"),
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}

	result, err := h.service.ListObjects(r.Context(), chi.URLParam(r, "bucket"), query)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, result)
}

type presignRequest struct {
	Key         string `json:"key"`
	Method      string `json:"method"`
	TTLSeconds  int    `json:"ttl_seconds"`
	ContentType string `json:"content_type"`
}

type presignResponse struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handlePresign(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body")
		return
	}

	method, err := slipway.ParseGrantMethod(req.Method)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second

	var grant slipway.Grant
	switch method {
	case slipway.MethodWrite:
		_, grant, err = h.service.IssueUploadGrant(r.Context(), bucket, req.Key, req.ContentType, ttl)
	case slipway.MethodRead:
		grant, err = h.service.IssueDownloadGrant(r.Context(), bucket, req.Key, ttl)
	}
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, presignResponse{
		URL:       grant.URL,
		Method:    string(grant.Method),
		ExpiresAt: grant.ExpiresAt,
	})
}

func (h *Handler) handlePutObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := objectPath(r)

	if !slipway.IsValidObjectKey(key) {
		WriteError(w, http.StatusBadRequest, "invalid_key", "Invalid object key")
		return
	}

	obj, err := h.service.PutObject(r.Context(), bucket, key, r.Header.Get("Content-Type"), r.ContentLength, r.Body)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, obj)
}

func (h *Handler) handleGetObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := objectPath(r)

	obj, content, err := h.service.OpenObject(r.Context(), bucket, key)
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = content.Close() }()

	writeObjectHeaders(w, obj)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, content)
}

func (h *Handler) handleHeadObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := objectPath(r)

	obj, err := h.service.GetObjectInfo(r.Context(), bucket, key)
	if err != nil {
		HandleError(w, err)
		return
	}

	writeObjectHeaders(w, obj)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	bucket, key := objectPath(r)

	obj, err := h.service.ConfirmUpload(r.Context(), bucket, key)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, obj)
}

func (h *Handler) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := objectPath(r)

	if err := h.service.DeleteObject(r.Context(), bucket, key); err != nil {
		HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeObjectHeaders(w http.ResponseWriter, obj slipway.ObjectInfo) {
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.SizeBytes, 10))
	w.Header().Set("ETag", `"`+obj.Checksum+`"`)
	w.Header().Set("X-Checksum", obj.Checksum)
}

// objectPath extracts the bucket and object key from an object route.
func objectPath(r *http.Request) (string, string) {
	bucket := chi.URLParam(r, "bucket")

	key := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}

	return bucket, strings.TrimPrefix(key, "/")
}
