// Package slipway implements an object storage gateway that keeps a
// relational metadata store consistent with a bulk-bytes blob backend and
// brokers time-limited, direct-to-backend access via HMAC presigned URLs.
//
// The gateway itself stores no bytes. Metadata rows are the source of
// truth for existence and listing; backend blobs are the source of truth
// for content, size and checksum. The two converge through a single
// idempotent confirmation step.
//
// # Key Components
//
//   - GatewayService: bucket/object lifecycle and the consistency protocol
//   - Signer: mints and verifies time-limited, method-bound URL signatures
//   - MetadataRepo: interface for bucket/object record persistence (PostgreSQL, SQLite)
//   - BlobStore: interface for the bulk-bytes backend (MinIO/S3-compatible, in-memory)
//
// # Upload Protocol
//
// Issuing an upload grant upserts a PENDING metadata row and returns a
// signed URL. The client writes bytes directly against that URL; a
// separate confirmation (explicit, or implicit on the upload path)
// stats the backend and promotes the row to COMMITTED, copying size and
// checksum from backend truth. PENDING rows are never listed or served,
// and rows whose grant expired without a confirmed write are reclaimed
// by Sweep.
//
// # Example Usage
//
//	signer, err := slipway.NewSigner(slipway.SignerConfig{
//	    Secret:  secret,
//	    BaseURL: "https://storage.example.com",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc, err := slipway.NewGatewayService(repo, blobs, signer, slipway.ServiceConfig{})
//
//	// Broker an upload
//	_, grant, err := svc.IssueUploadGrant(ctx, "docs", "a.txt", "text/plain", time.Minute)
//
//	// Later, reconcile with backend truth
//	obj, err := svc.ConfirmUpload(ctx, "docs", "a.txt")
//
// See the http package for the REST surface and the database packages
// for metadata backend implementations.
package slipway
