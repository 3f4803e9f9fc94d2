package oci

import (
	"bytes"
	"context"
	"io"

	"github.com/klauspost/compress/gzip"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"bencher/internal/apierrors"
)

// Registry is the assembled OCI Distribution surface for a single storage
// backend: uploads, manifests, and referrers (spec.md §4.6). The api
// package's HTTP handlers are thin adapters over these methods.
type Registry struct {
	Backend   Backend
	Uploader  *Uploader
	Manifests *Manifests
}

func NewRegistry(b Backend) *Registry {
	return &Registry{Backend: b, Uploader: NewUploader(b), Manifests: NewManifests(b)}
}

func (r *Registry) GetBlob(ctx context.Context, project, digestStr string) (io.ReadCloser, int64, v1.Hash, error) {
	digest, err := ParseDigest(digestStr)
	if err != nil {
		return nil, 0, v1.Hash{}, err
	}
	rc, size, err := r.Backend.GetBlob(ctx, project, digest)
	return rc, size, digest, err
}

func (r *Registry) BlobExists(ctx context.Context, project, digestStr string) (bool, v1.Hash, error) {
	digest, err := ParseDigest(digestStr)
	if err != nil {
		return false, v1.Hash{}, err
	}
	exists, err := r.Backend.BlobExists(ctx, project, digest)
	return exists, digest, err
}

// StoreJobOutput gzip-compresses a runner job's reported output and
// commits it as a content-addressed blob (SPEC_FULL.md §4.6's
// "job-output blobs are gzip-compressed before being stored"), returning
// the digest so the job row can reference it.
func (r *Registry) StoreJobOutput(ctx context.Context, project string, raw []byte) (v1.Hash, error) {
	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	if _, err := gw.Write(raw); err != nil {
		return v1.Hash{}, apierrors.Internal(err, "compressing job output")
	}
	if err := gw.Close(); err != nil {
		return v1.Hash{}, apierrors.Internal(err, "finalizing job output compression")
	}

	digest, _, err := DigestReader(bytes.NewReader(compressed.Bytes()))
	if err != nil {
		return v1.Hash{}, err
	}
	if exists, err := r.Backend.BlobExists(ctx, project, digest); err != nil {
		return v1.Hash{}, err
	} else if exists {
		return digest, nil
	}

	session, err := r.Backend.StartUpload(ctx, project)
	if err != nil {
		return v1.Hash{}, err
	}
	if _, err := r.Backend.AppendUpload(ctx, project, session.ID, bytes.NewReader(compressed.Bytes())); err != nil {
		return v1.Hash{}, err
	}
	committed, _, err := r.Backend.CompleteUpload(ctx, project, session.ID, digest)
	if err != nil {
		return v1.Hash{}, err
	}
	return committed, nil
}

// ReadJobOutput decompresses a job-output blob back into its original
// bytes, for re-ingestion or debugging.
func (r *Registry) ReadJobOutput(ctx context.Context, project string, digest v1.Hash) ([]byte, error) {
	rc, _, err := r.Backend.GetBlob(ctx, project, digest)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	gr, err := gzip.NewReader(rc)
	if err != nil {
		return nil, apierrors.Internal(err, "opening job output gzip stream")
	}
	defer gr.Close()

	raw, err := io.ReadAll(gr)
	if err != nil {
		return nil, apierrors.Internal(err, "decompressing job output")
	}
	return raw, nil
}
