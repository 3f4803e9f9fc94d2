package oci

import (
	"context"
	"io"
	"time"

	v1 "github.com/google/go-containerregistry/pkg/v1"
)

// UploadSession is the server-side state of one in-progress chunked blob
// upload (spec.md §4.6's upload session state machine).
type UploadSession struct {
	ID            string
	Project       string
	CommittedSize int64
	Created       time.Time
}

// ManifestRecord is a stored manifest: its raw bytes, the media type it
// was probed as, and its self-digest.
type ManifestRecord struct {
	Digest    v1.Hash
	MediaType string
	Bytes     []byte
}

// Backend is the storage trait both the local filesystem and S3 backends
// implement identically (spec.md §4.6 "Concurrency" paragraph names every
// one of these operations).
type Backend interface {
	StartUpload(ctx context.Context, project string) (*UploadSession, error)
	AppendUpload(ctx context.Context, project, sessionID string, chunk io.Reader) (*UploadSession, error)
	CompleteUpload(ctx context.Context, project, sessionID string, expected v1.Hash) (v1.Hash, int64, error)
	CancelUpload(ctx context.Context, project, sessionID string) error
	UploadStatus(ctx context.Context, project, sessionID string) (*UploadSession, error)

	BlobExists(ctx context.Context, project string, digest v1.Hash) (bool, error)
	GetBlob(ctx context.Context, project string, digest v1.Hash) (io.ReadCloser, int64, error)
	DeleteBlob(ctx context.Context, project string, digest v1.Hash) error
	MountBlob(ctx context.Context, fromProject, toProject string, digest v1.Hash) (bool, error)

	PutManifest(ctx context.Context, project, ref string, rec ManifestRecord) error
	GetManifestByDigest(ctx context.Context, project string, digest v1.Hash) (*ManifestRecord, error)
	ResolveTag(ctx context.Context, project, tag string) (v1.Hash, error)
	ListTags(ctx context.Context, project string, n int, last string) ([]string, error)

	PutReferrer(ctx context.Context, project string, subject v1.Hash, desc v1.Descriptor) error
	ListReferrers(ctx context.Context, project string, subject v1.Hash, artifactType string) ([]v1.Descriptor, error)
}
