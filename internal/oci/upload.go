package oci

import (
	"context"
	"io"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"bencher/internal/apierrors"
)

// Uploader drives the chunked-upload state machine from spec.md §4.6 on
// top of a Backend. It owns the Content-Range validation rule (B3) and
// the final-digest commit check (B4); the backend itself just persists
// session bytes.
type Uploader struct {
	Backend Backend
}

func NewUploader(b Backend) *Uploader { return &Uploader{Backend: b} }

// Start begins a new upload session, per POST /blobs/uploads.
func (u *Uploader) Start(ctx context.Context, project string) (*UploadSession, error) {
	return u.Backend.StartUpload(ctx, project)
}

// Append handles PATCH /blobs/uploads/{sid}: if contentRange is non-empty
// its start offset must equal the session's current committed size (B3);
// a parse failure or a mismatched start both surface as
// RangeNotSatisfiable, matching the 416 the wire surface requires.
func (u *Uploader) Append(ctx context.Context, project, sessionID string, contentRange string, chunk io.Reader) (*UploadSession, error) {
	if contentRange != "" {
		start, _, err := ParseContentRange(strings.TrimSpace(contentRange))
		if err != nil {
			return nil, err
		}
		current, err := u.Backend.UploadStatus(ctx, project, sessionID)
		if err != nil {
			return nil, err
		}
		if start != current.CommittedSize {
			return nil, apierrors.New(apierrors.KindRangeNotSatisfiable,
				"Content-Range start does not match committed size")
		}
	}
	return u.Backend.AppendUpload(ctx, project, sessionID, chunk)
}

// Commit handles PUT /blobs/uploads/{sid}?digest=<d>: an optional final
// chunk is appended first, then the concatenated bytes are hashed and
// compared against the expected digest (B4); a mismatch discards the
// session rather than leaving it half-committed.
func (u *Uploader) Commit(ctx context.Context, project, sessionID string, expected v1.Hash, finalChunk io.Reader) (v1.Hash, int64, error) {
	if finalChunk != nil {
		if _, err := u.Backend.AppendUpload(ctx, project, sessionID, finalChunk); err != nil {
			return v1.Hash{}, 0, err
		}
	}
	digest, size, err := u.Backend.CompleteUpload(ctx, project, sessionID, expected)
	if err != nil {
		_ = u.Backend.CancelUpload(ctx, project, sessionID)
		return v1.Hash{}, 0, err
	}
	return digest, size, nil
}

// Cancel handles DELETE /blobs/uploads/{sid}.
func (u *Uploader) Cancel(ctx context.Context, project, sessionID string) error {
	return u.Backend.CancelUpload(ctx, project, sessionID)
}

// Status handles GET /blobs/uploads/{sid}.
func (u *Uploader) Status(ctx context.Context, project, sessionID string) (*UploadSession, error) {
	return u.Backend.UploadStatus(ctx, project, sessionID)
}

// Mount handles a cross-repo mount (POST .../blobs/uploads?mount=d&from=P):
// a no-op existence check when the destination project already has the
// blob (R3), otherwise delegated to the backend's reference-only copy.
func (u *Uploader) Mount(ctx context.Context, fromProject, toProject string, digest v1.Hash) (bool, error) {
	exists, err := u.Backend.BlobExists(ctx, toProject, digest)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}
	return u.Backend.MountBlob(ctx, fromProject, toProject, digest)
}
