package oci

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/uuid"
	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"

	"bencher/internal/apierrors"
)

// LocalBackend stores blobs, manifests, tags and the referrers index as
// plain files rooted sibling to the DB file (spec.md §6 "Persisted state
// layout"): <root>/<project>/blobs/<algo>/<hex>,
// .../manifests/sha256/<hex>, .../tags/<tag>, .../referrers/<algo>/<hex>/…,
// _uploads/<sid>/{state.json,data}.
type LocalBackend struct {
	Root string
	Log  *logrus.Entry

	mu sync.Mutex
}

func NewLocalBackend(root string, log *logrus.Entry) *LocalBackend {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LocalBackend{Root: root, Log: log}
}

func (l *LocalBackend) projectDir(project string) string { return filepath.Join(l.Root, project) }

func (l *LocalBackend) blobPath(project string, digest v1.Hash) string {
	return filepath.Join(l.projectDir(project), "blobs", digestPath(digest))
}

func (l *LocalBackend) uploadDir(project, sid string) string {
	return filepath.Join(l.projectDir(project), "_uploads", sid)
}

type uploadState struct {
	ID            string    `json:"id"`
	Project       string    `json:"project"`
	CommittedSize int64     `json:"committed_size"`
	Created       time.Time `json:"created"`
}

func (l *LocalBackend) StartUpload(ctx context.Context, project string) (*UploadSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sid := uuid.NewString()
	dir := l.uploadDir(project, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierrors.Internal(err, "creating upload session directory")
	}
	st := uploadState{ID: sid, Project: project, Created: time.Now()}
	if err := l.writeUploadState(dir, st); err != nil {
		return nil, err
	}
	if f, err := os.Create(filepath.Join(dir, "data")); err != nil {
		return nil, apierrors.Internal(err, "creating upload data file")
	} else {
		f.Close()
	}
	return &UploadSession{ID: sid, Project: project, Created: st.Created}, nil
}

func (l *LocalBackend) writeUploadState(dir string, st uploadState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return apierrors.Internal(err, "encoding upload session state")
	}
	if err := os.WriteFile(filepath.Join(dir, "state.json"), raw, 0o644); err != nil {
		return apierrors.Internal(err, "writing upload session state")
	}
	return nil
}

func (l *LocalBackend) readUploadState(dir, sid string) (uploadState, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "state.json"))
	if os.IsNotExist(err) {
		return uploadState{}, apierrors.NotFound("upload session %s not found", sid)
	}
	if err != nil {
		return uploadState{}, apierrors.Internal(err, "reading upload session state")
	}
	var st uploadState
	if err := json.Unmarshal(raw, &st); err != nil {
		return uploadState{}, apierrors.Internal(err, "decoding upload session state")
	}
	return st, nil
}

func (l *LocalBackend) AppendUpload(ctx context.Context, project, sessionID string, chunk io.Reader) (*UploadSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := l.uploadDir(project, sessionID)
	st, err := l.readUploadState(dir, sessionID)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, "data"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, apierrors.Internal(err, "opening upload data file")
	}
	defer f.Close()

	n, err := io.Copy(f, chunk)
	if err != nil {
		return nil, apierrors.Internal(err, "appending upload chunk")
	}
	st.CommittedSize += n
	if err := l.writeUploadState(dir, st); err != nil {
		return nil, err
	}
	l.Log.WithFields(logrus.Fields{"project": project, "session": sessionID, "size": humanize.Bytes(uint64(st.CommittedSize))}).Debug("appended upload chunk")
	return &UploadSession{ID: sessionID, Project: project, CommittedSize: st.CommittedSize, Created: st.Created}, nil
}

func (l *LocalBackend) CompleteUpload(ctx context.Context, project, sessionID string, expected v1.Hash) (v1.Hash, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := l.uploadDir(project, sessionID)
	if _, err := l.readUploadState(dir, sessionID); err != nil {
		return v1.Hash{}, 0, err
	}

	dataPath := filepath.Join(dir, "data")
	f, err := os.Open(dataPath)
	if err != nil {
		return v1.Hash{}, 0, apierrors.Internal(err, "opening upload data for digest verification")
	}
	digest, size, err := DigestReader(f)
	f.Close()
	if err != nil {
		return v1.Hash{}, 0, err
	}
	if digest != expected {
		return v1.Hash{}, 0, apierrors.BadRequest("uploaded blob digest %s does not match expected %s", digest, expected)
	}

	finalPath := l.blobPath(project, digest)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return v1.Hash{}, 0, apierrors.Internal(err, "creating blob directory")
	}
	if _, err := os.Stat(finalPath); err == nil {
		// Duplicate puts are no-ops (spec.md §4.6 content-addressed store).
		os.RemoveAll(dir)
		return digest, size, nil
	}
	if err := os.Rename(dataPath, finalPath); err != nil {
		return v1.Hash{}, 0, apierrors.Internal(err, "committing uploaded blob")
	}
	os.RemoveAll(dir)
	return digest, size, nil
}

func (l *LocalBackend) CancelUpload(ctx context.Context, project, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.RemoveAll(l.uploadDir(project, sessionID)); err != nil {
		return apierrors.Internal(err, "canceling upload session")
	}
	return nil
}

func (l *LocalBackend) UploadStatus(ctx context.Context, project, sessionID string) (*UploadSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, err := l.readUploadState(l.uploadDir(project, sessionID), sessionID)
	if err != nil {
		return nil, err
	}
	return &UploadSession{ID: sessionID, Project: project, CommittedSize: st.CommittedSize, Created: st.Created}, nil
}

func (l *LocalBackend) BlobExists(ctx context.Context, project string, digest v1.Hash) (bool, error) {
	_, err := os.Stat(l.blobPath(project, digest))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apierrors.Internal(err, "checking blob existence")
	}
	return true, nil
}

func (l *LocalBackend) GetBlob(ctx context.Context, project string, digest v1.Hash) (io.ReadCloser, int64, error) {
	path := l.blobPath(project, digest)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, 0, apierrors.NotFound("blob %s not found", digest)
	}
	if err != nil {
		return nil, 0, apierrors.Internal(err, "statting blob")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, apierrors.Internal(err, "opening blob")
	}
	return f, info.Size(), nil
}

func (l *LocalBackend) DeleteBlob(ctx context.Context, project string, digest v1.Hash) error {
	if err := os.Remove(l.blobPath(project, digest)); err != nil && !os.IsNotExist(err) {
		return apierrors.Internal(err, "deleting blob")
	}
	return nil
}

// MountBlob hard-links the destination key to the same content, falling
// back to a copy when hard-linking isn't possible (different filesystem);
// either way no bytes are re-uploaded (R3).
func (l *LocalBackend) MountBlob(ctx context.Context, fromProject, toProject string, digest v1.Hash) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.blobPath(fromProject, digest)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return false, apierrors.NotFound("blob %s not found in project %s", digest, fromProject)
	}
	dst := l.blobPath(toProject, digest)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, apierrors.Internal(err, "creating destination blob directory")
	}
	if err := os.Link(src, dst); err != nil {
		if copyErr := copy.Copy(src, dst); copyErr != nil {
			return false, apierrors.Internal(copyErr, "mounting blob via copy fallback")
		}
	}
	return true, nil
}

func (l *LocalBackend) PutManifest(ctx context.Context, project, ref string, rec ManifestRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	manifestPath := filepath.Join(l.projectDir(project), "manifests", digestPath(rec.Digest))
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return apierrors.Internal(err, "creating manifest directory")
	}
	if err := os.WriteFile(manifestPath, rec.Bytes, 0o644); err != nil {
		return apierrors.Internal(err, "writing manifest")
	}

	if _, err := ParseDigest(ref); err != nil {
		// ref is a tag, not a digest: record the tag -> digest pointer.
		tagPath := filepath.Join(l.projectDir(project), "tags", ref)
		if err := os.MkdirAll(filepath.Dir(tagPath), 0o755); err != nil {
			return apierrors.Internal(err, "creating tag directory")
		}
		if err := os.WriteFile(tagPath, []byte(rec.Digest.String()), 0o644); err != nil {
			return apierrors.Internal(err, "writing tag")
		}
	}
	return nil
}

func (l *LocalBackend) GetManifestByDigest(ctx context.Context, project string, digest v1.Hash) (*ManifestRecord, error) {
	manifestPath := filepath.Join(l.projectDir(project), "manifests", digestPath(digest))
	raw, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return nil, apierrors.NotFound("manifest %s not found", digest)
	}
	if err != nil {
		return nil, apierrors.Internal(err, "reading manifest")
	}
	mediaType, err := probeMediaType(raw)
	if err != nil {
		return nil, err
	}
	return &ManifestRecord{Digest: digest, MediaType: mediaType, Bytes: raw}, nil
}

func (l *LocalBackend) ResolveTag(ctx context.Context, project, tag string) (v1.Hash, error) {
	tagPath := filepath.Join(l.projectDir(project), "tags", tag)
	raw, err := os.ReadFile(tagPath)
	if os.IsNotExist(err) {
		return v1.Hash{}, apierrors.NotFound("tag %q not found", tag)
	}
	if err != nil {
		return v1.Hash{}, apierrors.Internal(err, "reading tag pointer")
	}
	return ParseDigest(string(raw))
}

func (l *LocalBackend) ListTags(ctx context.Context, project string, n int, last string) ([]string, error) {
	dir := filepath.Join(l.projectDir(project), "tags")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Internal(err, "listing tags")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	start := 0
	if last != "" {
		for i, name := range names {
			if name > last {
				start = i
				break
			}
			start = i + 1
		}
	}
	if start >= len(names) {
		return nil, nil
	}
	names = names[start:]
	if n > 0 && n < len(names) {
		names = names[:n]
	}
	return names, nil
}

func (l *LocalBackend) PutReferrer(ctx context.Context, project string, subject v1.Hash, desc v1.Descriptor) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Join(l.projectDir(project), "referrers", digestPath(subject))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apierrors.Internal(err, "creating referrers directory")
	}
	raw, err := json.Marshal(desc)
	if err != nil {
		return apierrors.Internal(err, "encoding referrer descriptor")
	}
	name := desc.Digest.Algorithm + "-" + desc.Digest.Hex
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
		return apierrors.Internal(err, "writing referrer entry")
	}
	return nil
}

func (l *LocalBackend) ListReferrers(ctx context.Context, project string, subject v1.Hash, artifactType string) ([]v1.Descriptor, error) {
	dir := filepath.Join(l.projectDir(project), "referrers", digestPath(subject))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Internal(err, "listing referrers")
	}

	var out []v1.Descriptor
	for _, e := range entries {
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, apierrors.Internal(err, "reading referrer entry")
		}
		var desc v1.Descriptor
		if err := json.Unmarshal(raw, &desc); err != nil {
			return nil, apierrors.Internal(err, "decoding referrer entry")
		}
		if artifactType != "" && desc.ArtifactType != artifactType {
			continue
		}
		out = append(out, desc)
	}
	return out, nil
}
