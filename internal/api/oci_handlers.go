package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/julienschmidt/httprouter"

	"bencher/internal/apierrors"
	"bencher/internal/oci"
)

// V2Check handles GET /v2/: the Distribution spec's API-version probe.
// A bare 200 with no body advertises support.
func (a *API) V2Check(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

// StartUpload handles POST /v2/{project}/blobs/uploads[?mount=digest&from=project].
func (a *API) StartUpload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	if mount := r.URL.Query().Get("mount"); mount != "" {
		from := r.URL.Query().Get("from")
		digest, perr := oci.ParseDigest(mount)
		if perr != nil {
			writeError(w, a.Log, perr)
			return
		}
		mounted, merr := a.Registry.Uploader.Mount(ctx, from, p.Slug, digest)
		if merr != nil {
			writeError(w, a.Log, merr)
			return
		}
		if mounted {
			w.Header().Set("Docker-Content-Digest", digest.String())
			w.Header().Set("Location", "/v2/"+p.Slug+"/blobs/"+digest.String())
			w.WriteHeader(http.StatusCreated)
			return
		}
	}

	session, err := a.Registry.Uploader.Start(ctx, p.Slug)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.Header().Set("Location", "/v2/"+p.Slug+"/blobs/uploads/"+session.ID)
	w.Header().Set("Range", "0-0")
	w.WriteHeader(http.StatusAccepted)
}

// AppendUpload handles PATCH /v2/{project}/blobs/uploads/{sid}.
func (a *API) AppendUpload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	session, err := a.Registry.Uploader.Append(ctx, p.Slug, ps.ByName("sid"), r.Header.Get("Content-Range"), r.Body)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.Header().Set("Location", "/v2/"+p.Slug+"/blobs/uploads/"+session.ID)
	w.Header().Set("Range", "0-"+strconv.FormatInt(session.CommittedSize-1, 10))
	w.WriteHeader(http.StatusAccepted)
}

// CommitUpload handles PUT /v2/{project}/blobs/uploads/{sid}?digest=<d>,
// with an optional final chunk in the request body.
func (a *API) CommitUpload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	expected, err := oci.ParseDigest(r.URL.Query().Get("digest"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	var finalChunk io.Reader
	if r.ContentLength > 0 {
		finalChunk = r.Body
	}
	digest, size, err := a.Registry.Uploader.Commit(ctx, p.Slug, ps.ByName("sid"), expected, finalChunk)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.Header().Set("Docker-Content-Digest", digest.String())
	w.Header().Set("Location", "/v2/"+p.Slug+"/blobs/"+digest.String())
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusCreated)
}

// CancelUpload handles DELETE /v2/{project}/blobs/uploads/{sid}.
func (a *API) CancelUpload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if err := a.Registry.Uploader.Cancel(ctx, p.Slug, ps.ByName("sid")); err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadStatus handles GET /v2/{project}/blobs/uploads/{sid}.
func (a *API) UploadStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, _, err := a.resolveProject(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	session, err := a.Registry.Uploader.Status(ctx, p.Slug, ps.ByName("sid"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.Header().Set("Range", "0-"+strconv.FormatInt(session.CommittedSize-1, 10))
	w.WriteHeader(http.StatusNoContent)
}

// HeadBlob handles HEAD /v2/{project}/blobs/{digest}.
func (a *API) HeadBlob(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, _, err := a.resolveProject(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	exists, digest, err := a.Registry.BlobExists(ctx, p.Slug, ps.ByName("digest"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if !exists {
		writeError(w, a.Log, apierrors.NotFound("blob %q", ps.ByName("digest")))
		return
	}
	w.Header().Set("Docker-Content-Digest", digest.String())
	w.WriteHeader(http.StatusOK)
}

// GetBlob handles GET /v2/{project}/blobs/{digest}.
func (a *API) GetBlob(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, _, err := a.resolveProject(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	rc, size, digest, err := a.Registry.GetBlob(ctx, p.Slug, ps.ByName("digest"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Docker-Content-Digest", digest.String())
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

// PutManifest handles PUT /v2/{project}/manifests/{ref}.
func (a *API) PutManifest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		writeError(w, a.Log, apierrors.BadRequest("reading manifest body: %v", err))
		return
	}

	digest, err := a.Registry.Manifests.Put(ctx, p.Slug, ps.ByName("ref"), body)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.Header().Set("Docker-Content-Digest", digest.String())
	w.Header().Set("Location", "/v2/"+p.Slug+"/manifests/"+digest.String())
	w.WriteHeader(http.StatusCreated)
}

// getManifest is shared by HeadManifest and GetManifest: both resolve the
// ref and differ only in whether the body is written.
func (a *API) getManifest(w http.ResponseWriter, r *http.Request, ps httprouter.Params, withBody bool) {
	ctx := r.Context()
	p, _, err := a.resolveProject(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	rec, err := a.Registry.Manifests.GetByRef(ctx, p.Slug, ps.ByName("ref"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.Header().Set("Docker-Content-Digest", rec.Digest.String())
	w.Header().Set("Content-Type", rec.MediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Bytes)))
	w.WriteHeader(http.StatusOK)
	if withBody {
		w.Write(rec.Bytes)
	}
}

// HeadManifest handles HEAD /v2/{project}/manifests/{ref}.
func (a *API) HeadManifest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a.getManifest(w, r, ps, false)
}

// GetManifest handles GET /v2/{project}/manifests/{ref}.
func (a *API) GetManifest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	a.getManifest(w, r, ps, true)
}

type tagListResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// ListTags handles GET /v2/{project}/tags/list[?n=&last=].
func (a *API) ListTags(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, _, err := a.resolveProject(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		if parsed, perr := strconv.Atoi(raw); perr == nil {
			n = parsed
		}
	}
	tags, err := a.Registry.Manifests.ListTags(ctx, p.Slug, n, r.URL.Query().Get("last"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, tagListResponse{Name: p.Slug, Tags: tags})
}

type referrersResponse struct {
	SchemaVersion int             `json:"schemaVersion"`
	MediaType     string          `json:"mediaType"`
	Manifests     []v1.Descriptor `json:"manifests"`
}

// ListReferrers handles GET /v2/{project}/referrers/{digest}[?artifactType=].
func (a *API) ListReferrers(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, _, err := a.resolveProject(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	subject, err := oci.ParseDigest(ps.ByName("digest"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	descs, err := a.Registry.Manifests.ListReferrers(ctx, p.Slug, subject, r.URL.Query().Get("artifactType"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	resp := referrersResponse{SchemaVersion: 2, MediaType: "application/vnd.oci.image.index.v1+json", Manifests: descs}
	raw, merr := json.Marshal(resp)
	if merr != nil {
		writeError(w, a.Log, apierrors.Internal(merr, "encoding referrers index"))
		return
	}
	w.Header().Set("Content-Type", resp.MediaType)
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}
