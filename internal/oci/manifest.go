package oci

import (
	"bytes"
	"context"
	"encoding/json"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/types"
	imagespec "github.com/opencontainers/image-spec/specs-go/v1"

	"bencher/internal/apierrors"
)

// Docker's pre-OCI manifest media types predate the OCI spec but are
// wire-compatible with it; opencontainers/image-spec has no struct for
// them, so a local mirror of the same descriptor shape stands in.
const (
	mediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	mediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
)

type probe struct {
	MediaType     string `json:"mediaType"`
	SchemaVersion int    `json:"schemaVersion"`
}

// Manifests validates and stores manifests, and maintains the referrers
// index (spec.md §4.6 "Manifest handling").
type Manifests struct {
	Backend Backend
}

func NewManifests(b Backend) *Manifests { return &Manifests{Backend: b} }

// Put validates and stores a manifest under ref (a tag or, per the wire
// surface, a digest string used as its own tag), writing a referrer index
// entry if the manifest carries a `subject`.
func (m *Manifests) Put(ctx context.Context, project, ref string, body []byte) (v1.Hash, error) {
	mediaType, err := probeMediaType(body)
	if err != nil {
		return v1.Hash{}, err
	}

	desc, err := validateManifest(mediaType, body)
	if err != nil {
		return v1.Hash{}, err
	}

	digest, _, err := DigestReader(bytes.NewReader(body))
	if err != nil {
		return v1.Hash{}, err
	}

	rec := ManifestRecord{Digest: digest, MediaType: mediaType, Bytes: body}
	// Store the content-addressed copy first, then the referrer index
	// entry, and only then the tag pointer: a reader who observes the new
	// tag is guaranteed the referrer is already visible (SPEC_FULL.md §9
	// open-question decision on referrer/tag write ordering).
	if err := m.Backend.PutManifest(ctx, project, digest.String(), rec); err != nil {
		return v1.Hash{}, err
	}

	if desc.subject != nil {
		referrerDesc := v1.Descriptor{
			MediaType:    types.MediaType(mediaType),
			Digest:       digest,
			Size:         int64(len(body)),
			ArtifactType: desc.artifactType,
		}
		if referrerDesc.ArtifactType == "" {
			referrerDesc.ArtifactType = mediaType
		}
		if err := m.Backend.PutReferrer(ctx, project, *desc.subject, referrerDesc); err != nil {
			return v1.Hash{}, err
		}
	}

	if ref != digest.String() {
		if err := m.Backend.PutManifest(ctx, project, ref, rec); err != nil {
			return v1.Hash{}, err
		}
	}

	return digest, nil
}

// GetByRef treats ref as a digest when it parses as one and otherwise
// resolves it as a tag, per spec.md §4.6's GET /manifests/{ref}.
func (m *Manifests) GetByRef(ctx context.Context, project, ref string) (*ManifestRecord, error) {
	if digest, err := ParseDigest(ref); err == nil {
		return m.Backend.GetManifestByDigest(ctx, project, digest)
	}
	digest, err := m.Backend.ResolveTag(ctx, project, ref)
	if err != nil {
		return nil, err
	}
	return m.Backend.GetManifestByDigest(ctx, project, digest)
}

func (m *Manifests) ListTags(ctx context.Context, project string, n int, last string) ([]string, error) {
	return m.Backend.ListTags(ctx, project, n, last)
}

func (m *Manifests) ListReferrers(ctx context.Context, project string, subject v1.Hash, artifactType string) ([]v1.Descriptor, error) {
	return m.Backend.ListReferrers(ctx, project, subject, artifactType)
}

// probeMediaType implements spec.md §4.6's "parses the body by probing
// the mediaType field, defaulting to OCI image manifest when absent."
func probeMediaType(body []byte) (string, error) {
	var p probe
	if err := json.Unmarshal(body, &p); err != nil {
		return "", apierrors.BadRequest("manifest body is not valid JSON: %v", err)
	}
	if p.MediaType == "" {
		return string(types.OCIManifestSchema1), nil
	}
	switch types.MediaType(p.MediaType) {
	case types.OCIManifestSchema1, types.OCIImageIndex:
		return p.MediaType, nil
	}
	switch p.MediaType {
	case mediaTypeDockerManifest, mediaTypeDockerManifestList:
		return p.MediaType, nil
	}
	return "", apierrors.New(apierrors.KindUnsupportedMedia, "unrecognized manifest media type: "+p.MediaType)
}

type manifestMeta struct {
	subject      *v1.Hash
	artifactType string
}

// validateManifest implements the §4.6 validation rules: schemaVersion
// must be 2 (B5), and every descriptor's size must be >= 0 (B6).
func validateManifest(mediaType string, body []byte) (manifestMeta, error) {
	switch types.MediaType(mediaType) {
	case types.OCIManifestSchema1:
		var man imagespec.Manifest
		if err := json.Unmarshal(body, &man); err != nil {
			return manifestMeta{}, apierrors.BadRequest("invalid OCI manifest: %v", err)
		}
		if man.SchemaVersion != 2 {
			return manifestMeta{}, apierrors.BadRequest("manifest schemaVersion must be 2, got %d", man.SchemaVersion)
		}
		descs := append([]imagespec.Descriptor{man.Config}, man.Layers...)
		for _, d := range descs {
			if d.Size < 0 {
				return manifestMeta{}, apierrors.BadRequest("descriptor size must be >= 0, got %d", d.Size)
			}
		}
		meta := manifestMeta{artifactType: man.ArtifactType}
		if man.Subject != nil {
			if man.Subject.Size < 0 {
				return manifestMeta{}, apierrors.BadRequest("subject descriptor size must be >= 0, got %d", man.Subject.Size)
			}
			h, err := ParseDigest(string(man.Subject.Digest))
			if err != nil {
				return manifestMeta{}, err
			}
			meta.subject = &h
		}
		return meta, nil

	case types.OCIImageIndex:
		var idx imagespec.Index
		if err := json.Unmarshal(body, &idx); err != nil {
			return manifestMeta{}, apierrors.BadRequest("invalid OCI index: %v", err)
		}
		if idx.SchemaVersion != 2 {
			return manifestMeta{}, apierrors.BadRequest("manifest schemaVersion must be 2, got %d", idx.SchemaVersion)
		}
		for _, d := range idx.Manifests {
			if d.Size < 0 {
				return manifestMeta{}, apierrors.BadRequest("descriptor size must be >= 0, got %d", d.Size)
			}
		}
		return manifestMeta{artifactType: idx.ArtifactType}, nil
	}

	// Docker v2 manifest/manifest-list: same descriptor shape, validated
	// generically since opencontainers/image-spec has no struct for them.
	var generic struct {
		SchemaVersion int `json:"schemaVersion"`
		Config        struct {
			Size int64 `json:"size"`
		} `json:"config"`
		Layers []struct {
			Size int64 `json:"size"`
		} `json:"layers"`
		Manifests []struct {
			Size int64 `json:"size"`
		} `json:"manifests"`
	}
	if err := json.Unmarshal(body, &generic); err != nil {
		return manifestMeta{}, apierrors.BadRequest("invalid Docker manifest: %v", err)
	}
	if generic.SchemaVersion != 2 {
		return manifestMeta{}, apierrors.BadRequest("manifest schemaVersion must be 2, got %d", generic.SchemaVersion)
	}
	if generic.Config.Size < 0 {
		return manifestMeta{}, apierrors.BadRequest("descriptor size must be >= 0, got %d", generic.Config.Size)
	}
	for _, d := range generic.Layers {
		if d.Size < 0 {
			return manifestMeta{}, apierrors.BadRequest("descriptor size must be >= 0, got %d", d.Size)
		}
	}
	for _, d := range generic.Manifests {
		if d.Size < 0 {
			return manifestMeta{}, apierrors.BadRequest("descriptor size must be >= 0, got %d", d.Size)
		}
	}
	return manifestMeta{}, nil
}
