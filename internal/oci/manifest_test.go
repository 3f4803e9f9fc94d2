package oci

import (
	"context"
	"encoding/json"
	"testing"

	"bencher/internal/apierrors"
)

func TestManifestsPutAndGetByTag(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	m := NewManifests(backend)

	body := []byte(`{"schemaVersion":2,"mediaType":"application/vnd.oci.image.manifest.v1+json","config":{"mediaType":"application/vnd.oci.image.config.v1+json","size":10,"digest":"sha256:` + sampleDigest + `"},"layers":[]}`)

	digest, err := m.Put(ctx, "p1", "latest", body)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rec, err := m.GetByRef(ctx, "p1", "latest")
	if err != nil {
		t.Fatalf("GetByRef(tag) error = %v", err)
	}
	if rec.Digest != digest {
		t.Fatalf("GetByRef(tag).Digest = %v, want %v", rec.Digest, digest)
	}

	rec2, err := m.GetByRef(ctx, "p1", digest.String())
	if err != nil {
		t.Fatalf("GetByRef(digest) error = %v", err)
	}
	if rec2.Digest != digest {
		t.Fatalf("GetByRef(digest).Digest = %v, want %v", rec2.Digest, digest)
	}
}

// TestManifestRejectsBadSchemaVersion covers B5.
func TestManifestRejectsBadSchemaVersion(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	m := NewManifests(backend)

	body := []byte(`{"schemaVersion":1,"mediaType":"application/vnd.oci.image.manifest.v1+json","config":{"size":0,"digest":"sha256:` + sampleDigest + `"},"layers":[]}`)
	_, err := m.Put(ctx, "p1", "bad", body)
	if apierrors.KindOf(err) != apierrors.KindBadRequest {
		t.Fatalf("Put(schemaVersion=1) kind = %v, want BadRequest", apierrors.KindOf(err))
	}
}

// TestManifestRejectsNegativeDescriptorSize covers B6.
func TestManifestRejectsNegativeDescriptorSize(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	m := NewManifests(backend)

	body := []byte(`{"schemaVersion":2,"mediaType":"application/vnd.oci.image.manifest.v1+json","config":{"size":-1,"digest":"sha256:` + sampleDigest + `"},"layers":[]}`)
	_, err := m.Put(ctx, "p1", "bad", body)
	if apierrors.KindOf(err) != apierrors.KindBadRequest {
		t.Fatalf("Put(negative size) kind = %v, want BadRequest", apierrors.KindOf(err))
	}
}

// TestManifestRejectsUnknownMediaType.
func TestManifestRejectsUnknownMediaType(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	m := NewManifests(backend)

	body := []byte(`{"schemaVersion":2,"mediaType":"application/x-not-a-real-type"}`)
	_, err := m.Put(ctx, "p1", "bad", body)
	if apierrors.KindOf(err) != apierrors.KindUnsupportedMedia {
		t.Fatalf("Put(unknown media type) kind = %v, want UnsupportedMedia", apierrors.KindOf(err))
	}
}

// TestManifestWithSubjectWritesReferrer covers P5: a manifest carrying a
// `subject` field is discoverable via list_referrers(subject.digest).
func TestManifestWithSubjectWritesReferrer(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	m := NewManifests(backend)

	type descriptor struct {
		MediaType string `json:"mediaType"`
		Size      int64  `json:"size"`
		Digest    string `json:"digest"`
	}
	type manifest struct {
		SchemaVersion int        `json:"schemaVersion"`
		MediaType     string     `json:"mediaType"`
		ArtifactType  string     `json:"artifactType,omitempty"`
		Config        descriptor `json:"config"`
		Layers        []descriptor
		Subject       *descriptor `json:"subject,omitempty"`
	}

	subjectDigest := "sha256:" + sampleDigest
	man := manifest{
		SchemaVersion: 2,
		MediaType:     "application/vnd.oci.image.manifest.v1+json",
		ArtifactType:  "application/vnd.example.attestation+json",
		Config:        descriptor{MediaType: "application/vnd.oci.image.config.v1+json", Size: 2, Digest: subjectDigest},
		Subject:       &descriptor{MediaType: "application/vnd.oci.image.manifest.v1+json", Size: 100, Digest: subjectDigest},
	}
	body, err := json.Marshal(man)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	digest, err := m.Put(ctx, "p1", "attestation", body)
	if err != nil {
		t.Fatalf("Put(with subject) error = %v", err)
	}

	subjectHash, err := ParseDigest(subjectDigest)
	if err != nil {
		t.Fatalf("ParseDigest() error = %v", err)
	}
	referrers, err := m.ListReferrers(ctx, "p1", subjectHash, "")
	if err != nil {
		t.Fatalf("ListReferrers() error = %v", err)
	}
	if len(referrers) != 1 || referrers[0].Digest != digest {
		t.Fatalf("ListReferrers() = %+v, want one descriptor with digest %v", referrers, digest)
	}
}

const sampleDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85"
