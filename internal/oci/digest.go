// Package oci implements the OCI Distribution registry subset described
// in spec.md §4.6/§6: content-addressed blob storage with resumable
// uploads, manifest validation and a referrers index, backed by either a
// local filesystem or S3 object store.
package oci

import (
	"crypto/sha256"
	"hash"
	"io"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"bencher/internal/apierrors"
)

// ParseDigest validates a "sha256:<hex>"-shaped digest string using
// go-containerregistry's own Hash type (a direct teacher dependency), so
// Bencher's digest grammar stays bit-for-bit compatible with the rest of
// the OCI ecosystem.
func ParseDigest(s string) (v1.Hash, error) {
	h, err := v1.NewHash(s)
	if err != nil {
		return v1.Hash{}, apierrors.BadRequest("invalid digest %q: %v", s, err)
	}
	return h, nil
}

// digestPath returns the storage-relative path segment for a digest, per
// spec.md §6's persisted state layout: <algo>/<hex>.
func digestPath(h v1.Hash) string {
	return h.Algorithm + "/" + h.Hex
}

// Hasher streams bytes into a digest accumulator. Only sha256 is
// supported, matching the one algorithm spec.md's examples ever name.
type Hasher struct {
	h hash.Hash
}

func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (d *Hasher) Write(p []byte) (int, error) { return d.h.Write(p) }

func (d *Hasher) Digest() v1.Hash {
	return v1.Hash{Algorithm: "sha256", Hex: hexEncode(d.h.Sum(nil))}
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

// DigestReader computes the sha256 digest of r's full contents, per P4
// ("recomputing the digest of stored bytes yields the expected digest").
func DigestReader(r io.Reader) (v1.Hash, int64, error) {
	h := NewHasher()
	n, err := io.Copy(h, r)
	if err != nil {
		return v1.Hash{}, 0, apierrors.Internal(err, "hashing blob contents")
	}
	return h.Digest(), n, nil
}
