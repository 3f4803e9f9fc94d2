package runner

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bencher/internal/apierrors"
	"bencher/internal/model"
)

// claims are the HMAC-protected payload carried on a runner token (spec.md
// §4.5 "a runner token whose claims include runner ID/UUID"). The wire
// token is base64(claimsJSON) + "." + base64(hmac(claimsJSON)); the server
// both issues and verifies these, so the claims are never trusted on their
// own (SPEC_FULL.md §4.5).
type claims struct {
	RunnerID   model.RunnerID `json:"runner_id"`
	RunnerUUID string         `json:"runner_uuid"`
	ExpiresAt  int64          `json:"expires_at"`
}

// IssueToken mints a fresh runner token. The returned secret is what the
// runner presents on every connection; only its bcrypt hash is persisted
// (spec.md's runner.token_hash column).
func IssueToken(hmacKey []byte, runnerID model.RunnerID, runnerUUID string, ttl time.Duration) (string, error) {
	c := claims{RunnerID: runnerID, RunnerUUID: runnerUUID, ExpiresAt: time.Now().Add(ttl).Unix()}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", apierrors.Internal(err, "encoding runner token claims")
	}
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(payload)
	sig := mac.Sum(nil)

	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// VerifyToken checks a token's HMAC and expiry and returns its claims.
func VerifyToken(hmacKey []byte, token string) (model.RunnerID, string, error) {
	dot := -1
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return 0, "", apierrors.New(apierrors.KindUnauthorized, "malformed runner token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return 0, "", apierrors.New(apierrors.KindUnauthorized, "malformed runner token payload")
	}
	sig, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return 0, "", apierrors.New(apierrors.KindUnauthorized, "malformed runner token signature")
	}

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return 0, "", apierrors.New(apierrors.KindUnauthorized, "runner token signature mismatch")
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return 0, "", apierrors.New(apierrors.KindUnauthorized, "malformed runner token claims")
	}
	if time.Now().Unix() > c.ExpiresAt {
		return 0, "", apierrors.New(apierrors.KindUnauthorized, "runner token expired")
	}
	return c.RunnerID, c.RunnerUUID, nil
}

// HashSecret bcrypt-hashes a freshly issued runner secret for storage in
// runner.token_hash.
func HashSecret(secret string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", apierrors.Internal(err, "hashing runner secret")
	}
	return string(h), nil
}

// CheckSecret compares a freshly issued secret against its stored hash.
func CheckSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
