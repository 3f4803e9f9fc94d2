package runner

import (
	"testing"
	"time"

	"bencher/internal/apierrors"
	"bencher/internal/model"
)

func TestIssueAndVerifyTokenRoundTrip(t *testing.T) {
	key := []byte("test-hmac-key")
	token, err := IssueToken(key, model.RunnerID(7), "runner-uuid", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	id, uuid, err := VerifyToken(key, token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if id != model.RunnerID(7) || uuid != "runner-uuid" {
		t.Fatalf("VerifyToken() = (%v, %v), want (7, runner-uuid)", id, uuid)
	}
}

func TestVerifyTokenRejectsTamperedSignature(t *testing.T) {
	key := []byte("test-hmac-key")
	token, err := IssueToken(key, model.RunnerID(1), "u", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	tampered := token[:len(token)-2] + "xx"

	_, _, err = VerifyToken(key, tampered)
	if apierrors.KindOf(err) != apierrors.KindUnauthorized {
		t.Fatalf("VerifyToken(tampered) kind = %v, want Unauthorized", apierrors.KindOf(err))
	}
}

func TestVerifyTokenRejectsWrongKey(t *testing.T) {
	token, err := IssueToken([]byte("key-a"), model.RunnerID(1), "u", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	_, _, err = VerifyToken([]byte("key-b"), token)
	if apierrors.KindOf(err) != apierrors.KindUnauthorized {
		t.Fatalf("VerifyToken(wrong key) kind = %v, want Unauthorized", apierrors.KindOf(err))
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	key := []byte("test-hmac-key")
	token, err := IssueToken(key, model.RunnerID(1), "u", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	_, _, err = VerifyToken(key, token)
	if apierrors.KindOf(err) != apierrors.KindUnauthorized {
		t.Fatalf("VerifyToken(expired) kind = %v, want Unauthorized", apierrors.KindOf(err))
	}
}

func TestHashAndCheckSecret(t *testing.T) {
	hash, err := HashSecret("correct-horse-battery-staple", 4)
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if !CheckSecret(hash, "correct-horse-battery-staple") {
		t.Fatal("CheckSecret() = false, want true for matching secret")
	}
	if CheckSecret(hash, "wrong-secret") {
		t.Fatal("CheckSecret() = true, want false for non-matching secret")
	}
}
