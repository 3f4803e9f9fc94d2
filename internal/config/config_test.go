package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.OCI.Backend != OCIBackendLocal {
		t.Errorf("OCI.Backend = %q, want local", cfg.OCI.Backend)
	}
	if cfg.OCI.LocalRoot == "" {
		t.Errorf("expected LocalRoot to be derived from DBPath")
	}
}

func TestLoadFromFileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bencher.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9999\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
}

func TestS3BackendRequiresBucket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bencher.yaml")
	if err := os.WriteFile(path, []byte("oci:\n  backend: s3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing s3_bucket")
	}
}
