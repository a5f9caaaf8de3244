package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateChecksumsDryRun(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("prover: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	report, err := GenerateChecksums(dir, []string{"config.yaml", ".env"}, true)
	if err != nil {
		t.Fatalf("GenerateChecksums() failed: %v", err)
	}
	if report.Written {
		t.Fatal("report.Written = true, want false in dry-run")
	}
	if len(report.Files) != 2 {
		t.Fatalf("len(report.Files) = %d, want 2", len(report.Files))
	}
	if !report.Files[0].Exists || len(report.Files[0].Hash) != 64 {
		t.Fatalf("config.yaml should exist with computed hash: %+v", report.Files[0])
	}
	if report.Files[1].Exists {
		t.Fatal(".env should be reported missing")
	}
	if _, err := os.Stat(report.ChecksumPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("dry run wrote %s", report.ChecksumPath)
	}
}

func TestChecksumsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("prover: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadChecksums(dir); !errors.Is(err, ErrNoChecksums) {
		t.Fatalf("LoadChecksums() before generation = %v, want ErrNoChecksums", err)
	}

	report, err := GenerateChecksums(dir, ScopeFiles(cfgPath), false)
	if err != nil {
		t.Fatalf("GenerateChecksums() failed: %v", err)
	}
	if !report.Written {
		t.Fatal("manifest not written")
	}

	manifest, err := LoadChecksums(dir)
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	if err := VerifyScopeFiles(dir, manifest, ScopeFiles(cfgPath)); err != nil {
		t.Fatalf("VerifyScopeFiles() failed: %v", err)
	}

	// A new scope file that is not in the manifest must be rejected.
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("A=1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	err = VerifyScopeFiles(dir, manifest, ScopeFiles(cfgPath))
	if err == nil || !strings.Contains(err.Error(), "no hash in checksums") {
		t.Fatalf("expected missing hash error, got %v", err)
	}

	// A listed file that disappears must be rejected.
	if err := os.Remove(cfgPath); err != nil {
		t.Fatal(err)
	}
	err = VerifyScopeFiles(dir, manifest, []string{"config.yaml"})
	if err == nil || !strings.Contains(err.Error(), "missing from disk") {
		t.Fatalf("expected missing-from-disk error, got %v", err)
	}
}

func TestLoadChecksumsRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ChecksumsFile), []byte("version: 9\nhashes: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChecksums(dir); err == nil {
		t.Fatal("expected unsupported version error")
	}
}
