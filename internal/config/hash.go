package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumsFile is the manifest name written next to the config file.
const ChecksumsFile = ".checksums"

// ErrNoChecksums is returned by LoadChecksums when no manifest exists.
var ErrNoChecksums = errors.New("checksums file not found (run 'nexus-cli config hash-update')")

// ChecksumManifest maps file basenames in a config directory to BLAKE3 hashes.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// HashUpdateFileResult captures checksum generation outcome for a scope file.
type HashUpdateFileResult struct {
	Filename string
	Path     string
	Exists   bool
	Hash     string
}

// HashUpdateReport captures checksum generation details for a config directory.
type HashUpdateReport struct {
	ConfigDir    string
	ChecksumPath string
	Written      bool
	Files        []HashUpdateFileResult
}

// ScopeFiles lists the files covered by the manifest for a config file.
func ScopeFiles(configPath string) []string {
	return []string{filepath.Base(configPath), ".env"}
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actual, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actual)
	}
	return nil
}

// GenerateChecksums hashes the scope files in configDir and writes the manifest.
// With dryRun set, nothing is written.
func GenerateChecksums(configDir string, scopeFiles []string, dryRun bool) (*HashUpdateReport, error) {
	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string),
	}
	report := &HashUpdateReport{
		ConfigDir:    configDir,
		ChecksumPath: filepath.Join(configDir, ChecksumsFile),
		Files:        make([]HashUpdateFileResult, 0, len(scopeFiles)),
	}

	for _, name := range scopeFiles {
		path := filepath.Join(configDir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			report.Files = append(report.Files, HashUpdateFileResult{Filename: name, Path: path})
			continue
		}

		sum, err := ComputeBlake3Hash(path)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", name, err)
		}
		manifest.Hashes[name] = sum
		report.Files = append(report.Files, HashUpdateFileResult{Filename: name, Path: path, Exists: true, Hash: sum})
	}

	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	// Restrictive permissions: the manifest is what tampering would target.
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the manifest from a config directory.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoChecksums
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// VerifyScopeFiles checks every existing scope file against the manifest.
// A file listed in the manifest but missing from disk is also an error.
func VerifyScopeFiles(configDir string, manifest *ChecksumManifest, scopeFiles []string) error {
	for _, name := range scopeFiles {
		path := filepath.Join(configDir, name)

		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if _, listed := manifest.Hashes[name]; listed {
				return fmt.Errorf("scope file %s is in checksums but missing from disk", name)
			}
			continue
		}

		expected, ok := manifest.Hashes[name]
		if !ok {
			return fmt.Errorf("scope file %s has no hash in checksums (run 'nexus-cli config hash-update')", name)
		}
		if err := VerifyFileHash(path, expected); err != nil {
			return fmt.Errorf("scope file verification failed: %w\n"+
				"If you edited this file intentionally, run: nexus-cli config hash-update", err)
		}
	}
	return nil
}
