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

const checksumsVersion = 1

// ChecksumManifest is the on-disk .checksums format, keyed by file base name.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockResult describes one `config lock` run.
type LockResult struct {
	ConfigFile   string
	ChecksumPath string
	Hash         string
	Written      bool
}

// ComputeBlake3Hash returns the hex BLAKE3 digest of the file at path.
func ComputeBlake3Hash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyFileHash fails when the file at path no longer hashes to expected.
func VerifyFileHash(path, expected string) error {
	actual, err := ComputeBlake3Hash(path)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(path), expected, actual)
	}
	return nil
}

// LockConfig pins the config file at path in the .checksums manifest beside it.
// Entries for other files already in the manifest are kept. With dryRun the
// hash is computed but nothing is written.
func LockConfig(path string, dryRun bool) (*LockResult, error) {
	dir := filepath.Dir(path)
	res := &LockResult{
		ConfigFile:   filepath.Base(path),
		ChecksumPath: filepath.Join(dir, ChecksumsFile),
	}

	hash, err := ComputeBlake3Hash(path)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", res.ConfigFile, err)
	}
	res.Hash = hash
	if dryRun {
		return res, nil
	}

	manifest, err := LoadChecksums(dir)
	if errors.Is(err, os.ErrNotExist) {
		manifest = &ChecksumManifest{Version: checksumsVersion, Hashes: map[string]string{}}
	} else if err != nil {
		return nil, err
	}
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	manifest.Hashes[res.ConfigFile] = hash

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(res.ChecksumPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	res.Written = true
	return res, nil
}

// LoadChecksums reads the .checksums file in dir. A missing file wraps
// os.ErrNotExist.
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checksums file not found (run 'sentinel-relay config lock'): %w", err)
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != checksumsVersion {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	if manifest.Hashes == nil {
		manifest.Hashes = map[string]string{}
	}
	return &manifest, nil
}
