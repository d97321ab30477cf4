// Package local implements archive retention on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where archives are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes archives to the local filesystem.
type BlobStore struct {
	baseDir string
}

// New creates a local filesystem-backed blob store. The base directory
// is created if missing and probed for writability so misconfiguration
// fails at startup, not mid-run.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("remove probe file: %w", err)
	}

	return &BlobStore{baseDir: cfg.BaseDir}, nil
}

// PutObject writes data under the base directory and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}

	fullPath := filepath.Join(s.baseDir, path)
	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}

	if err := os.MkdirAll(filepath.Dir(cleanFull), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(cleanFull, data, 0o640); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}

	abs, err := filepath.Abs(cleanFull)
	if err != nil {
		return "", fmt.Errorf("resolve object path: %w", err)
	}
	return "file://" + abs, nil
}
