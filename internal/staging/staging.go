// Package staging manages per-run scratch directories for downloaded
// asset bytes. Every run gets its own namespace, so concurrent runs
// never interfere with each other's staged files.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Area is one run's staging directory. It is torn down after archive
// completion unless the run was configured to retain it for debugging.
type Area struct {
	dir string
}

// NewArea creates a fresh staging directory under baseDir (the OS temp
// directory when empty), namespaced by a generated identifier.
func NewArea(baseDir string) (*Area, error) {
	if strings.TrimSpace(baseDir) == "" {
		baseDir = os.TempDir()
	}
	dir := filepath.Join(baseDir, "bundler-staging", uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Area{dir: dir}, nil
}

// Dir returns the absolute staging directory path.
func (a *Area) Dir() string {
	return a.dir
}

// Save writes one staged file. Names resolving outside the area are
// rejected.
func (a *Area) Save(name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("staged file name is required")
	}
	full := filepath.Join(a.dir, name)
	if !strings.HasPrefix(filepath.Clean(full), a.dir+string(filepath.Separator)) {
		return fmt.Errorf("staged file name escapes staging dir: %s", name)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return fmt.Errorf("write staged file %s: %w", name, err)
	}
	return nil
}

// Remove deletes the area and everything staged in it.
func (a *Area) Remove() error {
	if err := os.RemoveAll(a.dir); err != nil {
		return fmt.Errorf("remove staging dir: %w", err)
	}
	return nil
}
