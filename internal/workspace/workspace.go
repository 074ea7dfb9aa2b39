// Package workspace manages isolated, disposable build directories.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is an exclusively-owned directory scoped to one build attempt.
// It is never reused; concurrent builds each acquire their own.
type Workspace struct {
	dir string
}

// Acquire creates a fresh, collision-free workspace directory under parent.
// An empty parent falls back to the OS temp directory.
func Acquire(parent string) (*Workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}

	dir := filepath.Join(parent, "apk_build_"+uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
	}

	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace root directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins elements onto the workspace root.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.dir}, elem...)...)
}

// Release removes the workspace tree. It is idempotent and tolerates a
// partially or already removed directory. The returned error is for logging
// only; callers must not treat it as a build failure.
func (w *Workspace) Release() error {
	if w == nil || w.dir == "" {
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("workspace: release %s: %w", w.dir, err)
	}
	return nil
}
