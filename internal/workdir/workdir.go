// Package workdir manages the scratch directory a build runs in. Each run
// gets its own directory; cleanup is skipped when the user wants to inspect
// the build tree afterwards.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// WorkDir is one per-run scratch directory.
type WorkDir struct {
	Path string
	Keep bool
}

// Create makes a fresh scratch directory under the system temp dir, named
// after the current process so concurrent runs don't collide.
func Create(keep bool) (*WorkDir, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("tkgforge-%d", os.Getpid()))

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	return &WorkDir{Path: path, Keep: keep}, nil
}

// At opens an existing scratch directory without creating it.
func At(path string, keep bool) *WorkDir {
	return &WorkDir{Path: path, Keep: keep}
}

// LinuxTKG returns where the linux-tkg checkout copy lives inside the
// scratch tree.
func (w *WorkDir) LinuxTKG() string {
	return filepath.Join(w.Path, "linux-tkg")
}

// WineTKG returns where the wine-tkg checkout copy lives inside the scratch
// tree.
func (w *WorkDir) WineTKG() string {
	return filepath.Join(w.Path, "wine-tkg-git")
}

// KernelSources returns where unpacked kernel trees live inside the scratch
// tree.
func (w *WorkDir) KernelSources() string {
	return filepath.Join(w.Path, "sources")
}

// Cleanup removes the scratch tree unless Keep is set.
func (w *WorkDir) Cleanup() error {
	if w.Keep {
		return nil
	}
	if err := os.RemoveAll(w.Path); err != nil {
		return fmt.Errorf("failed to remove work directory: %w", err)
	}
	return nil
}
