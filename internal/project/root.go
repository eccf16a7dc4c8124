// Package project locates the site root a command operates on.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schaermu/docsync/internal/adopt"
	"github.com/schaermu/docsync/internal/manifest"
)

// FindRoot walks up the directory tree from start looking for a manifest or
// a known site layout. When neither is found, the absolute form of start is
// returned.
func FindRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}

	dir := abs
	for {
		if isRoot(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the filesystem root
			return abs, nil
		}
		dir = parent
	}
}

func isRoot(dir string) bool {
	if info, err := os.Stat(manifest.Path(dir)); err == nil && info.Mode().IsRegular() {
		return true
	}
	_, ok := adopt.Detect(dir)
	return ok
}
