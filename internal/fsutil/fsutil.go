// Package fsutil holds the small set of filesystem primitives the sync engine
// relies on: atomic replacement, optional reads and rooted path joins.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ErrPathEscapes is returned when a relative path would resolve outside its root.
var ErrPathEscapes = errors.New("path escapes project root")

// WriteFileAtomic replaces path with data. The content is written to a temp
// file in the destination directory, fsynced and renamed over the target so
// readers see either the old or the new content, never a partial write.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)

	// Ensure parent directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, ".docsync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	return syncDir(dir)
}

// syncDir flushes directory metadata so a completed rename survives a crash.
// Platforms that cannot sync directories are tolerated.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() {
		_ = d.Close()
	}()
	_ = d.Sync()
	return nil
}

// ReadOptional reads path. A missing file (including one below a path
// component that is not a directory) is reported with exists=false and a nil
// error; any other failure is returned.
func ReadOptional(path string) (data []byte, exists bool, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		// A parent that is not a directory means the file cannot exist.
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// FileMode returns the permission bits of an existing file, or fallback when
// it cannot be stat'ed.
func FileMode(path string, fallback fs.FileMode) fs.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return fallback
	}
	return info.Mode().Perm()
}

// SafeJoin joins a slash-separated relative path under root and rejects
// anything absolute or containing parent references.
func SafeJoin(root, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, rel)
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrPathEscapes, rel)
		}
	}

	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, filepath.FromSlash(rel))
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, rel)
	}
	return joined, nil
}
