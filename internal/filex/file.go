// Package filex holds small filesystem helpers: working directories and
// atomic publication of finished files.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// EnsureDir creates dir (relative paths resolve against the working
// directory) and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		dir = filepath.Join(cwd, dir)
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// JobDir creates a fresh private directory under root. The returned cleanup
// removes it with everything inside.
func JobDir(root string) (string, func(), error) {
	root, err := EnsureDir(root)
	if err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(root, "job-")
	if err != nil {
		return "", nil, fmt.Errorf("create job dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// Publish moves a finished temporary file into place.
func Publish(tmp, dest string) error {
	if runtime.GOOS == "windows" {
		_ = os.Remove(dest)
	}
	return os.Rename(tmp, dest)
}

// WriteFileAtomic writes data to a temporary file next to dest, syncs it and
// renames it over dest, so readers see either the old or the new content.
func WriteFileAtomic(dest string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := Publish(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
