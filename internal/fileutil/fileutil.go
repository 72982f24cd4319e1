package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Identity is the cheap metadata identity of a file: absolute path, size, and
// modification time in nanoseconds. Two files with equal identities are
// treated as the same content.
type Identity struct {
	Path    string
	Size    int64
	ModTime int64
}

// Stat resolves path to an absolute path and returns its identity.
func Stat(path string) (Identity, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Identity{}, fmt.Errorf("resolve %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Identity{}, err
	}
	if info.IsDir() {
		return Identity{}, fmt.Errorf("%s is a directory", abs)
	}
	return Identity{Path: abs, Size: info.Size(), ModTime: info.ModTime().UnixNano()}, nil
}

// WriteFileAtomic writes data to a temp file beside path, fsyncs it, and
// renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomic streams content produced by write into a temp file beside path
// and renames it into place once the data is synced.
func WriteAtomic(path string, perm os.FileMode, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(stage string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%s temp file: %w", stage, err)
	}
	if err := write(tmp); err != nil {
		return fail("write", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail("chmod", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	return replaceFile(tmpName, path)
}

// replaceFile renames src over dst, removing src when the rename fails.
func replaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		os.Remove(src)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// MoveAside renames path to "<path>.corrupt-<timestamp>" and returns the new
// name. A missing path is not an error and returns "".
func MoveAside(path string, now time.Time) (string, error) {
	target := fmt.Sprintf("%s.corrupt-%s", path, now.UTC().Format("20060102T150405.000000000"))
	if err := os.Rename(path, target); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("move aside %s: %w", path, err)
	}
	return target, nil
}
