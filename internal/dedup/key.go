package dedup

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tilebatch/internal/faults"
	"tilebatch/internal/fileutil"
)

// MaterialKey is the canonical identity of a texture asset.
type MaterialKey struct {
	Path    string
	Size    int64
	ModTime int64
}

// KeyFor stats the texture at path. A missing file is a MissingAssetError.
func KeyFor(path string) (MaterialKey, error) {
	id, err := fileutil.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return MaterialKey{}, faults.Wrap(faults.ErrMissingAsset, "", "texture", fmt.Sprintf("texture %s not found", path), nil)
		}
		return MaterialKey{}, faults.Wrap(faults.ErrMissingAsset, "", "texture", "stat texture", err)
	}
	return MaterialKey{Path: id.Path, Size: id.Size, ModTime: id.ModTime}, nil
}

// String renders the key as "size:mtime:path", the form persisted by hosts.
func (k MaterialKey) String() string {
	return strconv.FormatInt(k.Size, 10) + ":" + strconv.FormatInt(k.ModTime, 10) + ":" + k.Path
}

// ParseKey reverses MaterialKey.String.
func ParseKey(value string) (MaterialKey, error) {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return MaterialKey{}, fmt.Errorf("invalid material key %q", value)
	}
	size, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return MaterialKey{}, fmt.Errorf("invalid material key size %q: %w", parts[0], err)
	}
	mtime, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return MaterialKey{}, fmt.Errorf("invalid material key mtime %q: %w", parts[1], err)
	}
	return MaterialKey{Path: parts[2], Size: size, ModTime: mtime}, nil
}
