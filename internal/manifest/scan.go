package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Source is one descriptor found by Scan.
type Source struct {
	ID   string
	Path string
}

// TileID derives the tile identifier from a descriptor path relative to the
// scan root: the slash-separated path without extension, NFC-normalized so
// the same name written by different tools compares equal.
func TileID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return norm.NFC.String(filepath.ToSlash(rel))
}

// Scan lists descriptors under dir matching pattern, sorted by tile ID.
// Subdirectories are visited only when recursive is set.
func Scan(dir, pattern string, recursive bool) ([]Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scan tiles: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan tiles: %s is not a directory", dir)
	}

	var sources []Source
	seen := make(map[string]string)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		matched, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
		if !matched {
			return nil
		}
		id := TileID(dir, path)
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("tile id %q is shared by %s and %s", id, prev, path)
		}
		seen[id] = path
		sources = append(sources, Source{ID: id, Path: path})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan tiles: %w", walkErr)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources, nil
}

// IDs returns the identifiers of sources in order.
func IDs(sources []Source) []string {
	ids := make([]string, len(sources))
	for i, src := range sources {
		ids[i] = src.ID
	}
	return ids
}
