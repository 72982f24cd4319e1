package gltfscene

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/qmuntal/gltf"

	"tilebatch/internal/dedup"
	"tilebatch/internal/faults"
	"tilebatch/internal/fileutil"
	"tilebatch/internal/logging"
	"tilebatch/internal/scene"
)

const (
	extrasTile        = "tile"
	extrasGroup       = "group"
	extrasMaterialKey = "material_key"
	generator         = "tilebatch"
)

// Options configures a Scene.
type Options struct {
	Logger *slog.Logger
}

type object struct {
	tileID string
	group  string
	meshes []scene.MeshCommit
}

// Scene is a glTF-backed destination scene.
type Scene struct {
	path     string
	dir      string
	logger   *slog.Logger
	registry *dedup.Registry

	mu       sync.Mutex
	textures []scene.TextureSource
	objects  map[string]*object
	dirty    bool
}

var _ scene.Host = (*Scene)(nil)

// Open prepares a scene writing to path. An existing file is loaded so its
// groups, tiles, and materials carry over; a file that cannot be read is an
// error rather than something to overwrite.
func Open(ctx context.Context, path string, opts Options) (*Scene, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "", "open scene", "resolve output path", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scene{
		path:    abs,
		dir:     filepath.Dir(abs),
		logger:  logging.NewComponentLogger(logger, "gltfscene"),
		objects: make(map[string]*object),
	}
	s.registry = dedup.NewRegistry(s)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "", "open scene", "create output directory", err)
	}

	if _, err := os.Stat(abs); err == nil {
		doc, err := gltf.Open(abs)
		if err != nil {
			return nil, faults.Wrap(faults.ErrConfiguration, "", "open scene", "read existing output "+abs, err)
		}
		if err := s.load(ctx, doc); err != nil {
			return nil, faults.Wrap(faults.ErrConfiguration, "", "open scene", "load existing output "+abs, err)
		}
		s.logger.Info("extending existing scene",
			logging.String(logging.FieldEventType, "scene_loaded"),
			logging.String("path", abs),
			logging.Int("tiles", len(s.objects)),
			logging.Int("materials", s.registry.Len()),
		)
	} else if !os.IsNotExist(err) {
		return nil, faults.Wrap(faults.ErrConfiguration, "", "open scene", "stat output", err)
	}
	return s, nil
}

// Path returns the output file.
func (s *Scene) Path() string {
	return s.path
}

// Registry returns the scene's material table.
func (s *Scene) Registry() *dedup.Registry {
	return s.registry
}

// BindTexture adds a texture and image for src and returns the texture
// index.
func (s *Scene) BindTexture(_ context.Context, src scene.TextureSource) (scene.TextureHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textures = append(s.textures, src)
	s.dirty = true
	return scene.TextureHandle(len(s.textures) - 1), nil
}

// Commit records the tile for the next Flush, replacing a previous commit
// of the same tile.
func (s *Scene) Commit(ctx context.Context, req scene.CommitRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return faults.Wrap(faults.ErrHostCommit, req.TileID, "commit", "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range req.Meshes {
		if m.Material == nil {
			continue
		}
		if h := int(m.Material.Texture); h < 0 || h >= len(s.textures) {
			return faults.Wrap(faults.ErrHostCommit, req.TileID, "commit", fmt.Sprintf("texture handle %d not bound in this scene", h), nil)
		}
	}
	meshes := make([]scene.MeshCommit, len(req.Meshes))
	copy(meshes, req.Meshes)
	s.objects[req.TileID] = &object{tileID: req.TileID, group: req.Group, meshes: meshes}
	s.dirty = true
	return nil
}

// Flush rewrites the output file atomically when anything changed.
func (s *Scene) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	doc, err := s.build()
	if err != nil {
		return faults.Wrap(faults.ErrHostCommit, "", "flush", "build document", err)
	}
	err = fileutil.WriteAtomic(s.path, 0o644, func(w io.Writer) error {
		enc := gltf.NewEncoder(w)
		enc.AsBinary = true
		return enc.Encode(doc)
	})
	if err != nil {
		return faults.Wrap(faults.ErrHostCommit, "", "flush", "write "+s.path, err)
	}
	s.dirty = false
	s.logger.Debug("scene written",
		logging.String(logging.FieldEventType, "scene_flush"),
		logging.Int("tiles", len(s.objects)),
		logging.Int("textures", len(s.textures)),
	)
	return nil
}

// Len returns the number of tiles in the scene.
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Groups returns group names mapped to their sorted tile ids.
func (s *Scene) Groups() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupsLocked()
}

func (s *Scene) groupsLocked() map[string][]string {
	out := make(map[string][]string)
	for id, obj := range s.objects {
		out[obj.group] = append(out[obj.group], id)
	}
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out
}

// Textures returns the bound textures in handle order.
func (s *Scene) Textures() []scene.TextureSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scene.TextureSource(nil), s.textures...)
}

// Meshes returns the committed meshes of a tile.
func (s *Scene) Meshes(tileID string) ([]scene.MeshCommit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[tileID]
	if !ok {
		return nil, false
	}
	return append([]scene.MeshCommit(nil), obj.meshes...), true
}
