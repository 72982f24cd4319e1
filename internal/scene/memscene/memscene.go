// Package memscene is an in-memory destination scene used by tests and dry
// runs.
package memscene

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tilebatch/internal/dedup"
	"tilebatch/internal/faults"
	"tilebatch/internal/scene"
)

// Options injects failures for tests.
type Options struct {
	// FailCommit returns a non-nil error to reject a tile's commit.
	FailCommit func(req scene.CommitRequest) error
	// FailBind returns a non-nil error to reject a texture binding.
	FailBind func(src scene.TextureSource) error
	// FailFlush is returned by every Flush when set.
	FailFlush error
}

// Object is one committed tile.
type Object struct {
	TileID string
	Group  string
	Meshes []scene.MeshCommit
}

// Scene holds groups of objects keyed by tile id plus the bound textures.
type Scene struct {
	opts     Options
	registry *dedup.Registry

	mu       sync.Mutex
	objects  map[string]*Object
	textures []scene.TextureSource
	commits  []string
	flushed  map[string]bool
	flushes  int
}

var _ scene.Host = (*Scene)(nil)

// New returns an empty scene.
func New(opts Options) *Scene {
	s := &Scene{
		opts:    opts,
		objects: make(map[string]*Object),
		flushed: make(map[string]bool),
	}
	s.registry = dedup.NewRegistry(s)
	return s
}

// Registry returns the scene's material table.
func (s *Scene) Registry() *dedup.Registry {
	return s.registry
}

// BindTexture records the texture and returns its index.
func (s *Scene) BindTexture(_ context.Context, src scene.TextureSource) (scene.TextureHandle, error) {
	if s.opts.FailBind != nil {
		if err := s.opts.FailBind(src); err != nil {
			return 0, faults.Wrap(faults.ErrHostCommit, "", "bind texture", src.Path, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textures = append(s.textures, src)
	return scene.TextureHandle(len(s.textures) - 1), nil
}

// Commit places the tile, replacing any previous object for it.
func (s *Scene) Commit(ctx context.Context, req scene.CommitRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return faults.Wrap(faults.ErrHostCommit, req.TileID, "commit", "", err)
	}
	if s.opts.FailCommit != nil {
		if err := s.opts.FailCommit(req); err != nil {
			return faults.Wrap(faults.ErrHostCommit, req.TileID, "commit", "", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range req.Meshes {
		if m.Material != nil && (int(m.Material.Texture) < 0 || int(m.Material.Texture) >= len(s.textures)) {
			return faults.Wrap(faults.ErrHostCommit, req.TileID, "commit", fmt.Sprintf("texture handle %d not bound in this scene", m.Material.Texture), nil)
		}
	}
	meshes := make([]scene.MeshCommit, len(req.Meshes))
	copy(meshes, req.Meshes)
	s.objects[req.TileID] = &Object{TileID: req.TileID, Group: req.Group, Meshes: meshes}
	s.commits = append(s.commits, req.TileID)
	delete(s.flushed, req.TileID)
	return nil
}

// Flush marks every committed object durable.
func (s *Scene) Flush(context.Context) error {
	if s.opts.FailFlush != nil {
		return faults.Wrap(faults.ErrHostCommit, "", "flush", "", s.opts.FailFlush)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.objects {
		s.flushed[id] = true
	}
	s.flushes++
	return nil
}

// Object returns the committed object for a tile.
func (s *Scene) Object(tileID string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[tileID]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

// Groups returns group names mapped to their tile ids, both sorted.
func (s *Scene) Groups() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string)
	for id, obj := range s.objects {
		out[obj.Group] = append(out[obj.Group], id)
	}
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out
}

// Commits returns tile ids in commit order, including repeated commits.
func (s *Scene) Commits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commits...)
}

// Flushed reports whether the tile's latest commit has been flushed.
func (s *Scene) Flushed(tileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushed[tileID]
}

// Flushes counts Flush calls.
func (s *Scene) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Textures returns every bound texture in binding order.
func (s *Scene) Textures() []scene.TextureSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scene.TextureSource(nil), s.textures...)
}

// Len returns the number of committed objects.
func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
