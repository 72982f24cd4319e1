package scene

import (
	"context"
	"errors"
	"fmt"

	"tilebatch/internal/dedup"
	"tilebatch/internal/geometry"
)

// TextureSource and TextureHandle are shared with the registry so hosts can
// act as its binder.
type (
	TextureSource = dedup.TextureSource
	TextureHandle = dedup.TextureHandle
)

// MeshCommit is one normalized mesh with its resolved material. Material is
// nil for untextured meshes.
type MeshCommit struct {
	Mesh      geometry.Mesh
	Material  *dedup.MaterialInstance
	UVChannel int
}

// CommitRequest places one tile's meshes into a group of the scene.
type CommitRequest struct {
	TileID string
	Group  string
	Meshes []MeshCommit
}

// Validate rejects requests a host cannot place.
func (r CommitRequest) Validate() error {
	if r.TileID == "" {
		return errors.New("commit: tile id is empty")
	}
	if r.Group == "" {
		return fmt.Errorf("commit %s: group is empty", r.TileID)
	}
	if len(r.Meshes) == 0 {
		return fmt.Errorf("commit %s: no meshes", r.TileID)
	}
	for i := range r.Meshes {
		if len(r.Meshes[i].Mesh.Faces) == 0 {
			return fmt.Errorf("commit %s: mesh %s has no faces", r.TileID, r.Meshes[i].Mesh.Name)
		}
	}
	return nil
}

// Host is a destination scene. Commit makes a tile visible in the scene;
// Flush makes everything committed so far durable. Committing a tile that is
// already present replaces it.
type Host interface {
	dedup.TextureBinder
	Commit(ctx context.Context, req CommitRequest) error
	Flush(ctx context.Context) error
	// Registry returns the material table scoped to this scene.
	Registry() *dedup.Registry
}
