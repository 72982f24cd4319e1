package geometry

import (
	"fmt"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"

	"tilebatch/internal/decoder"
	"tilebatch/internal/faults"
)

// NoMaterial marks a mesh without a material slot.
const NoMaterial = -1

// Mesh is one normalized primitive in host conventions.
type Mesh struct {
	Name      string
	Positions []vec3.T
	Normals   []vec3.T
	// UVs are per-vertex with V already flipped.
	UVs   []vec2.T
	Faces [][3]uint32
	// LoopUVs holds one UV per face corner, three per face, in face order.
	LoopUVs   []vec2.T
	Transform dmat.T
	// Material indexes the tile's material references, or NoMaterial.
	Material int
}

// Geometry is the normalized content of one tile, the unit stored in the
// content cache.
type Geometry struct {
	Meshes []Mesh
}

// Drawable reports whether any mesh has at least one face.
func (g *Geometry) Drawable() bool {
	if g == nil {
		return false
	}
	for i := range g.Meshes {
		if len(g.Meshes[i].Faces) > 0 {
			return true
		}
	}
	return false
}

// Counts returns total vertices and faces.
func (g *Geometry) Counts() (vertices, faces int) {
	if g == nil {
		return 0, 0
	}
	for i := range g.Meshes {
		vertices += len(g.Meshes[i].Positions)
		faces += len(g.Meshes[i].Faces)
	}
	return vertices, faces
}

// Validate checks the mesh invariants: attribute cardinalities agree with the
// position count and every face index is in range.
func (m *Mesh) Validate() error {
	n := len(m.Positions)
	if len(m.Normals) != 0 && len(m.Normals) != n {
		return fmt.Errorf("mesh %s: %d normals for %d positions", m.Name, len(m.Normals), n)
	}
	if len(m.UVs) != 0 && len(m.UVs) != n {
		return fmt.Errorf("mesh %s: %d uvs for %d positions", m.Name, len(m.UVs), n)
	}
	if len(m.LoopUVs) != 0 && len(m.LoopUVs) != 3*len(m.Faces) {
		return fmt.Errorf("mesh %s: %d loop uvs for %d faces", m.Name, len(m.LoopUVs), len(m.Faces))
	}
	for fi, face := range m.Faces {
		for _, idx := range face {
			if int(idx) >= n {
				return fmt.Errorf("mesh %s: face %d index %d out of range for %d positions", m.Name, fi, idx, n)
			}
		}
	}
	return nil
}

// Validate checks every mesh.
func (g *Geometry) Validate() error {
	for i := range g.Meshes {
		if err := g.Meshes[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Normalize converts a raw primitive into a host mesh. transform is the
// primitive's node transform in glTF space.
func Normalize(name string, raw decoder.Primitive, transform dmat.T, material int) (Mesh, error) {
	n := len(raw.Positions)
	if len(raw.Normals) != 0 && len(raw.Normals) != n {
		return Mesh{}, faults.Wrap(faults.ErrDecode, "", "normalize", fmt.Sprintf("%s: %d normals for %d positions", name, len(raw.Normals), n), nil)
	}
	if len(raw.UVs) != 0 && len(raw.UVs) != n {
		return Mesh{}, faults.Wrap(faults.ErrDecode, "", "normalize", fmt.Sprintf("%s: %d uvs for %d positions", name, len(raw.UVs), n), nil)
	}

	faces, err := triangles(name, raw.Indices, n)
	if err != nil {
		return Mesh{}, err
	}

	mesh := Mesh{
		Name:      name,
		Positions: make([]vec3.T, n),
		Faces:     faces,
		Transform: ToHostAxes(transform),
		Material:  material,
	}
	for i, p := range raw.Positions {
		mesh.Positions[i] = vec3.T{p[0], -p[2], p[1]}
	}
	if len(raw.Normals) > 0 {
		mesh.Normals = make([]vec3.T, n)
		for i, p := range raw.Normals {
			mesh.Normals[i] = vec3.T{p[0], -p[2], p[1]}
		}
	}
	if len(raw.UVs) > 0 {
		mesh.UVs = make([]vec2.T, n)
		for i, uv := range raw.UVs {
			mesh.UVs[i] = vec2.T{uv[0], 1 - uv[1]}
		}
		mesh.LoopUVs = LoopUVs(faces, mesh.UVs)
	}
	return mesh, nil
}

// LoopUVs expands per-vertex UVs into one UV per face corner. Faces must
// already be range-checked against uvs.
func LoopUVs(faces [][3]uint32, uvs []vec2.T) []vec2.T {
	if len(uvs) == 0 {
		return nil
	}
	out := make([]vec2.T, 0, 3*len(faces))
	for _, face := range faces {
		out = append(out, uvs[face[0]], uvs[face[1]], uvs[face[2]])
	}
	return out
}

// triangles groups a flat index list into faces. A nil list yields
// sequential triangles over the vertex array.
func triangles(name string, indices []uint32, vertexCount int) ([][3]uint32, error) {
	if indices == nil {
		if vertexCount%3 != 0 {
			return nil, faults.Wrap(faults.ErrDecode, "", "normalize",
				fmt.Sprintf("%s: %d vertices cannot form sequential triangles", name, vertexCount), nil)
		}
		faces := make([][3]uint32, vertexCount/3)
		for i := range faces {
			base := uint32(i * 3)
			faces[i] = [3]uint32{base, base + 1, base + 2}
		}
		return faces, nil
	}
	if len(indices)%3 != 0 {
		return nil, faults.Wrap(faults.ErrDecode, "", "normalize",
			fmt.Sprintf("%s: index count %d is not a multiple of 3", name, len(indices)), nil)
	}
	faces := make([][3]uint32, len(indices)/3)
	for i := range faces {
		face := [3]uint32{indices[i*3], indices[i*3+1], indices[i*3+2]}
		for _, idx := range face {
			if int(idx) >= vertexCount {
				return nil, faults.Wrap(faults.ErrDecode, "", "normalize",
					fmt.Sprintf("%s: index %d out of range for %d positions", name, idx, vertexCount), nil)
			}
		}
		faces[i] = face
	}
	return faces, nil
}
