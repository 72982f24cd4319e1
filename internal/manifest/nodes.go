package manifest

import (
	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/qmuntal/gltf"

	"tilebatch/internal/geometry"
)

type meshInstance struct {
	mesh      int
	transform dmat.T
}

// meshInstances walks the node hierarchy and returns every mesh reference
// with its accumulated glTF-space transform. Descriptors without nodes fall
// back to one identity instance per mesh.
func meshInstances(doc *gltf.Document) []meshInstance {
	if len(doc.Nodes) == 0 {
		out := make([]meshInstance, len(doc.Meshes))
		for i := range doc.Meshes {
			out[i] = meshInstance{mesh: i, transform: geometry.Identity()}
		}
		return out
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, node := range doc.Nodes {
		for _, child := range node.Children {
			if int(child) < len(doc.Nodes) {
				isChild[child] = true
			}
		}
	}

	var out []meshInstance
	visited := make([]bool, len(doc.Nodes))
	var walk func(idx int, parent dmat.T)
	walk = func(idx int, parent dmat.T) {
		if idx < 0 || idx >= len(doc.Nodes) || visited[idx] {
			return
		}
		visited[idx] = true
		node := doc.Nodes[idx]
		local := localTransform(node)
		var world dmat.T
		world.AssignMul(&parent, &local)
		if node.Mesh != nil && int(*node.Mesh) < len(doc.Meshes) {
			out = append(out, meshInstance{mesh: int(*node.Mesh), transform: world})
		}
		for _, child := range node.Children {
			walk(int(child), world)
		}
	}
	for idx := range doc.Nodes {
		if !isChild[idx] {
			walk(idx, geometry.Identity())
		}
	}
	return out
}

var identityMatrix = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// localTransform prefers an explicit non-identity matrix and otherwise
// composes translation, rotation, and scale. Zero rotation and scale are
// treated as their glTF defaults.
func localTransform(node *gltf.Node) dmat.T {
	if node.Matrix != identityMatrix && node.Matrix != ([16]float32{}) {
		var m [16]float64
		for i, v := range node.Matrix {
			m[i] = float64(v)
		}
		return geometry.FromColumnMajor(m)
	}
	var translation, scale [3]float64
	var rotation [4]float64
	for i := range node.Translation {
		translation[i] = float64(node.Translation[i])
		scale[i] = float64(node.Scale[i])
	}
	for i := range node.Rotation {
		rotation[i] = float64(node.Rotation[i])
	}
	if rotation == ([4]float64{}) {
		rotation = [4]float64{0, 0, 0, 1}
	}
	if scale == ([3]float64{}) {
		scale = [3]float64{1, 1, 1}
	}
	return geometry.Compose(translation, rotation, scale)
}
