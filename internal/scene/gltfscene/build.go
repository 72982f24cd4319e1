package gltfscene

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"tilebatch/internal/dedup"
	"tilebatch/internal/geometry"
)

var (
	identityMatrix  = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	defaultRotation = [4]float32{0, 0, 0, 1}
	defaultScale    = [3]float32{1, 1, 1}
)

func uint32Ptr(v uint32) *uint32 {
	return &v
}

// build assembles the whole document from the in-memory state. Caller holds
// mu.
func (s *Scene) build() (*gltf.Document, error) {
	doc := &gltf.Document{
		Asset:   gltf.Asset{Version: "2.0", Generator: generator},
		Scenes:  []*gltf.Scene{{Name: "tiles"}},
		Buffers: []*gltf.Buffer{{}},
	}
	doc.Scene = uint32Ptr(0)

	for i, tex := range s.textures {
		doc.Images = append(doc.Images, &gltf.Image{
			Name: filepath.Base(tex.Path),
			URI:  s.imageURI(tex.Path),
		})
		doc.Textures = append(doc.Textures, &gltf.Texture{Source: uint32Ptr(uint32(i))})
	}

	materials := make(map[dedup.MaterialKey]uint32)
	for _, inst := range s.registry.Instances() {
		if int(inst.Texture) < 0 || int(inst.Texture) >= len(s.textures) {
			return nil, fmt.Errorf("material %s references unbound texture %d", inst.Name, inst.Texture)
		}
		materials[inst.Key] = uint32(len(doc.Materials))
		doc.Materials = append(doc.Materials, &gltf.Material{
			Name:        inst.Name,
			DoubleSided: true,
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorTexture: &gltf.TextureInfo{Index: uint32(inst.Texture)},
			},
			Extras: map[string]interface{}{extrasMaterialKey: inst.Key.String()},
		})
	}

	groups := s.groupsLocked()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		groupNode := &gltf.Node{
			Name:     name,
			Matrix:   identityMatrix,
			Rotation: defaultRotation,
			Scale:    defaultScale,
			Extras:   map[string]interface{}{extrasGroup: name},
		}
		groupIdx := uint32(len(doc.Nodes))
		doc.Nodes = append(doc.Nodes, groupNode)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, groupIdx)

		for _, tileID := range groups[name] {
			obj := s.objects[tileID]
			tileNode := &gltf.Node{
				Name:     tileID,
				Matrix:   identityMatrix,
				Rotation: defaultRotation,
				Scale:    defaultScale,
				Extras:   map[string]interface{}{extrasTile: tileID},
			}
			tileIdx := uint32(len(doc.Nodes))
			doc.Nodes = append(doc.Nodes, tileNode)
			groupNode.Children = append(groupNode.Children, tileIdx)

			for _, mc := range obj.meshes {
				mc := mc
				var material *uint32
				if mc.Material != nil {
					idx, ok := materials[mc.Material.Key]
					if !ok {
						return nil, fmt.Errorf("tile %s: material %s not in registry", tileID, mc.Material.Name)
					}
					material = uint32Ptr(idx)
				}
				meshIdx := appendMesh(doc, &mc.Mesh, material)
				matrix := geometry.ColumnMajor(mc.Mesh.Transform)
				node := &gltf.Node{
					Name:     mc.Mesh.Name,
					Mesh:     uint32Ptr(meshIdx),
					Rotation: defaultRotation,
					Scale:    defaultScale,
				}
				for i, v := range matrix {
					node.Matrix[i] = float32(v)
				}
				tileNode.Children = append(tileNode.Children, uint32(len(doc.Nodes)))
				doc.Nodes = append(doc.Nodes, node)
			}
		}
	}

	return doc, nil
}

// appendMesh writes one mesh's attributes as separate buffer views in the
// last buffer and returns the new mesh index.
func appendMesh(doc *gltf.Document, mesh *geometry.Mesh, material *uint32) uint32 {
	positions := make([][3]float32, len(mesh.Positions))
	for i, p := range mesh.Positions {
		positions[i] = p
	}
	attributes := gltf.Attribute{gltf.POSITION: modeler.WritePosition(doc, positions)}
	if len(mesh.Normals) > 0 {
		normals := make([][3]float32, len(mesh.Normals))
		for i, n := range mesh.Normals {
			normals[i] = n
		}
		attributes[gltf.NORMAL] = modeler.WriteNormal(doc, normals)
	}
	if len(mesh.UVs) > 0 {
		uvs := make([][2]float32, len(mesh.UVs))
		for i, uv := range mesh.UVs {
			uvs[i] = uv
		}
		attributes[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, uvs)
	}
	indices := make([]uint32, 0, 3*len(mesh.Faces))
	for _, f := range mesh.Faces {
		indices = append(indices, f[0], f[1], f[2])
	}

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name: mesh.Name,
		Primitives: []*gltf.Primitive{{
			Attributes: attributes,
			Indices:    uint32Ptr(modeler.WriteIndices(doc, indices)),
			Material:   material,
			Mode:       gltf.PrimitiveTriangles,
		}},
	})
	return uint32(len(doc.Meshes) - 1)
}

// imageURI references path relative to the output directory when possible.
func (s *Scene) imageURI(path string) string {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil {
		rel = path
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func (s *Scene) imagePath(uri string) string {
	decoded, err := url.PathUnescape(uri)
	if err != nil {
		decoded = uri
	}
	p := filepath.FromSlash(decoded)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.dir, p)
}
