package gltfscene

import (
	"context"
	"fmt"

	"github.com/qmuntal/gltf"

	"tilebatch/internal/decoder"
	"tilebatch/internal/dedup"
	"tilebatch/internal/geometry"
	"tilebatch/internal/manifest"
	"tilebatch/internal/scene"
)

// load rebuilds textures, registry entries, and objects from a document
// previously written by build.
func (s *Scene) load(ctx context.Context, doc *gltf.Document) error {
	for i, tex := range doc.Textures {
		src := scene.TextureSource{}
		if tex.Source != nil && int(*tex.Source) < len(doc.Images) {
			src.Path = s.imagePath(doc.Images[*tex.Source].URI)
		}
		if src.Path == "" {
			return fmt.Errorf("texture %d has no image", i)
		}
		s.textures = append(s.textures, src)
	}

	materials := make([]*dedup.MaterialInstance, len(doc.Materials))
	for i, mat := range doc.Materials {
		raw := extrasString(mat.Extras, extrasMaterialKey)
		if raw == "" || mat.PBRMetallicRoughness == nil || mat.PBRMetallicRoughness.BaseColorTexture == nil {
			continue
		}
		key, err := dedup.ParseKey(raw)
		if err != nil {
			return fmt.Errorf("material %d: %w", i, err)
		}
		handle := int(mat.PBRMetallicRoughness.BaseColorTexture.Index)
		if handle >= len(s.textures) {
			return fmt.Errorf("material %d: texture %d out of range", i, handle)
		}
		s.textures[handle].Key = key
		s.textures[handle].Name = mat.Name
		if err := s.registry.Seed(dedup.MaterialInstance{
			Key:     key,
			Name:    mat.Name,
			Texture: dedup.TextureHandle(handle),
			Source:  s.textures[handle],
		}); err != nil {
			return err
		}
		inst, _ := s.registry.Lookup(key)
		materials[i] = inst
	}

	if len(doc.Scenes) == 0 {
		return nil
	}
	sceneIdx := uint32(0)
	if doc.Scene != nil {
		sceneIdx = *doc.Scene
	}
	if int(sceneIdx) >= len(doc.Scenes) {
		return fmt.Errorf("scene %d out of range", sceneIdx)
	}
	var data []byte
	if len(doc.Buffers) > 0 {
		data = doc.Buffers[0].Data
	}
	for _, groupIdx := range doc.Scenes[sceneIdx].Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		groupNode, err := node(doc, groupIdx)
		if err != nil {
			return err
		}
		group := extrasString(groupNode.Extras, extrasGroup)
		if group == "" {
			group = groupNode.Name
		}
		for _, tileIdx := range groupNode.Children {
			tileNode, err := node(doc, tileIdx)
			if err != nil {
				return err
			}
			tileID := extrasString(tileNode.Extras, extrasTile)
			if tileID == "" {
				tileID = tileNode.Name
			}
			obj := &object{tileID: tileID, group: group}
			for _, meshIdx := range tileNode.Children {
				meshNode, err := node(doc, meshIdx)
				if err != nil {
					return err
				}
				mc, err := loadMesh(doc, data, meshNode, materials)
				if err != nil {
					return fmt.Errorf("tile %s: %w", tileID, err)
				}
				obj.meshes = append(obj.meshes, mc)
			}
			if len(obj.meshes) > 0 {
				s.objects[tileID] = obj
			}
		}
	}
	return nil
}

func node(doc *gltf.Document, idx uint32) (*gltf.Node, error) {
	if int(idx) >= len(doc.Nodes) {
		return nil, fmt.Errorf("node %d out of range", idx)
	}
	return doc.Nodes[idx], nil
}

func loadMesh(doc *gltf.Document, data []byte, n *gltf.Node, materials []*dedup.MaterialInstance) (scene.MeshCommit, error) {
	if n.Mesh == nil || int(*n.Mesh) >= len(doc.Meshes) {
		return scene.MeshCommit{}, fmt.Errorf("node %s has no mesh", n.Name)
	}
	gm := doc.Meshes[*n.Mesh]
	if len(gm.Primitives) != 1 {
		return scene.MeshCommit{}, fmt.Errorf("mesh %s: expected one primitive, found %d", gm.Name, len(gm.Primitives))
	}
	prim := gm.Primitives[0]

	var layout decoder.Layout
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok || prim.Indices == nil {
		return scene.MeshCommit{}, fmt.Errorf("mesh %s: missing positions or indices", gm.Name)
	}
	var err error
	if layout.Positions, err = manifest.Accessor(doc, posIdx); err != nil {
		return scene.MeshCommit{}, err
	}
	optional := func(name string) (*decoder.Accessor, error) {
		idx, ok := prim.Attributes[name]
		if !ok {
			return nil, nil
		}
		acc, err := manifest.Accessor(doc, idx)
		if err != nil {
			return nil, err
		}
		return &acc, nil
	}
	if layout.Normals, err = optional("NORMAL"); err != nil {
		return scene.MeshCommit{}, err
	}
	if layout.UVs, err = optional("TEXCOORD_0"); err != nil {
		return scene.MeshCommit{}, err
	}
	indices, err := manifest.Accessor(doc, *prim.Indices)
	if err != nil {
		return scene.MeshCommit{}, err
	}
	layout.Indices = &indices

	raw, err := decoder.Decode(data, layout)
	if err != nil {
		return scene.MeshCommit{}, fmt.Errorf("mesh %s: %w", gm.Name, err)
	}

	transform := geometry.Identity()
	if n.Matrix != ([16]float32{}) {
		var matrix [16]float64
		for i, v := range n.Matrix {
			matrix[i] = float64(v)
		}
		transform = geometry.FromColumnMajor(matrix)
	}
	mesh := geometry.Mesh{
		Name:      n.Name,
		Positions: raw.Positions,
		Normals:   raw.Normals,
		UVs:       raw.UVs,
		Transform: transform,
		Material:  geometry.NoMaterial,
	}
	mesh.Faces = make([][3]uint32, 0, len(raw.Indices)/3)
	for i := 0; i+2 < len(raw.Indices); i += 3 {
		mesh.Faces = append(mesh.Faces, [3]uint32{raw.Indices[i], raw.Indices[i+1], raw.Indices[i+2]})
	}
	if err := mesh.Validate(); err != nil {
		return scene.MeshCommit{}, err
	}
	mesh.LoopUVs = geometry.LoopUVs(mesh.Faces, mesh.UVs)

	mc := scene.MeshCommit{Mesh: mesh}
	if prim.Material != nil && int(*prim.Material) < len(materials) {
		mc.Material = materials[*prim.Material]
		if mc.Material != nil {
			mc.Mesh.Material = int(*prim.Material)
		}
	}
	return mc, nil
}

func extrasString(extras interface{}, key string) string {
	m, ok := extras.(map[string]interface{})
	if !ok {
		return ""
	}
	v, _ := m[key].(string)
	return v
}
