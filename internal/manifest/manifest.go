package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/qmuntal/gltf"

	"tilebatch/internal/decoder"
	"tilebatch/internal/faults"
	"tilebatch/internal/fileutil"
	"tilebatch/internal/geometry"
)

// MaterialRef is one material of a tile as the descriptor declares it.
type MaterialRef struct {
	Name string
	// TextureURI is the image URI from the descriptor, empty when the
	// material has no base colour texture.
	TextureURI string
	// TexturePath is the resolved file, empty when nothing matched.
	TexturePath string
	UVChannel   int
}

// Missing reports a texture reference that could not be resolved.
func (m MaterialRef) Missing() bool {
	return m.TextureURI != "" && m.TexturePath == ""
}

// PrimitiveRef locates one drawable primitive.
type PrimitiveRef struct {
	// Name is "<tile>_<n>" with n counting primitives across the tile.
	Name      string
	Layout    decoder.Layout
	Transform dmat.T
	// Material indexes Tile.Materials, or geometry.NoMaterial.
	Material int
}

// Tile is the parsed, immutable description of one tile.
type Tile struct {
	ID             string
	DescriptorPath string
	BufferPath     string
	Descriptor     fileutil.Identity
	Buffer         fileutil.Identity
	Primitives     []PrimitiveRef
	Materials      []MaterialRef
}

// Reader parses descriptors. TextureDir may be empty.
type Reader struct {
	TextureDir string
}

// Read parses the descriptor at src and resolves its buffer and textures.
// Errors are tagged faults.ErrManifest, faults.ErrMissingAsset, or
// faults.ErrDecode for unsupported accessor kinds.
func (r Reader) Read(src Source) (*Tile, error) {
	descID, err := fileutil.Stat(src.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrMissingAsset, src.ID, "descriptor", src.Path, err)
		}
		return nil, faults.Wrap(faults.ErrManifest, src.ID, "descriptor", "stat", err)
	}
	data, err := os.ReadFile(descID.Path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrManifest, src.ID, "descriptor", "read", err)
	}
	var doc gltf.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, faults.Wrap(faults.ErrManifest, src.ID, "descriptor", "parse json", err)
	}

	tile := &Tile{ID: src.ID, DescriptorPath: descID.Path, Descriptor: descID}
	baseDir := filepath.Dir(descID.Path)

	if len(doc.Buffers) != 1 {
		return nil, faults.Wrap(faults.ErrManifest, src.ID, "buffers", fmt.Sprintf("expected exactly one buffer, found %d", len(doc.Buffers)), nil)
	}
	uri := doc.Buffers[0].URI
	if uri == "" || strings.HasPrefix(uri, "data:") {
		return nil, faults.Wrap(faults.ErrManifest, src.ID, "buffers", "buffer must reference an external file", nil)
	}
	bufferPath := filepath.Join(baseDir, filepath.FromSlash(unescapeURI(uri)))
	bufID, err := fileutil.Stat(bufferPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrMissingAsset, src.ID, "buffer", filepath.Base(bufferPath)+" not found", nil)
		}
		return nil, faults.Wrap(faults.ErrManifest, src.ID, "buffer", "stat", err)
	}
	tile.BufferPath = bufID.Path
	tile.Buffer = bufID

	tile.Materials = make([]MaterialRef, len(doc.Materials))
	for i, mat := range doc.Materials {
		ref, err := r.material(&doc, mat, baseDir)
		if err != nil {
			return nil, faults.Wrap(faults.ErrManifest, src.ID, "material "+strconv.Itoa(i), "", err)
		}
		tile.Materials[i] = ref
	}

	for _, inst := range meshInstances(&doc) {
		mesh := doc.Meshes[inst.mesh]
		for pi, prim := range mesh.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				return nil, faults.Wrap(faults.ErrDecode, src.ID, "primitive", fmt.Sprintf("mesh %d primitive %d: only triangle lists are supported", inst.mesh, pi), nil)
			}
			ref, err := r.primitive(&doc, prim, tile)
			if err != nil {
				return nil, faults.Wrap(faults.ErrManifest, src.ID, fmt.Sprintf("mesh %d primitive %d", inst.mesh, pi), "", err)
			}
			ref.Name = fmt.Sprintf("%s_%d", lastSegment(tile.ID), len(tile.Primitives))
			ref.Transform = inst.transform
			tile.Primitives = append(tile.Primitives, ref)
		}
	}
	return tile, nil
}

func (r Reader) material(doc *gltf.Document, mat *gltf.Material, baseDir string) (MaterialRef, error) {
	ref := MaterialRef{Name: mat.Name}
	if mat.PBRMetallicRoughness == nil || mat.PBRMetallicRoughness.BaseColorTexture == nil {
		return ref, nil
	}
	info := mat.PBRMetallicRoughness.BaseColorTexture
	ref.UVChannel = int(info.TexCoord)
	if int(info.Index) >= len(doc.Textures) {
		return ref, fmt.Errorf("texture index %d out of range", info.Index)
	}
	tex := doc.Textures[info.Index]
	if tex.Source == nil {
		return ref, nil
	}
	if int(*tex.Source) >= len(doc.Images) {
		return ref, fmt.Errorf("image index %d out of range", *tex.Source)
	}
	uri := doc.Images[*tex.Source].URI
	if uri == "" || strings.HasPrefix(uri, "data:") {
		return ref, errors.New("image must reference an external file")
	}
	ref.TextureURI = unescapeURI(uri)
	ref.TexturePath = ResolveTexture(r.TextureDir, baseDir, ref.TextureURI)
	return ref, nil
}

func (r Reader) primitive(doc *gltf.Document, prim *gltf.Primitive, tile *Tile) (PrimitiveRef, error) {
	ref := PrimitiveRef{Material: geometry.NoMaterial}
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return ref, errors.New("missing POSITION attribute")
	}
	pos, err := Accessor(doc, posIdx)
	if err != nil {
		return ref, fmt.Errorf("POSITION: %w", err)
	}
	ref.Layout.Positions = pos

	if idx, ok := prim.Attributes["NORMAL"]; ok {
		acc, err := Accessor(doc, idx)
		if err != nil {
			return ref, fmt.Errorf("NORMAL: %w", err)
		}
		ref.Layout.Normals = &acc
	}

	channel := 0
	if prim.Material != nil {
		if int(*prim.Material) >= len(tile.Materials) {
			return ref, fmt.Errorf("material index %d out of range", *prim.Material)
		}
		ref.Material = int(*prim.Material)
		channel = tile.Materials[ref.Material].UVChannel
	}
	uvName := "TEXCOORD_" + strconv.Itoa(channel)
	idx, ok := prim.Attributes[uvName]
	if !ok {
		idx, ok = prim.Attributes["TEXCOORD_0"]
	}
	if ok {
		acc, err := Accessor(doc, idx)
		if err != nil {
			return ref, fmt.Errorf("%s: %w", uvName, err)
		}
		ref.Layout.UVs = &acc
	}

	if prim.Indices != nil {
		acc, err := Accessor(doc, *prim.Indices)
		if err != nil {
			return ref, fmt.Errorf("indices: %w", err)
		}
		ref.Layout.Indices = &acc
	}
	return ref, nil
}

// Accessor converts a descriptor accessor into a decoder layout entry.
// Sparse accessors and views into any buffer but the first are rejected.
func Accessor(doc *gltf.Document, index uint32) (decoder.Accessor, error) {
	if int(index) >= len(doc.Accessors) {
		return decoder.Accessor{}, fmt.Errorf("accessor %d out of range", index)
	}
	acc := doc.Accessors[index]
	if acc.Sparse != nil {
		return decoder.Accessor{}, fmt.Errorf("accessor %d: sparse accessors are not supported", index)
	}
	if acc.BufferView == nil {
		return decoder.Accessor{}, fmt.Errorf("accessor %d has no buffer view", index)
	}
	if int(*acc.BufferView) >= len(doc.BufferViews) {
		return decoder.Accessor{}, fmt.Errorf("accessor %d: buffer view %d out of range", index, *acc.BufferView)
	}
	view := doc.BufferViews[*acc.BufferView]
	if view.Buffer != 0 {
		return decoder.Accessor{}, fmt.Errorf("accessor %d: buffer view references buffer %d", index, view.Buffer)
	}
	kind, err := decoder.KindFor(componentCode(acc.ComponentType), elementName(acc.Type))
	if err != nil {
		return decoder.Accessor{}, fmt.Errorf("accessor %d: %w", index, err)
	}
	return decoder.Accessor{
		Kind:       kind,
		ViewOffset: int(view.ByteOffset),
		ViewLength: int(view.ByteLength),
		ByteOffset: int(acc.ByteOffset),
		Stride:     int(view.ByteStride),
		Count:      int(acc.Count),
	}, nil
}

func componentCode(ct gltf.ComponentType) int {
	switch ct {
	case gltf.ComponentUshort:
		return decoder.ComponentUnsignedShort
	case gltf.ComponentUint:
		return decoder.ComponentUnsignedInt
	case gltf.ComponentFloat:
		return decoder.ComponentFloat
	default:
		return -1
	}
}

func elementName(t gltf.AccessorType) string {
	switch t {
	case gltf.AccessorScalar:
		return decoder.ElementScalar
	case gltf.AccessorVec2:
		return decoder.ElementVec2
	case gltf.AccessorVec3:
		return decoder.ElementVec3
	default:
		return fmt.Sprint(t)
	}
}

// ResolveTexture looks for an image URI under textureDir, then under
// textureDir by file name alone, then beside the descriptor. It returns the
// first existing file or "".
func ResolveTexture(textureDir, descriptorDir, uri string) string {
	rel := filepath.FromSlash(uri)
	candidates := make([]string, 0, 3)
	if textureDir != "" {
		candidates = append(candidates,
			filepath.Join(textureDir, rel),
			filepath.Join(textureDir, filepath.Base(rel)),
		)
	}
	candidates = append(candidates, filepath.Join(descriptorDir, rel))
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func unescapeURI(uri string) string {
	if decoded, err := url.PathUnescape(uri); err == nil {
		return decoded
	}
	return uri
}

func lastSegment(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}
