package testsupport

import (
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// PrimitiveFixture describes one primitive of a synthetic tile.
type PrimitiveFixture struct {
	Positions [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	// Indices nil writes a primitive without an index accessor.
	Indices []uint32
	Index32 bool
	// Texture is the image URI of the primitive's material; empty means no
	// material.
	Texture string
}

// TileFixture describes a synthetic tile written as <Name>.gltf + <Name>.bin.
type TileFixture struct {
	Name        string
	Primitives  []PrimitiveFixture
	Translation [3]float64
	// OmitBuffer skips writing the .bin file.
	OmitBuffer bool
}

// Triangle returns a single textured triangle primitive.
func Triangle(texture string) PrimitiveFixture {
	return PrimitiveFixture{
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Normals:   [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		UVs:       [][2]float32{{0, 0}, {1, 0}, {0, 1}},
		Indices:   []uint32{0, 1, 2},
		Texture:   texture,
	}
}

// Quad returns a two-triangle primitive with 32-bit indices.
func Quad(texture string) PrimitiveFixture {
	return PrimitiveFixture{
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		UVs:       [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Indices:   []uint32{0, 1, 2, 2, 3, 0},
		Index32:   true,
		Texture:   texture,
	}
}

// SimpleTile returns a one-triangle tile using texture.
func SimpleTile(name, texture string) TileFixture {
	return TileFixture{Name: name, Primitives: []PrimitiveFixture{Triangle(texture)}}
}

// WriteTile writes the fixture into dir and returns the descriptor path.
func WriteTile(t testing.TB, dir string, tile TileFixture) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}

	var buf []byte
	var views, accessors, materials, textures, images []map[string]any
	var primitives []map[string]any
	materialIndex := map[string]int{}

	addView := func(data []byte) int {
		for len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
		views = append(views, map[string]any{"buffer": 0, "byteOffset": len(buf), "byteLength": len(data)})
		buf = append(buf, data...)
		return len(views) - 1
	}
	addAccessor := func(view, component, count int, typ string) int {
		accessors = append(accessors, map[string]any{
			"bufferView": view, "componentType": component, "count": count, "type": typ,
		})
		return len(accessors) - 1
	}

	for _, prim := range tile.Primitives {
		attrs := map[string]any{}
		var pos []byte
		for _, p := range prim.Positions {
			p := p
			pos = appendFloats(pos, p[:]...)
		}
		attrs["POSITION"] = addAccessor(addView(pos), 5126, len(prim.Positions), "VEC3")
		if len(prim.Normals) > 0 {
			var nrm []byte
			for _, n := range prim.Normals {
				n := n
				nrm = appendFloats(nrm, n[:]...)
			}
			attrs["NORMAL"] = addAccessor(addView(nrm), 5126, len(prim.Normals), "VEC3")
		}
		if len(prim.UVs) > 0 {
			var uv []byte
			for _, v := range prim.UVs {
				v := v
				uv = appendFloats(uv, v[:]...)
			}
			attrs["TEXCOORD_0"] = addAccessor(addView(uv), 5126, len(prim.UVs), "VEC2")
		}
		entry := map[string]any{"attributes": attrs}
		if prim.Indices != nil {
			var idx []byte
			component := 5123
			for _, i := range prim.Indices {
				if prim.Index32 {
					idx = binary.LittleEndian.AppendUint32(idx, i)
				} else {
					idx = binary.LittleEndian.AppendUint16(idx, uint16(i))
				}
			}
			if prim.Index32 {
				component = 5125
			}
			entry["indices"] = addAccessor(addView(idx), component, len(prim.Indices), "SCALAR")
		}
		if prim.Texture != "" {
			mi, ok := materialIndex[prim.Texture]
			if !ok {
				images = append(images, map[string]any{"uri": prim.Texture})
				textures = append(textures, map[string]any{"source": len(images) - 1})
				materials = append(materials, map[string]any{
					"name": "mat_" + filepath.Base(prim.Texture),
					"pbrMetallicRoughness": map[string]any{
						"baseColorTexture": map[string]any{"index": len(textures) - 1},
					},
				})
				mi = len(materials) - 1
				materialIndex[prim.Texture] = mi
			}
			entry["material"] = mi
		}
		primitives = append(primitives, entry)
	}

	node := map[string]any{"mesh": 0}
	if tile.Translation != ([3]float64{}) {
		node["translation"] = tile.Translation
	}
	doc := map[string]any{
		"asset":       map[string]any{"version": "2.0", "generator": "tilebatch-fixture"},
		"scene":       0,
		"scenes":      []any{map[string]any{"nodes": []int{0}}},
		"nodes":       []any{node},
		"meshes":      []any{map[string]any{"primitives": primitives}},
		"buffers":     []any{map[string]any{"uri": tile.Name + ".bin", "byteLength": len(buf)}},
		"bufferViews": views,
		"accessors":   accessors,
	}
	if len(materials) > 0 {
		doc["materials"] = materials
		doc["textures"] = textures
		doc["images"] = images
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal descriptor: %v", err)
	}
	descriptor := filepath.Join(dir, tile.Name+".gltf")
	if err := os.WriteFile(descriptor, data, 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	if !tile.OmitBuffer {
		if err := os.WriteFile(filepath.Join(dir, tile.Name+".bin"), buf, 0o644); err != nil {
			t.Fatalf("write buffer: %v", err)
		}
	}
	return descriptor
}

// WriteTexture writes a solid-colour PNG of the given size.
func WriteTexture(t testing.TB, path string, width, height int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func appendFloats(dst []byte, values ...float32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}
