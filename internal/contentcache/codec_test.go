package contentcache

import (
	"errors"
	"testing"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"

	"tilebatch/internal/geometry"
)

func sampleGeometry() *geometry.Geometry {
	transform := geometry.Compose([3]float64{10, 20, 30}, [4]float64{0, 0, 0, 1}, [3]float64{1, 1, 1})
	uvs := []vec2.T{{0, 1}, {1, 1}, {0, 0}}
	faces := [][3]uint32{{0, 1, 2}}
	return &geometry.Geometry{Meshes: []geometry.Mesh{
		{
			Name:      "tile_0",
			Positions: []vec3.T{{0, 0, 0}, {1, 0, 0}, {0, 0, 1}},
			Normals:   []vec3.T{{0, -1, 0}, {0, -1, 0}, {0, -1, 0}},
			UVs:       uvs,
			Faces:     faces,
			LoopUVs:   geometry.LoopUVs(faces, uvs),
			Transform: transform,
			Material:  0,
		},
		{
			Name:      "tile_1",
			Positions: []vec3.T{{0, 0, 0}, {2, 0, 0}, {0, 0, 2}},
			Faces:     faces,
			Transform: geometry.Identity(),
			Material:  geometry.NoMaterial,
		},
	}}
}

func TestCodecRoundTrip(t *testing.T) {
	want := sampleGeometry()
	payload, err := encodeGeometry(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeGeometry(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Meshes) != len(want.Meshes) {
		t.Fatalf("mesh count = %d, want %d", len(got.Meshes), len(want.Meshes))
	}
	for i := range want.Meshes {
		w, g := want.Meshes[i], got.Meshes[i]
		if g.Name != w.Name || g.Material != w.Material {
			t.Fatalf("mesh %d header = %q/%d, want %q/%d", i, g.Name, g.Material, w.Name, w.Material)
		}
		if g.Transform != w.Transform {
			t.Fatalf("mesh %d transform = %v, want %v", i, g.Transform, w.Transform)
		}
		if len(g.Positions) != len(w.Positions) || len(g.Normals) != len(w.Normals) || len(g.UVs) != len(w.UVs) {
			t.Fatalf("mesh %d attribute counts differ", i)
		}
		for j := range w.Positions {
			if g.Positions[j] != w.Positions[j] {
				t.Fatalf("mesh %d position %d = %v, want %v", i, j, g.Positions[j], w.Positions[j])
			}
		}
		for j := range w.UVs {
			if g.UVs[j] != w.UVs[j] {
				t.Fatalf("mesh %d uv %d = %v, want %v", i, j, g.UVs[j], w.UVs[j])
			}
		}
		if len(g.Faces) != len(w.Faces) || g.Faces[0] != w.Faces[0] {
			t.Fatalf("mesh %d faces = %v, want %v", i, g.Faces, w.Faces)
		}
		if len(g.LoopUVs) != len(w.LoopUVs) {
			t.Fatalf("mesh %d loop uvs = %d, want %d", i, len(g.LoopUVs), len(w.LoopUVs))
		}
	}
}

func TestDecodeRejectsDamagedPayloads(t *testing.T) {
	payload, err := encodeGeometry(sampleGeometry())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	badFace := append([]byte(nil), payload...)
	// The last face index of the last mesh sits in the final four bytes.
	badFace[len(badFace)-4] = 0xff

	cases := map[string][]byte{
		"empty":         nil,
		"signature":     append([]byte("XXXX"), payload[4:]...),
		"truncated":     payload[:len(payload)-7],
		"trailing":      append(append([]byte(nil), payload...), 1, 2, 3),
		"face overflow": badFace,
	}
	for name, data := range cases {
		name, data := name, data
		t.Run(name, func(t *testing.T) {
			if _, err := decodeGeometry(data); !errors.Is(err, errPayload) {
				t.Fatalf("decode error = %v, want errPayload", err)
			}
		})
	}
}
