package decoder

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"

	"tilebatch/internal/faults"
)

type bufWriter struct{ b []byte }

func (w *bufWriter) f32(vs ...float32) {
	for _, v := range vs {
		w.b = binary.LittleEndian.AppendUint32(w.b, math.Float32bits(v))
	}
}

func (w *bufWriter) u16(vs ...uint16) {
	for _, v := range vs {
		w.b = binary.LittleEndian.AppendUint16(w.b, v)
	}
}

func (w *bufWriter) u32(vs ...uint32) {
	for _, v := range vs {
		w.b = binary.LittleEndian.AppendUint32(w.b, v)
	}
}

func (w *bufWriter) pad(n int) { w.b = append(w.b, make([]byte, n)...) }

func TestKindFor(t *testing.T) {
	tests := []struct {
		component int
		element   string
		want      Kind
	}{
		{ComponentFloat, ElementVec3, KindVec3Float32},
		{ComponentFloat, ElementVec2, KindVec2Float32},
		{ComponentUnsignedShort, ElementScalar, KindScalarUint16},
		{ComponentUnsignedInt, ElementScalar, KindScalarUint32},
		{ComponentUnsignedShort, ElementVec3, KindVec3Uint16},
		{ComponentUnsignedInt, ElementVec3, KindVec3Uint32},
	}
	for _, tt := range tests {
		got, err := KindFor(tt.component, tt.element)
		if err != nil || got != tt.want {
			t.Fatalf("KindFor(%d,%s) = %v,%v want %v", tt.component, tt.element, got, err, tt.want)
		}
	}

	for _, bad := range []struct {
		component int
		element   string
	}{
		{5121, ElementScalar},
		{ComponentFloat, "MAT4"},
		{ComponentFloat, ElementScalar},
		{ComponentUnsignedShort, ElementVec2},
	} {
		if _, err := KindFor(bad.component, bad.element); !errors.Is(err, faults.ErrDecode) {
			t.Fatalf("KindFor(%d,%s) expected decode error, got %v", bad.component, bad.element, err)
		}
	}
}

func TestKindSizes(t *testing.T) {
	if KindVec3Float32.ElementSize() != 12 || KindVec2Float32.ElementSize() != 8 {
		t.Fatal("unexpected float element sizes")
	}
	if KindScalarUint16.ElementSize() != 2 || KindVec3Uint16.ElementSize() != 6 || KindVec3Uint32.ElementSize() != 12 {
		t.Fatal("unexpected index element sizes")
	}
	if KindInvalid.ElementSize() != 0 || KindInvalid.String() != "invalid" {
		t.Fatal("unexpected invalid kind")
	}
}

func TestVec3TightAndStrided(t *testing.T) {
	var w bufWriter
	w.f32(1, 2, 3, 4, 5, 6)
	tight, err := Vec3(w.b, Accessor{Kind: KindVec3Float32, Count: 2})
	if err != nil {
		t.Fatalf("Vec3 tight: %v", err)
	}
	if tight[0] != (vec3.T{1, 2, 3}) || tight[1] != (vec3.T{4, 5, 6}) {
		t.Fatalf("unexpected tight values %v", tight)
	}

	// Interleaved position + uv with a leading 4 byte header in the view.
	var iw bufWriter
	iw.pad(16) // unrelated data before the view
	iw.pad(4)  // accessor byte offset
	iw.f32(1, 1, 1, 0.25, 0.5)
	iw.f32(2, 2, 2, 0.75, 1)
	acc := Accessor{Kind: KindVec3Float32, ViewOffset: 16, ViewLength: 44, ByteOffset: 4, Stride: 20, Count: 2}
	pos, err := Vec3(iw.b, acc)
	if err != nil {
		t.Fatalf("Vec3 strided: %v", err)
	}
	if pos[1] != (vec3.T{2, 2, 2}) {
		t.Fatalf("unexpected strided value %v", pos[1])
	}
	uvAcc := Accessor{Kind: KindVec2Float32, ViewOffset: 16, ViewLength: 44, ByteOffset: 16, Stride: 20, Count: 2}
	uvs, err := Vec2(iw.b, uvAcc)
	if err != nil {
		t.Fatalf("Vec2 strided: %v", err)
	}
	if uvs[0] != (vec2.T{0.25, 0.5}) || uvs[1] != (vec2.T{0.75, 1}) {
		t.Fatalf("unexpected uvs %v", uvs)
	}
}

func TestIndicesKinds(t *testing.T) {
	var w16 bufWriter
	w16.u16(0, 1, 2, 2, 3, 0)
	got, err := Indices(w16.b, Accessor{Kind: KindScalarUint16, Count: 6})
	if err != nil {
		t.Fatalf("Indices u16: %v", err)
	}
	assertIndices(t, got, []uint32{0, 1, 2, 2, 3, 0})

	var w32 bufWriter
	w32.u32(70000, 1, 2)
	got, err = Indices(w32.b, Accessor{Kind: KindScalarUint32, Count: 3})
	if err != nil {
		t.Fatalf("Indices u32: %v", err)
	}
	assertIndices(t, got, []uint32{70000, 1, 2})

	got, err = Indices(w16.b, Accessor{Kind: KindVec3Uint16, Count: 2})
	if err != nil {
		t.Fatalf("Indices vec3 u16: %v", err)
	}
	assertIndices(t, got, []uint32{0, 1, 2, 2, 3, 0})

	got, err = Indices(w32.b, Accessor{Kind: KindVec3Uint32, Count: 1})
	if err != nil {
		t.Fatalf("Indices vec3 u32: %v", err)
	}
	assertIndices(t, got, []uint32{70000, 1, 2})
}

func TestRangeAndKindErrors(t *testing.T) {
	var w bufWriter
	w.f32(1, 2, 3, 4, 5, 6)
	buf := w.b // 24 bytes

	tests := []struct {
		name string
		run  func() error
	}{
		{"count overruns buffer", func() error {
			_, err := Vec3(buf, Accessor{Kind: KindVec3Float32, Count: 3})
			return err
		}},
		{"offset overruns view", func() error {
			_, err := Vec3(buf, Accessor{Kind: KindVec3Float32, ViewLength: 16, ByteOffset: 8, Count: 1})
			return err
		}},
		{"view overruns buffer", func() error {
			_, err := Vec3(buf, Accessor{Kind: KindVec3Float32, ViewOffset: 12, ViewLength: 24, Count: 1})
			return err
		}},
		{"view offset beyond buffer", func() error {
			_, err := Vec3(buf, Accessor{Kind: KindVec3Float32, ViewOffset: 40, Count: 0})
			return err
		}},
		{"stride too small", func() error {
			_, err := Vec3(buf, Accessor{Kind: KindVec3Float32, Stride: 8, Count: 1})
			return err
		}},
		{"negative count", func() error {
			_, err := Vec2(buf, Accessor{Kind: KindVec2Float32, Count: -1})
			return err
		}},
		{"wrong kind for vec3", func() error {
			_, err := Vec3(buf, Accessor{Kind: KindVec2Float32, Count: 1})
			return err
		}},
		{"float kind as indices", func() error {
			_, err := Indices(buf, Accessor{Kind: KindVec3Float32, Count: 1})
			return err
		}},
		{"huge count", func() error {
			_, err := Indices(buf, Accessor{Kind: KindScalarUint32, Count: math.MaxInt32})
			return err
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, faults.ErrDecode) {
				t.Fatalf("expected decode error, got %v", err)
			}
		})
	}
}

func TestExactFitIsAccepted(t *testing.T) {
	var w bufWriter
	w.pad(8)
	w.f32(9, 8)
	// Last element ends exactly at the buffer boundary with a wide stride.
	uvs, err := Vec2(w.b, Accessor{Kind: KindVec2Float32, ByteOffset: 8, Stride: 32, Count: 1})
	if err != nil {
		t.Fatalf("Vec2: %v", err)
	}
	if uvs[0] != (vec2.T{9, 8}) {
		t.Fatalf("unexpected uv %v", uvs[0])
	}
	empty, err := Vec3(nil, Accessor{Kind: KindVec3Float32})
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty accessor: %v %v", empty, err)
	}
}

func TestDecodePrimitive(t *testing.T) {
	var w bufWriter
	w.f32(0, 0, 0, 1, 0, 0, 0, 1, 0) // positions @0
	w.f32(0, 0, 1, 0, 0, 1, 0, 0, 1) // normals @36
	w.f32(0, 0, 1, 0, 0, 1)          // uvs @72
	w.u16(0, 1, 2)                   // indices @96

	layout := Layout{
		Positions: Accessor{Kind: KindVec3Float32, ViewOffset: 0, ViewLength: 36, Count: 3},
		Normals:   &Accessor{Kind: KindVec3Float32, ViewOffset: 36, ViewLength: 36, Count: 3},
		UVs:       &Accessor{Kind: KindVec2Float32, ViewOffset: 72, ViewLength: 24, Count: 3},
		Indices:   &Accessor{Kind: KindScalarUint16, ViewOffset: 96, ViewLength: 6, Count: 3},
	}
	prim, err := Decode(w.b, layout)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(prim.Positions) != 3 || len(prim.Normals) != 3 || len(prim.UVs) != 3 {
		t.Fatalf("unexpected cardinalities: %+v", prim)
	}
	assertIndices(t, prim.Indices, []uint32{0, 1, 2})

	mismatch := layout
	mismatch.UVs = &Accessor{Kind: KindVec2Float32, ViewOffset: 72, Count: 2}
	if _, err := Decode(w.b, mismatch); !errors.Is(err, faults.ErrDecode) {
		t.Fatalf("expected cardinality error, got %v", err)
	}

	partial := layout
	partial.Indices = &Accessor{Kind: KindScalarUint16, ViewOffset: 96, Count: 2}
	if _, err := Decode(w.b, partial); !errors.Is(err, faults.ErrDecode) {
		t.Fatalf("expected multiple-of-three error, got %v", err)
	}

	noIndex := layout
	noIndex.Indices = nil
	prim, err = Decode(w.b, noIndex)
	if err != nil || prim.Indices != nil {
		t.Fatalf("expected nil indices without accessor, got %v %v", prim.Indices, err)
	}
}

func assertIndices(t *testing.T, got, want []uint32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d = %d, want %d", i, got[i], want[i])
		}
	}
}
