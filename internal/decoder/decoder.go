package decoder

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"

	"tilebatch/internal/faults"
)

// Accessor locates one attribute array inside a buffer.
type Accessor struct {
	Kind Kind
	// ViewOffset and ViewLength bound the buffer view the accessor reads
	// from. A zero ViewLength means the view runs to the end of the buffer.
	ViewOffset int
	ViewLength int
	// ByteOffset is relative to the start of the view.
	ByteOffset int
	// Stride is the distance between consecutive elements; zero means
	// tightly packed.
	Stride int
	Count  int
}

// Layout lists the accessors of one primitive. Optional attributes are nil.
type Layout struct {
	Positions Accessor
	Normals   *Accessor
	UVs       *Accessor
	Indices   *Accessor
}

// Primitive holds the raw decoded arrays of one primitive, still in glTF
// axis and UV conventions. Indices is nil when the primitive has no index
// accessor.
type Primitive struct {
	Positions []vec3.T
	Normals   []vec3.T
	UVs       []vec2.T
	Indices   []uint32
}

func decodeErr(op, format string, args ...any) error {
	return faults.Wrap(faults.ErrDecode, "", op, fmt.Sprintf(format, args...), nil)
}

// window validates acc against buf and returns the view slice, the starting
// offset inside it, and the effective stride.
func window(buf []byte, acc Accessor, op string) ([]byte, int, int, error) {
	elemSize := acc.Kind.ElementSize()
	if elemSize == 0 {
		return nil, 0, 0, decodeErr(op, "accessor has invalid kind")
	}
	if acc.Count < 0 || acc.ByteOffset < 0 || acc.ViewOffset < 0 || acc.ViewLength < 0 || acc.Stride < 0 {
		return nil, 0, 0, decodeErr(op, "negative accessor field (offset=%d view=%d+%d stride=%d count=%d)",
			acc.ByteOffset, acc.ViewOffset, acc.ViewLength, acc.Stride, acc.Count)
	}
	stride := acc.Stride
	if stride == 0 {
		stride = elemSize
	}
	if stride < elemSize {
		return nil, 0, 0, decodeErr(op, "stride %d smaller than %s element size %d", stride, acc.Kind, elemSize)
	}
	if acc.ViewOffset > len(buf) {
		return nil, 0, 0, decodeErr(op, "view offset %d beyond buffer length %d", acc.ViewOffset, len(buf))
	}
	viewEnd := len(buf)
	if acc.ViewLength > 0 {
		viewEnd = acc.ViewOffset + acc.ViewLength
		if viewEnd > len(buf) {
			return nil, 0, 0, decodeErr(op, "view %d+%d exceeds buffer length %d", acc.ViewOffset, acc.ViewLength, len(buf))
		}
	}
	view := buf[acc.ViewOffset:viewEnd]
	if acc.Count == 0 {
		return view, acc.ByteOffset, stride, nil
	}
	// 64-bit arithmetic keeps hostile counts from wrapping.
	need := int64(acc.ByteOffset) + int64(acc.Count-1)*int64(stride) + int64(elemSize)
	if need > int64(len(view)) {
		return nil, 0, 0, decodeErr(op, "accessor range %d bytes (offset %d, stride %d, count %d) exceeds view length %d",
			need, acc.ByteOffset, stride, acc.Count, len(view))
	}
	return view, acc.ByteOffset, stride, nil
}

// Vec3 decodes a KindVec3Float32 accessor.
func Vec3(buf []byte, acc Accessor) ([]vec3.T, error) {
	if acc.Kind != KindVec3Float32 {
		return nil, decodeErr("vec3", "accessor kind %s is not %s", acc.Kind, KindVec3Float32)
	}
	view, off, stride, err := window(buf, acc, "vec3")
	if err != nil {
		return nil, err
	}
	out := make([]vec3.T, acc.Count)
	for i := range out {
		p := view[off+i*stride:]
		out[i] = vec3.T{
			math.Float32frombits(binary.LittleEndian.Uint32(p[0:4])),
			math.Float32frombits(binary.LittleEndian.Uint32(p[4:8])),
			math.Float32frombits(binary.LittleEndian.Uint32(p[8:12])),
		}
	}
	return out, nil
}

// Vec2 decodes a KindVec2Float32 accessor.
func Vec2(buf []byte, acc Accessor) ([]vec2.T, error) {
	if acc.Kind != KindVec2Float32 {
		return nil, decodeErr("vec2", "accessor kind %s is not %s", acc.Kind, KindVec2Float32)
	}
	view, off, stride, err := window(buf, acc, "vec2")
	if err != nil {
		return nil, err
	}
	out := make([]vec2.T, acc.Count)
	for i := range out {
		p := view[off+i*stride:]
		out[i] = vec2.T{
			math.Float32frombits(binary.LittleEndian.Uint32(p[0:4])),
			math.Float32frombits(binary.LittleEndian.Uint32(p[4:8])),
		}
	}
	return out, nil
}

// Indices decodes any index kind into a flat list. Vector index kinds are
// flattened so each element contributes three entries.
func Indices(buf []byte, acc Accessor) ([]uint32, error) {
	if !acc.Kind.isIndex() {
		return nil, decodeErr("indices", "accessor kind %s is not an index kind", acc.Kind)
	}
	view, off, stride, err := window(buf, acc, "indices")
	if err != nil {
		return nil, err
	}
	comps := acc.Kind.Components()
	size := acc.Kind.ComponentSize()
	out := make([]uint32, 0, acc.Count*comps)
	for i := 0; i < acc.Count; i++ {
		p := view[off+i*stride:]
		for c := 0; c < comps; c++ {
			if size == 2 {
				out = append(out, uint32(binary.LittleEndian.Uint16(p[c*2:])))
			} else {
				out = append(out, binary.LittleEndian.Uint32(p[c*4:]))
			}
		}
	}
	return out, nil
}

// Decode decodes every attribute of one primitive and checks that the arrays
// agree with each other.
func Decode(buf []byte, layout Layout) (Primitive, error) {
	var prim Primitive
	var err error
	if prim.Positions, err = Vec3(buf, layout.Positions); err != nil {
		return Primitive{}, fmt.Errorf("positions: %w", err)
	}
	if layout.Normals != nil {
		if prim.Normals, err = Vec3(buf, *layout.Normals); err != nil {
			return Primitive{}, fmt.Errorf("normals: %w", err)
		}
		if len(prim.Normals) != len(prim.Positions) {
			return Primitive{}, decodeErr("normals", "%d normals for %d positions", len(prim.Normals), len(prim.Positions))
		}
	}
	if layout.UVs != nil {
		if prim.UVs, err = Vec2(buf, *layout.UVs); err != nil {
			return Primitive{}, fmt.Errorf("uvs: %w", err)
		}
		if len(prim.UVs) != len(prim.Positions) {
			return Primitive{}, decodeErr("uvs", "%d uvs for %d positions", len(prim.UVs), len(prim.Positions))
		}
	}
	if layout.Indices != nil {
		if prim.Indices, err = Indices(buf, *layout.Indices); err != nil {
			return Primitive{}, fmt.Errorf("indices: %w", err)
		}
		if len(prim.Indices)%3 != 0 {
			return Primitive{}, decodeErr("indices", "index count %d is not a multiple of 3", len(prim.Indices))
		}
	}
	return prim, nil
}
