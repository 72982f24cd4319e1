package contentcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"

	"tilebatch/internal/geometry"
)

const payloadSignature = "TBGM"

var errPayload = errors.New("invalid payload")

// encodeGeometry serializes geometry as little-endian binary. Loop UVs are not
// stored; they are rebuilt from faces and UVs on decode.
func encodeGeometry(g *geometry.Geometry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(payloadSignature)
	w := &payloadWriter{w: &buf}
	w.put(uint32(FormatVersion))
	w.put(uint32(len(g.Meshes)))
	for i := range g.Meshes {
		m := &g.Meshes[i]
		w.putString(m.Name)
		w.put(int32(m.Material))
		for c := range m.Transform {
			w.put(m.Transform[c][:])
		}
		w.put(uint32(len(m.Positions)))
		w.put(m.Positions)
		w.put(uint32(len(m.Normals)))
		w.put(m.Normals)
		w.put(uint32(len(m.UVs)))
		w.put(m.UVs)
		w.put(uint32(len(m.Faces)))
		w.put(m.Faces)
	}
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// decodeGeometry parses a payload produced by encodeGeometry and validates
// the result, so a damaged payload never yields out-of-range faces.
func decodeGeometry(data []byte) (*geometry.Geometry, error) {
	if len(data) < len(payloadSignature) || string(data[:len(payloadSignature)]) != payloadSignature {
		return nil, fmt.Errorf("%w: bad signature", errPayload)
	}
	r := &payloadReader{r: bytes.NewReader(data[len(payloadSignature):])}
	var version, meshCount uint32
	r.get(&version)
	if r.err == nil && version != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", errPayload, version, FormatVersion)
	}
	meshCount = r.count(1)
	g := &geometry.Geometry{}
	for i := uint32(0); i < meshCount && r.err == nil; i++ {
		var m geometry.Mesh
		m.Name = r.getString()
		var material int32
		r.get(&material)
		m.Material = int(material)
		var transform dmat.T
		for c := range transform {
			r.get(transform[c][:])
		}
		m.Transform = transform
		if n := r.count(12); n > 0 {
			m.Positions = make([]vec3.T, n)
			r.get(m.Positions)
		}
		if n := r.count(12); n > 0 {
			m.Normals = make([]vec3.T, n)
			r.get(m.Normals)
		}
		if n := r.count(8); n > 0 {
			m.UVs = make([]vec2.T, n)
			r.get(m.UVs)
		}
		if n := r.count(12); n > 0 {
			m.Faces = make([][3]uint32, n)
			r.get(m.Faces)
		}
		if r.err != nil {
			break
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", errPayload, err)
		}
		m.LoopUVs = geometry.LoopUVs(m.Faces, m.UVs)
		g.Meshes = append(g.Meshes, m)
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", errPayload, r.err)
	}
	if r.r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", errPayload, r.r.Len())
	}
	return g, nil
}

type payloadWriter struct {
	w   io.Writer
	err error
}

func (p *payloadWriter) put(v any) {
	if p.err != nil {
		return
	}
	p.err = binary.Write(p.w, binary.LittleEndian, v)
}

func (p *payloadWriter) putString(s string) {
	p.put(uint32(len(s)))
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

type payloadReader struct {
	r   *bytes.Reader
	err error
}

func (p *payloadReader) get(v any) {
	if p.err != nil {
		return
	}
	p.err = binary.Read(p.r, binary.LittleEndian, v)
}

// count reads an element count and rejects counts whose data could not fit
// in the rest of the payload.
func (p *payloadReader) count(elemSize int) uint32 {
	var n uint32
	p.get(&n)
	if p.err != nil {
		return 0
	}
	if int64(n)*int64(elemSize) > int64(p.r.Len()) {
		p.err = fmt.Errorf("count %d exceeds remaining %d bytes", n, p.r.Len())
		return 0
	}
	return n
}

func (p *payloadReader) getString() string {
	n := p.count(1)
	if p.err != nil || n == 0 {
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(p.r, b); err != nil {
		p.err = err
		return ""
	}
	return string(b)
}
