package importer

import (
	"context"
	"fmt"
	"os"

	"tilebatch/internal/contentcache"
	"tilebatch/internal/decoder"
	"tilebatch/internal/faults"
	"tilebatch/internal/geometry"
	"tilebatch/internal/manifest"
)

// prepared is the result of the pure per-tile steps.
type prepared struct {
	src      manifest.Source
	tile     *manifest.Tile
	fp       contentcache.Fingerprint
	geom     *geometry.Geometry
	cacheHit bool
	err      error
}

// prepare parses, fingerprints, and either loads the tile's geometry from the
// cache or decodes it. It never mutates shared state other than the decode
// group and counters.
func (m *Manager) prepare(ctx context.Context, src manifest.Source) prepared {
	p := prepared{src: src}
	if err := ctx.Err(); err != nil {
		p.err = err
		return p
	}
	tile, err := m.reader.Read(src)
	if err != nil {
		p.err = err
		return p
	}
	p.tile = tile
	p.fp = contentcache.NewFingerprint(tile.ID, tile.Descriptor, tile.Buffer)

	if m.cache != nil {
		if geom, ok := m.cache.Lookup(ctx, p.fp); ok {
			p.geom = geom
			p.cacheHit = true
			return p
		}
	}

	v, err, _ := m.decodes.Do(p.fp.Key, func() (interface{}, error) {
		m.decodeCount.Add(1)
		return m.decode(tile)
	})
	if err != nil {
		p.err = err
		return p
	}
	p.geom = v.(*geometry.Geometry)
	return p
}

// decodeTile reads the tile's buffer and normalizes every primitive.
func (m *Manager) decodeTile(tile *manifest.Tile) (*geometry.Geometry, error) {
	buf, err := os.ReadFile(tile.BufferPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, faults.Wrap(faults.ErrMissingAsset, tile.ID, "buffer", "buffer "+tile.BufferPath+" not found", nil)
		}
		return nil, faults.Wrap(faults.ErrDecode, tile.ID, "buffer", "read buffer", err)
	}
	if int64(len(buf)) != tile.Buffer.Size {
		return nil, faults.Wrap(faults.ErrDecode, tile.ID, "buffer", fmt.Sprintf("buffer changed while reading: %d bytes, expected %d", len(buf), tile.Buffer.Size), nil)
	}

	geom := &geometry.Geometry{Meshes: make([]geometry.Mesh, 0, len(tile.Primitives))}
	for _, prim := range tile.Primitives {
		raw, err := decoder.Decode(buf, prim.Layout)
		if err != nil {
			return nil, fmt.Errorf("%w (primitive %s)", err, prim.Name)
		}
		mesh, err := geometry.Normalize(prim.Name, raw, prim.Transform, prim.Material)
		if err != nil {
			return nil, err
		}
		geom.Meshes = append(geom.Meshes, mesh)
	}
	return geom, nil
}
