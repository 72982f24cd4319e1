package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tilebatch/internal/config"
	"tilebatch/internal/dedup"
	"tilebatch/internal/faults"
	"tilebatch/internal/geometry"
	"tilebatch/internal/ledger"
	"tilebatch/internal/logging"
	"tilebatch/internal/manifest"
	"tilebatch/internal/scene"
)

// handle applies one prepared tile. Only ledger write failures and
// cancellation are returned; everything else ends up as a failed or skipped
// record.
func (m *Manager) handle(ctx context.Context, p prepared, st *runState) error {
	id := p.src.ID
	if p.err != nil {
		return m.fail(faults.WithStage(ctx, "prepare"), st, id, p.err)
	}
	if p.cacheHit {
		st.summary.CacheHits++
	} else {
		st.summary.CacheMisses++
	}
	if !p.geom.Drawable() {
		return m.skip(ctx, st, id, "no drawable primitives")
	}
	if !p.cacheHit && m.cache != nil {
		if err := m.cache.Store(p.fp, p.geom); err != nil {
			logging.WarnWithContext(m.logger, "cache store failed", "cache_store_failed",
				logging.String(logging.FieldTileID, id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "tile will be decoded again next run"),
			)
		}
	}

	meshes, err := m.meshCommits(ctx, p.tile, p.geom)
	if err != nil {
		return m.fail(faults.WithStage(ctx, "materials"), st, id, err)
	}
	if m.beforeCommit != nil {
		m.beforeCommit(id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	req := scene.CommitRequest{
		TileID: id,
		Group:  GroupKey(m.cfg.Grouping, id),
		Meshes: meshes,
	}
	if err := m.host.Commit(ctx, req); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return m.fail(faults.WithStage(ctx, "commit"), st, id, hostErr(id, "commit", err))
	}
	st.committed = append(st.committed, id)
	m.logger.Debug("tile committed",
		logging.String(logging.FieldTileID, id),
		logging.String("group", req.Group),
		logging.Int("meshes", len(meshes)),
		logging.Bool("cache_hit", p.cacheHit),
	)
	return nil
}

// meshCommits pairs every mesh with its shared material instance.
func (m *Manager) meshCommits(ctx context.Context, tile *manifest.Tile, geom *geometry.Geometry) ([]scene.MeshCommit, error) {
	byIndex := make(map[int]*dedup.MaterialInstance)
	out := make([]scene.MeshCommit, 0, len(geom.Meshes))
	for _, mesh := range geom.Meshes {
		if len(mesh.Faces) == 0 {
			continue
		}
		mc := scene.MeshCommit{Mesh: mesh}
		if mesh.Material != geometry.NoMaterial && m.cfg.Import.ImportTextures {
			if mesh.Material < 0 || mesh.Material >= len(tile.Materials) {
				return nil, faults.Wrap(faults.ErrManifest, tile.ID, "material", fmt.Sprintf("mesh %s references material %d of %d", mesh.Name, mesh.Material, len(tile.Materials)), nil)
			}
			ref := tile.Materials[mesh.Material]
			inst, ok := byIndex[mesh.Material]
			if !ok {
				var err error
				inst, err = m.material(ctx, tile.ID, ref)
				if err != nil {
					return nil, err
				}
				byIndex[mesh.Material] = inst
			}
			if inst != nil {
				mc.Material = inst
				mc.UVChannel = ref.UVChannel
			}
		}
		out = append(out, mc)
	}
	return out, nil
}

// material resolves a texture reference through the host's registry. A nil
// instance with a nil error means the mesh is committed untextured.
func (m *Manager) material(ctx context.Context, tileID string, ref manifest.MaterialRef) (*dedup.MaterialInstance, error) {
	if ref.TextureURI == "" {
		return nil, nil
	}
	var key dedup.MaterialKey
	err := faults.Wrap(faults.ErrMissingAsset, tileID, "texture", ref.TextureURI+" not found", nil)
	if !ref.Missing() {
		key, err = dedup.KeyFor(ref.TexturePath)
	}
	if err != nil {
		if errors.Is(err, faults.ErrMissingAsset) && m.cfg.Import.MissingTexture == config.MissingTextureIgnore {
			logging.WarnWithContext(m.logger, "texture missing, committing untextured", "texture_missing",
				logging.String(logging.FieldTileID, tileID),
				logging.String("texture", ref.TextureURI),
				logging.String(logging.FieldErrorHint, "check paths.texture_dir"),
				logging.String(logging.FieldImpact, "meshes render without a texture"),
			)
			return nil, nil
		}
		return nil, err
	}

	inst, created, err := m.host.Registry().Resolve(ctx, key, materialName(ref))
	if err != nil {
		if errors.Is(err, faults.ErrDecode) || errors.Is(err, faults.ErrMissingAsset) {
			return nil, err
		}
		return nil, hostErr(tileID, "bind texture "+ref.TextureURI, err)
	}
	if created {
		m.logger.Debug("material created",
			logging.String(logging.FieldTileID, tileID),
			logging.String("material", inst.Name),
			logging.String("texture", inst.Key.Path),
		)
	}
	return inst, nil
}

func materialName(ref manifest.MaterialRef) string {
	if ref.Name != "" {
		return ref.Name
	}
	return ref.TextureURI
}

func hostErr(tileID, op string, err error) error {
	if errors.Is(err, faults.ErrHostCommit) {
		return err
	}
	return faults.Wrap(faults.ErrHostCommit, tileID, op, "", err)
}

func (m *Manager) fail(ctx context.Context, st *runState, id string, err error) error {
	reason := faults.Reason(err)
	attrs := append(logging.TileFailure(id, err), logging.String(logging.FieldImpact, "tile left out of the scene"))
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), "tile failed", "tile_failed", attrs...)
	if markErr := m.ledger.MarkFailed(id, reason); markErr != nil {
		return fmt.Errorf("record failure of %s: %w", id, markErr)
	}
	st.summary.Failed++
	st.summary.Failures = append(st.summary.Failures, Failure{TileID: id, Reason: reason})
	m.emit(st, id, ledger.StatusFailed, reason)
	return nil
}

func (m *Manager) skip(ctx context.Context, st *runState, id, reason string) error {
	logging.WithContext(ctx, m.logger).Info("tile skipped",
		logging.String(logging.FieldTileID, id),
		logging.String("reason", reason),
	)
	if err := m.ledger.MarkSkipped(id, reason); err != nil {
		return fmt.Errorf("record skip of %s: %w", id, err)
	}
	st.summary.Skipped++
	m.emit(st, id, ledger.StatusSkipped, reason)
	return nil
}

// checkpoint makes committed tiles durable: cache first, then the host, then
// the ledger. If the host cannot flush, the tiles since the last checkpoint
// are recorded failed.
func (m *Manager) checkpoint(ctx context.Context, st *runState, logger *slog.Logger) error {
	if m.cache != nil {
		if err := m.cache.Flush(ctx); err != nil {
			logging.WarnWithContext(logger, "cache flush failed", "cache_flush_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "geometry will be decoded again next run"),
			)
		}
	}
	if len(st.committed) == 0 {
		return nil
	}
	committed := st.committed
	st.committed = nil

	if err := m.host.Flush(ctx); err != nil {
		logging.ErrorWithContext(logger, "host flush failed", "host_flush_failed",
			logging.Error(err),
			logging.Int("tiles", len(committed)),
			logging.String(logging.FieldErrorHint, "check output.path is writable"),
		)
		for _, id := range committed {
			if ferr := m.fail(faults.WithStage(ctx, "checkpoint"), st, id, hostErr(id, "flush", err)); ferr != nil {
				return ferr
			}
		}
		return nil
	}
	for _, id := range committed {
		if err := m.ledger.MarkDone(id, ""); err != nil {
			return fmt.Errorf("record %s done: %w", id, err)
		}
		st.summary.Done++
		m.emit(st, id, ledger.StatusDone, "")
	}
	st.summary.Checkpoints++
	logger.Debug("checkpoint", logging.Int("tiles", len(committed)))
	return nil
}

func (m *Manager) emit(st *runState, id string, status ledger.Status, detail string) {
	st.finished++
	if m.onEvent != nil {
		m.onEvent(Event{Index: st.finished, Total: st.total, TileID: id, Status: status, Detail: detail})
	}
}
