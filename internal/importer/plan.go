package importer

import (
	"tilebatch/internal/faults"
	"tilebatch/internal/ledger"
	"tilebatch/internal/manifest"
)

// PlanEntry describes what a run would do with one tile.
type PlanEntry struct {
	TileID     string
	Group      string
	Status     ledger.Status
	Action     string
	Primitives int
	Materials  int
	// MissingTextures lists texture URIs that did not resolve.
	MissingTextures []string
	Problem         string
}

// Plan actions.
const (
	ActionImport = "import"
	ActionSkip   = "skip"
	ActionHold   = "hold"
	ActionFail   = "fail"
)

// Plan parses every descriptor without decoding buffers or touching the
// cache, host, or ledger.
func (m *Manager) Plan(sources []manifest.Source) []PlanEntry {
	out := make([]PlanEntry, 0, len(sources))
	for _, src := range sources {
		entry := PlanEntry{TileID: src.ID, Group: GroupKey(m.cfg.Grouping, src.ID), Action: ActionImport}
		if rec, ok := m.ledger.Status(src.ID); ok {
			entry.Status = rec.Status
			switch {
			case rec.Status == ledger.StatusDone:
				entry.Action = ActionSkip
			case rec.Status == ledger.StatusFailed && !m.cfg.Import.RetryFailed,
				rec.Status == ledger.StatusSkipped && !m.cfg.Import.RetrySkipped:
				entry.Action = ActionHold
			}
		}
		tile, err := m.reader.Read(src)
		if err != nil {
			entry.Problem = faults.Reason(err)
			if entry.Action == ActionImport {
				entry.Action = ActionFail
			}
			out = append(out, entry)
			continue
		}
		entry.Primitives = len(tile.Primitives)
		entry.Materials = len(tile.Materials)
		for _, mat := range tile.Materials {
			if mat.Missing() {
				entry.MissingTextures = append(entry.MissingTextures, mat.TextureURI)
			}
		}
		out = append(out, entry)
	}
	return out
}
