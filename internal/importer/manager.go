package importer

import (
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"tilebatch/internal/config"
	"tilebatch/internal/contentcache"
	"tilebatch/internal/geometry"
	"tilebatch/internal/ledger"
	"tilebatch/internal/logging"
	"tilebatch/internal/manifest"
	"tilebatch/internal/scene"
)

// Event reports one tile reaching a terminal state.
type Event struct {
	Index  int
	Total  int
	TileID string
	Status ledger.Status
	// Detail holds the failure or skip reason.
	Detail string
}

// Manager runs batches against one cache, ledger, and host.
type Manager struct {
	cfg    *config.Config
	cache  *contentcache.Cache
	ledger *ledger.Ledger
	host   scene.Host
	reader manifest.Reader
	logger *slog.Logger
	runID  string

	onEvent      func(Event)
	beforeCommit func(tileID string)
	decode       func(*manifest.Tile) (*geometry.Geometry, error)

	decodes     singleflight.Group
	decodeCount atomic.Int64
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithRunID tags ledger records and log lines with the run identifier.
func WithRunID(id string) Option {
	return func(m *Manager) {
		m.runID = id
	}
}

// WithEvents registers a callback invoked on the consumer goroutine each time
// a tile finishes.
func WithEvents(fn func(Event)) Option {
	return func(m *Manager) {
		m.onEvent = fn
	}
}

// NewManager constructs a Manager. The cache may be nil to run without one.
func NewManager(cfg *config.Config, cache *contentcache.Cache, l *ledger.Ledger, host scene.Host, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		cache:  cache,
		ledger: l,
		host:   host,
		reader: manifest.Reader{TextureDir: cfg.Paths.TextureDir},
		logger: logging.NewComponentLogger(logger, "importer"),
	}
	m.decode = m.decodeTile
	for _, opt := range opts {
		opt(m)
	}
	return m
}
