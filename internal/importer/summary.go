package importer

import "time"

// Failure is one tile that could not be imported.
type Failure struct {
	TileID string
	Reason string
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID string
	// Total counts tiles in the manifest.
	Total       int
	Done        int
	Failed      int
	Skipped     int
	AlreadyDone int
	// Held counts failed or skipped tiles from earlier runs that retry
	// settings excluded.
	Held             int
	CacheHits        int
	CacheMisses      int
	Decodes          int
	MaterialsCreated int
	MaterialsReused  int
	Checkpoints      int
	Canceled         bool
	Elapsed          time.Duration
	Failures         []Failure
}

// Processed counts tiles that reached a terminal state this run.
func (s Summary) Processed() int {
	return s.Done + s.Failed + s.Skipped
}
