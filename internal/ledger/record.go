package ledger

import (
	"errors"
	"time"
)

// Status is the progress state of one tile.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

var (
	// ErrLocked reports that another process holds the ledger.
	ErrLocked = errors.New("ledger is locked by another run")
	// ErrUnknownTile reports a mark for a tile that was never registered.
	ErrUnknownTile = errors.New("tile not registered")
	// ErrIllegalTransition reports a mark that would move a tile out of done.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// Record is one ledger line.
type Record struct {
	Tile   string    `json:"tile"`
	Status Status    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	Run    string    `json:"run,omitempty"`
	At     time.Time `json:"at"`
}

// Terminal reports whether the status ends a tile's processing for a run.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusSkipped
}

func (s Status) valid() bool {
	return s == StatusPending || s.Terminal()
}

// Summary counts tiles per status.
type Summary struct {
	Total   int
	Pending int
	Done    int
	Failed  int
	Skipped int
}
