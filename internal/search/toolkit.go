package search

import (
	"cardcheck/internal/snapshot"
)

// Toolkit bundles the four evidence search capabilities over one snapshot.
// It is the only API surface visible to sandboxed verification programs;
// everything on it is read-only.
type Toolkit struct {
	snap       *snapshot.Snapshot
	maxMatches int
}

// NewToolkit builds a toolkit with a per-query match cap.
func NewToolkit(snap *snapshot.Snapshot, maxMatches int) *Toolkit {
	if maxMatches <= 0 {
		maxMatches = 50
	}
	return &Toolkit{snap: snap, maxMatches: maxMatches}
}
