package model

import (
	"time"

	"github.com/google/uuid"
)

// Plot is a user-configured view over selected branches × testbeds ×
// benchmarks × measures (spec.md glossary).
type Plot struct {
	ID        PlotID
	UUID      uuid.UUID
	ProjectID ProjectID
	Title     string
	Created   time.Time
	Modified  time.Time
}

func (p Plot) ExternalID() uuid.UUID { return p.UUID }

// RankedChild is the common shape of every plot_<kind> join row: a child
// entity id plus its sortable rank within the plot (I7).
type RankedChild struct {
	ChildID int64
	Rank    int64
}
