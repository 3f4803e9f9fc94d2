// Package model holds Bencher's domain entities, their parentage
// invariants, and the cross-cutting helpers (name uniquification, rank
// redistribution) described in spec.md §3/§4.2. Every entity carries a
// compact int64 id for foreign keys and a uuid.UUID for external
// identity; nothing outside this package may construct an id from a raw
// integer or string, so that a parentage assertion failure here really
// does mean a programmer error, never a data problem that leaked in.
package model

import "github.com/google/uuid"

// OrgID, ProjectID, etc. are distinct int64-backed types so that passing
// a BranchID where a TestbedID is expected is a compile error.
type (
	OrgID           int64
	ProjectID       int64
	BranchID        int64
	HeadID          int64
	VersionID       int64
	TestbedID       int64
	MeasureID       int64
	BenchmarkID     int64
	ReportID        int64
	ReportBenchID   int64
	MetricID        int64
	ThresholdID     int64
	ThresholdModelID int64
	BoundaryID      int64
	AlertID         int64
	PlotID          int64
	RunnerID        int64
	JobID           int64
)

// UUIDOf is satisfied by every entity that carries an external identity.
type UUIDOf interface {
	ExternalID() uuid.UUID
}

// NewUUID generates a fresh external identity. Centralized here so the
// UUID version/generator can change in one place.
func NewUUID() uuid.UUID {
	return uuid.New()
}
