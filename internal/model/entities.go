package model

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the root of the ownership hierarchy (spec.md §3).
type Organization struct {
	ID       OrgID
	UUID     uuid.UUID
	Slug     string
	Name     string
	Created  time.Time
	Modified time.Time
}

func (o Organization) ExternalID() uuid.UUID { return o.UUID }

// Project belongs to exactly one Organization (I1: unique name within org).
type Project struct {
	ID             ProjectID
	UUID           uuid.UUID
	OrganizationID OrgID
	Slug           string
	Name           string
	Public         bool
	PushTokenHash  string
	Archived       *time.Time
	Created        time.Time
	Modified       time.Time
}

func (p Project) ExternalID() uuid.UUID { return p.UUID }

// Branch belongs to a Project; it optionally records a start point used
// when it was created from another branch (spec.md §4.3 step 1).
type Branch struct {
	ID                 BranchID
	UUID               uuid.UUID
	ProjectID          ProjectID
	Slug               string
	Name               string
	StartPointBranchID *BranchID
	StartPointHash     *string
	Archived           *time.Time
	Created            time.Time
	Modified           time.Time
}

func (b Branch) ExternalID() uuid.UUID { return b.UUID }

// Head is a Branch's current tip. Replaced is set iff it is no longer
// current (I2).
type Head struct {
	ID       HeadID
	UUID     uuid.UUID
	BranchID BranchID
	Replaced *time.Time
	Created  time.Time
}

func (h Head) ExternalID() uuid.UUID { return h.UUID }

// IsCurrent reports whether this head is still its branch's tip (I2).
func (h Head) IsCurrent() bool { return h.Replaced == nil }

// Version is a monotonic per-project sequence number, optionally carrying
// a git hash, linked into heads via HeadVersion.
type Version struct {
	ID        VersionID
	UUID      uuid.UUID
	ProjectID ProjectID
	Number    int64
	Hash      *string
	Created   time.Time
}

func (v Version) ExternalID() uuid.UUID { return v.UUID }

// HeadVersion is the many-to-many join linking a Head to the Versions that
// have been current while it was the branch's tip.
type HeadVersion struct {
	HeadID    HeadID
	VersionID VersionID
	Created   time.Time
}

// Testbed is a named environment in which benchmarks run.
type Testbed struct {
	ID        TestbedID
	UUID      uuid.UUID
	ProjectID ProjectID
	Slug      string
	Name      string
	Archived  *time.Time
	Created   time.Time
	Modified  time.Time
}

func (t Testbed) ExternalID() uuid.UUID { return t.UUID }

// Measure is the dimension being measured; units live here, not on Metric.
type Measure struct {
	ID        MeasureID
	UUID      uuid.UUID
	ProjectID ProjectID
	Slug      string
	Name      string
	Units     string
	Archived  *time.Time
	Created   time.Time
	Modified  time.Time
}

func (m Measure) ExternalID() uuid.UUID { return m.UUID }

// Benchmark is a named benchmark within a Project.
type Benchmark struct {
	ID        BenchmarkID
	UUID      uuid.UUID
	ProjectID ProjectID
	Slug      string
	Name      string
	Archived  *time.Time
	Created   time.Time
	Modified  time.Time
}

func (b Benchmark) ExternalID() uuid.UUID { return b.UUID }

// Report is one submission: (project, head, version, testbed).
type Report struct {
	ID        ReportID
	UUID      uuid.UUID
	ProjectID ProjectID
	HeadID    HeadID
	VersionID VersionID
	TestbedID TestbedID
	Adapter   string
	StartTime time.Time
	EndTime   time.Time
	Created   time.Time
}

func (r Report) ExternalID() uuid.UUID { return r.UUID }

// ReportBenchmark is one (report, benchmark, iteration) row.
type ReportBenchmark struct {
	ID          ReportBenchID
	UUID        uuid.UUID
	ReportID    ReportID
	BenchmarkID BenchmarkID
	Iteration   int64
	Created     time.Time
}

func (rb ReportBenchmark) ExternalID() uuid.UUID { return rb.UUID }

// Metric is a single numeric value for a (ReportBenchmark, Measure) pair.
// I3: a duplicate (report_benchmark, measure) pair is a Conflict, not an
// overwrite.
type Metric struct {
	ID                MetricID
	UUID              uuid.UUID
	ReportBenchmarkID ReportBenchID
	MeasureID         MeasureID
	Value             float64
	Created           time.Time
}

func (m Metric) ExternalID() uuid.UUID { return m.UUID }
