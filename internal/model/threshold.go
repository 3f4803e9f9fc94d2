package model

import (
	"time"

	"github.com/google/uuid"
)

// ThresholdModelKind is the tagged discriminator for a statistical model
// (spec.md §4.4, §9 "Tagged variants").
type ThresholdModelKind string

const (
	ModelKindStatic     ThresholdModelKind = "static"
	ModelKindPercentile ThresholdModelKind = "percentile"
	ModelKindIQR        ThresholdModelKind = "iqr"
	ModelKindZScore     ThresholdModelKind = "z_score"
	ModelKindTTest      ThresholdModelKind = "t_test"
)

// Threshold attaches an (optional) current model to a (branch, testbed,
// measure) tuple (I4: at most one current model).
type Threshold struct {
	ID         ThresholdID
	UUID       uuid.UUID
	ProjectID  ProjectID
	BranchID   BranchID
	TestbedID  TestbedID
	MeasureID  MeasureID
	CurrentModelID *ThresholdModelID
	Created    time.Time
	Modified   time.Time
}

func (t Threshold) ExternalID() uuid.UUID { return t.UUID }

// ThresholdModel is append-only: previous models retain a Replaced
// timestamp and are never mutated again (I4).
type ThresholdModel struct {
	ID            ThresholdModelID
	UUID          uuid.UUID
	ThresholdID   ThresholdID
	Kind          ThresholdModelKind
	ConfigJSON    string // opaque per-kind config, decoded by internal/threshold
	WindowSize    int    // max historical metric count considered
	MinSampleSize int    // below this many samples, no boundary is produced
	Replaced      *time.Time
	Created       time.Time
}

func (m ThresholdModel) ExternalID() uuid.UUID { return m.UUID }

// IsCurrent reports whether this model is still its threshold's active
// model.
func (m ThresholdModel) IsCurrent() bool { return m.Replaced == nil }

// BoundaryClassification is the outcome of evaluating a metric against a
// model's limits (spec.md §4.4).
type BoundaryClassification string

const (
	WithinBounds BoundaryClassification = "within_bounds"
	BelowLower   BoundaryClassification = "below_lower"
	AboveUpper   BoundaryClassification = "above_upper"
)

// Boundary references the model active at ingestion time (I5: later model
// changes never rewrite history).
type Boundary struct {
	ID             BoundaryID
	UUID           uuid.UUID
	MetricID       MetricID
	ThresholdID    ThresholdID
	ModelID        ThresholdModelID
	LowerLimit     *float64
	UpperLimit     *float64
	Baseline       float64
	Classification BoundaryClassification
	Created        time.Time
}

func (b Boundary) ExternalID() uuid.UUID { return b.UUID }

// AlertStatus is Active or Silenced (I6).
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertSilenced AlertStatus = "silenced"
)

// Alert references a Boundary that fell outside its model's limits.
type Alert struct {
	ID         AlertID
	UUID       uuid.UUID
	BoundaryID BoundaryID
	Status     AlertStatus
	Created    time.Time
	Modified   time.Time
}

func (a Alert) ExternalID() uuid.UUID { return a.UUID }
