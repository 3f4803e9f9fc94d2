package model

import (
	"fmt"

	"bencher/internal/apierrors"
)

// AssertParent panics with a structured *apierrors.Error (KindInternal)
// when child does not in fact belong to parent. Per spec.md §4.2 and §9,
// parentage assertions are programmer errors, not runtime failures: every
// translation between a child and its parent's identity checks this
// before trusting the relationship, and a failure here means the caller
// built the wrong query, not that the data is bad.
//
// The process-level recover in the HTTP/WS middleware turns this panic
// into a 500 without crashing the server; it is never used for expected
// control flow.
func AssertParent(ok bool, childKind, parentKind string, childID, parentID interface{}) {
	if ok {
		return
	}
	panic(apierrors.Internal(
		fmt.Errorf("%s %v does not belong to %s %v", childKind, childID, parentKind, parentID),
		"parentage assertion failed",
	))
}

// AssertBranchBelongsToProject is a typed convenience wrapper used at the
// ingestion/threshold boundary (spec.md §3 parentage table).
func AssertBranchBelongsToProject(b Branch, p Project) {
	AssertParent(b.ProjectID == p.ID, "branch", "project", b.ID, p.ID)
}

// AssertTestbedBelongsToProject mirrors AssertBranchBelongsToProject.
func AssertTestbedBelongsToProject(tb Testbed, p Project) {
	AssertParent(tb.ProjectID == p.ID, "testbed", "project", tb.ID, p.ID)
}

// AssertMeasureBelongsToProject mirrors AssertBranchBelongsToProject.
func AssertMeasureBelongsToProject(m Measure, p Project) {
	AssertParent(m.ProjectID == p.ID, "measure", "project", m.ID, p.ID)
}

// AssertThresholdBelongsToProject mirrors AssertBranchBelongsToProject.
func AssertThresholdBelongsToProject(t Threshold, p Project) {
	AssertParent(t.ProjectID == p.ID, "threshold", "project", t.ID, p.ID)
}

// AssertModelBelongsToThreshold mirrors AssertBranchBelongsToProject.
func AssertModelBelongsToThreshold(m ThresholdModel, t Threshold) {
	AssertParent(m.ThresholdID == t.ID, "threshold_model", "threshold", m.ID, t.ID)
}

// AssertBoundaryBelongsToModel verifies I5's ancestry: a boundary's model
// must be the one it actually references, never substituted after the
// fact.
func AssertBoundaryBelongsToModel(b Boundary, m ThresholdModel) {
	AssertParent(b.ModelID == m.ID, "boundary", "threshold_model", b.ID, m.ID)
}

// AssertAlertBelongsToBoundary mirrors AssertBranchBelongsToProject.
func AssertAlertBelongsToBoundary(a Alert, b Boundary) {
	AssertParent(a.BoundaryID == b.ID, "alert", "boundary", a.ID, b.ID)
}

// AssertJobBelongsToRunner verifies the runner-channel handshake
// precondition from spec.md §4.5: "job must exist, belong to this
// runner, and be in {Claimed, Running}".
func AssertJobBelongsToRunner(j Job, r Runner) {
	AssertParent(j.RunnerID != nil && *j.RunnerID == r.ID, "job", "runner", j.ID, r.ID)
}
