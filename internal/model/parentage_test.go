package model

import "testing"

func recoverAsError(t *testing.T, fn func()) (recovered interface{}) {
	t.Helper()
	defer func() {
		recovered = recover()
	}()
	fn()
	return recovered
}

func TestAssertBranchBelongsToProjectPassesWhenTrue(t *testing.T) {
	recovered := recoverAsError(t, func() {
		AssertBranchBelongsToProject(Branch{ProjectID: 1}, Project{ID: 1})
	})
	if recovered != nil {
		t.Fatalf("expected no panic, got %v", recovered)
	}
}

func TestAssertBranchBelongsToProjectPanicsOnMismatch(t *testing.T) {
	recovered := recoverAsError(t, func() {
		AssertBranchBelongsToProject(Branch{ProjectID: 1}, Project{ID: 2})
	})
	if recovered == nil {
		t.Fatalf("expected panic on parentage mismatch")
	}
}

func TestJobTransitionGraph(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobCreated, JobClaimed, true},
		{JobClaimed, JobRunning, true},
		{JobClaimed, JobFailed, true},
		{JobClaimed, JobCanceled, true},
		{JobRunning, JobCompleted, true},
		{JobRunning, JobFailed, true},
		{JobRunning, JobCanceled, true},
		{JobCreated, JobRunning, false},
		{JobCreated, JobCompleted, false},
		{JobCompleted, JobFailed, false},
		{JobFailed, JobRunning, false},
		{JobCanceled, JobCompleted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatusesAreTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobCompleted, JobFailed, JobCanceled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobCreated, JobClaimed, JobRunning} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
