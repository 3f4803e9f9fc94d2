package model

import (
	"time"

	"github.com/google/uuid"
)

// Runner is an external process that executes jobs (spec.md glossary).
type Runner struct {
	ID        RunnerID
	UUID      uuid.UUID
	ProjectID ProjectID
	Name      string
	TokenHash string
	Created   time.Time
}

func (r Runner) ExternalID() uuid.UUID { return r.UUID }

// JobStatus is the job FSM's state (I8). Completed/Failed/Canceled are
// terminal.
type JobStatus string

const (
	JobCreated   JobStatus = "created"
	JobClaimed   JobStatus = "claimed"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether status is one of the three terminal states.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCanceled:
		return true
	default:
		return false
	}
}

// validTransitions encodes I8's state graph exactly:
//
//	Created  -> Claimed
//	Claimed  -> Running, Failed, Canceled
//	Running  -> Completed, Failed, Canceled
//
// Canceled is reachable from any non-terminal state, which the two
// entries above already cover (Claimed and Running are the only
// non-terminal predecessors besides Created, and Created->Canceled is
// also valid per "reachable from any non-terminal state").
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobCreated: {JobClaimed: true, JobCanceled: true},
	JobClaimed: {JobRunning: true, JobFailed: true, JobCanceled: true},
	JobRunning: {JobCompleted: true, JobFailed: true, JobCanceled: true},
}

// CanTransition reports whether from->to is a legal edge in I8's graph.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	return validTransitions[from][to]
}

// Job is a unit of runner work with a strict state machine (I8); it owns
// output artifacts stored in the OCI registry.
type Job struct {
	ID              JobID
	UUID            uuid.UUID
	ProjectID       ProjectID
	RunnerID        *RunnerID
	Status          JobStatus
	ConfigJSON      string
	Started         *time.Time
	LastHeartbeat   *time.Time
	IngestionFailed bool
	Created         time.Time
	Modified        time.Time
}

func (j Job) ExternalID() uuid.UUID { return j.UUID }
