package runner

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/kr/pretty"

	"bencher/internal/model"
)

func TestCreateJob(t *testing.T) {
	jobs, mock, cleanup := newTestJobs(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO job").
		WithArgs(sqlmock.AnyArg(), int64(5), string(model.JobCreated), `{"project_id":5}`, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(17, 1))
	mock.ExpectCommit()

	job, err := jobs.CreateJob(context.Background(), model.ProjectID(5), `{"project_id":5}`)
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if job.Status != model.JobCreated || job.RunnerID != nil {
		t.Fatalf("CreateJob() = %+v, want Created status and no assigned runner", job)
	}
	if job.ID != model.JobID(17) {
		t.Fatalf("CreateJob() ID = %v, want 17", job.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestClaimJobAssignsOldestUnclaimed covers the happy path: the oldest
// Created, unassigned job for the project is claimed and transitioned.
func TestClaimJobAssignsOldestUnclaimed(t *testing.T) {
	jobs, mock, cleanup := newTestJobs(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM job WHERE project_id = \\? AND status = \\? AND runner_id IS NULL").
		WithArgs(int64(5), string(model.JobCreated)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))
	mock.ExpectExec("UPDATE job SET status = \\?, runner_id = \\?, modified = CURRENT_TIMESTAMP").
		WithArgs(string(model.JobClaimed), int64(9), int64(17), string(model.JobCreated)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, uuid, project_id, runner_id, status, config_json, started, last_heartbeat, ingestion_failed, created, modified").
		WithArgs(int64(17)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "project_id", "runner_id", "status", "config_json", "started", "last_heartbeat", "ingestion_failed", "created", "modified"}).
			AddRow(int64(17), model.NewUUID().String(), int64(5), int64(9), string(model.JobClaimed), `{}`, nil, nil, false, time.Now(), time.Now()))
	mock.ExpectCommit()

	job, err := jobs.ClaimJob(context.Background(), model.ProjectID(5), model.RunnerID(9))
	if err != nil {
		t.Fatalf("ClaimJob() error = %v", err)
	}
	if job == nil {
		t.Fatal("ClaimJob() = nil, want a claimed job")
	}
	if job.Status != model.JobClaimed || job.RunnerID == nil || *job.RunnerID != model.RunnerID(9) {
		t.Fatalf("ClaimJob() = %# v, want Claimed and assigned to runner 9", pretty.Formatter(job))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestClaimJobNoneAvailable covers the "no work is available right now"
// case (spec.md §9): a nil job with a nil error, not an error condition.
func TestClaimJobNoneAvailable(t *testing.T) {
	jobs, mock, cleanup := newTestJobs(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM job WHERE project_id = \\? AND status = \\? AND runner_id IS NULL").
		WithArgs(int64(5), string(model.JobCreated)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	job, err := jobs.ClaimJob(context.Background(), model.ProjectID(5), model.RunnerID(9))
	if err != nil {
		t.Fatalf("ClaimJob() error = %v, want nil", err)
	}
	if job != nil {
		t.Fatalf("ClaimJob() = %+v, want nil when no work is available", job)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestClaimJobLosesRace covers the conditional UPDATE affecting zero
// rows because another runner's poll claimed the same job first.
func TestClaimJobLosesRace(t *testing.T) {
	jobs, mock, cleanup := newTestJobs(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM job WHERE project_id = \\? AND status = \\? AND runner_id IS NULL").
		WithArgs(int64(5), string(model.JobCreated)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))
	mock.ExpectExec("UPDATE job SET status = \\?, runner_id = \\?, modified = CURRENT_TIMESTAMP").
		WithArgs(string(model.JobClaimed), int64(9), int64(17), string(model.JobCreated)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	job, err := jobs.ClaimJob(context.Background(), model.ProjectID(5), model.RunnerID(9))
	if err != nil {
		t.Fatalf("ClaimJob() error = %v, want nil", err)
	}
	if job != nil {
		t.Fatalf("ClaimJob() = %+v, want nil when the row was claimed concurrently", job)
	}
}
