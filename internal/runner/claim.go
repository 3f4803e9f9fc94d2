package runner

import (
	"context"
	"database/sql"
	"time"

	"bencher/internal/apierrors"
	"bencher/internal/model"
	"bencher/internal/store"
)

// CreateJob inserts a new Created job for project, unassigned to any
// runner (spec.md §3 "job -> runner (optional)"). configJSON is the
// job's embedded config referencing the project, opaque to this package.
func (j *Jobs) CreateJob(ctx context.Context, projectID model.ProjectID, configJSON string) (*model.Job, error) {
	now := time.Now().UTC()
	id := model.NewUUID()
	var job model.Job
	err := j.Store.WriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO job (uuid, project_id, runner_id, status, config_json, created, modified)
			VALUES (?, ?, NULL, ?, ?, ?, ?)`, id.String(), int64(projectID), string(model.JobCreated), configJSON, now, now)
		if err != nil {
			return store.ClassifyError(err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return apierrors.Internal(err, "reading new job id")
		}
		job = model.Job{ID: model.JobID(rowID), UUID: id, ProjectID: projectID, Status: model.JobCreated, ConfigJSON: configJSON, Created: now, Modified: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimJob implements spec.md §6's "runner polling (pre-websocket)"
// endpoint: atomically assigns the oldest unclaimed Created job for
// project to runnerID, transitioning it to Claimed. A nil job with a nil
// error means no work is available right now, which is not itself an
// error condition (§9 "expected control flow" rule).
func (j *Jobs) ClaimJob(ctx context.Context, projectID model.ProjectID, runnerID model.RunnerID) (*model.Job, error) {
	var claimed *model.Job
	err := j.Store.WriteTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id FROM job WHERE project_id = ? AND status = ? AND runner_id IS NULL ORDER BY id ASC LIMIT 1`,
			int64(projectID), string(model.JobCreated))
		var jobID int64
		if err := row.Scan(&jobID); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return store.ClassifyError(err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE job SET status = ?, runner_id = ?, modified = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ? AND runner_id IS NULL`,
			string(model.JobClaimed), int64(runnerID), jobID, string(model.JobCreated))
		if err != nil {
			return store.ClassifyError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apierrors.Internal(err, "reading rows affected")
		}
		if n == 0 {
			// Another runner's poll won the race for this row; report no
			// work available rather than retrying, the next poll will
			// pick up whatever is left.
			return nil
		}

		row = tx.QueryRowContext(ctx, `SELECT id, uuid, project_id, runner_id, status, config_json, started, last_heartbeat, ingestion_failed, created, modified
			FROM job WHERE id = ?`, jobID)
		j, err := scanJob(row)
		if err != nil {
			return err
		}
		claimed = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
