package runner

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"bencher/internal/apierrors"
	"bencher/internal/model"
	"bencher/internal/store"
)

// Outcome is what a handler decided to do with a job, driving both the
// server's reply and whether the socket should close (spec.md §4.5
// "Socket closure rules").
type Outcome struct {
	Reply       ServerEvent
	CloseReason string // empty means "keep the socket open"
	NewStatus   model.JobStatus
}

// Jobs wraps a Store with the job FSM's conditional-update transitions
// (spec.md §4.5 "every state-changing DB write is a conditional UPDATE
// whose WHERE clause includes the expected prior status").
type Jobs struct {
	Store *store.Store
}

func (j *Jobs) conditionalTransition(ctx context.Context, jobID model.JobID, from, to model.JobStatus, extra string, extraArgs []interface{}) (bool, error) {
	var rowsAffected int64
	err := j.Store.WriteTx(ctx, func(tx *sql.Tx) error {
		args := append([]interface{}{string(to)}, extraArgs...)
		args = append(args, int64(jobID), string(from))
		res, err := tx.ExecContext(ctx, `UPDATE job SET status = ?, modified = CURRENT_TIMESTAMP`+extra+` WHERE id = ? AND status = ?`, args...)
		if err != nil {
			return store.ClassifyError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apierrors.Internal(err, "reading rows affected")
		}
		rowsAffected = n
		return nil
	})
	return rowsAffected > 0, err
}

// readJob is a pure read, so it goes through the read pool rather than
// the writer mutex (§4.1's pools-accelerate-reads contract).
func readJob(ctx context.Context, s *store.Store, jobID model.JobID) (*model.Job, error) {
	conn, err := s.Reader(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	row := conn.QueryRowContext(ctx, `SELECT id, uuid, project_id, runner_id, status, config_json, started, last_heartbeat, ingestion_failed, created, modified
		FROM job WHERE id = ?`, int64(jobID))
	return scanJob(row)
}

func scanJob(row *sql.Row) (*model.Job, error) {
	var j model.Job
	var idStr string
	var runnerID sql.NullInt64
	var status string
	var started, lastHeartbeat sql.NullTime
	if err := row.Scan(&j.ID, &idStr, &j.ProjectID, &runnerID, &status, &j.ConfigJSON, &started, &lastHeartbeat, &j.IngestionFailed, &j.Created, &j.Modified); err != nil {
		return nil, store.ClassifyError(err)
	}
	u, err := uuid.Parse(idStr)
	if err != nil {
		return nil, apierrors.Internal(err, "corrupt job uuid")
	}
	j.UUID = u
	j.Status = model.JobStatus(status)
	if runnerID.Valid {
		r := model.RunnerID(runnerID.Int64)
		j.RunnerID = &r
	}
	if started.Valid {
		v := started.Time
		j.Started = &v
	}
	if lastHeartbeat.Valid {
		v := lastHeartbeat.Time
		j.LastHeartbeat = &v
	}
	return &j, nil
}

// HandleRunning implements spec.md §4.5's Running handler: try the
// reconnection path first (Running->Running, refresh last_heartbeat),
// then the claim path (Claimed->Running, stamp started), then fall back
// to a re-read to classify the race.
func (j *Jobs) HandleRunning(ctx context.Context, jobID model.JobID) (Outcome, error) {
	ok, err := j.conditionalTransition(ctx, jobID, model.JobRunning, model.JobRunning, ", last_heartbeat = CURRENT_TIMESTAMP", nil)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		return Outcome{Reply: EventAck, NewStatus: model.JobRunning}, nil
	}

	ok, err = j.conditionalTransition(ctx, jobID, model.JobClaimed, model.JobRunning, ", started = CURRENT_TIMESTAMP, last_heartbeat = CURRENT_TIMESTAMP", nil)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		return Outcome{Reply: EventAck, NewStatus: model.JobRunning}, nil
	}

	return j.classifyRace(ctx, jobID)
}

// classifyRace re-reads a job after a conditional UPDATE affected zero
// rows, per spec.md §4.5's three-way classification.
func (j *Jobs) classifyRace(ctx context.Context, jobID model.JobID) (Outcome, error) {
	job, err := readJob(ctx, j.Store, jobID)
	if err != nil {
		return Outcome{}, err
	}
	if job.Status == model.JobCanceled {
		return Outcome{Reply: EventCancel, CloseReason: "job canceled", NewStatus: model.JobCanceled}, nil
	}
	if job.Status.IsTerminal() {
		// Late message against an already-terminal job: non-fatal.
		return Outcome{Reply: EventAck, NewStatus: job.Status}, nil
	}
	return Outcome{}, apierrors.Conflict("invalid state transition for job %d (currently %s)", jobID, job.Status)
}

// HandleHeartbeat implements spec.md §4.5's Heartbeat handler.
func (j *Jobs) HandleHeartbeat(ctx context.Context, jobID model.JobID, timeout, grace time.Duration) (Outcome, error) {
	job, err := readJob(ctx, j.Store, jobID)
	if err != nil {
		return Outcome{}, err
	}
	if job.Status == model.JobCanceled {
		return Outcome{Reply: EventCancel, CloseReason: "job canceled"}, nil
	}
	if job.Started != nil && time.Since(*job.Started) > timeout+grace {
		return j.timeoutToCanceled(ctx, jobID, job.Status)
	}

	ok, err := j.conditionalTransition(ctx, jobID, job.Status, job.Status, ", last_heartbeat = CURRENT_TIMESTAMP", nil)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return j.classifyRace(ctx, jobID)
	}
	return Outcome{Reply: EventAck, NewStatus: job.Status}, nil
}

// timeoutToCanceled transitions a job to Canceled on a heartbeat-deadline
// timeout once elapsed exceeds timeout+grace (spec.md B2 "elapsed >
// timeout+grace ⇒ Canceled with reason 'job timeout exceeded'").
func (j *Jobs) timeoutToCanceled(ctx context.Context, jobID model.JobID, from model.JobStatus) (Outcome, error) {
	ok, err := j.conditionalTransition(ctx, jobID, from, model.JobCanceled, "", nil)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return j.classifyRace(ctx, jobID)
	}
	return Outcome{Reply: EventCancel, CloseReason: "job timeout exceeded", NewStatus: model.JobCanceled}, nil
}

// timeoutToFailed transitions a job to Failed on a heartbeat-deadline
// timeout that hasn't yet cleared timeout+grace (spec.md B1/S3 "heartbeat
// timeout").
func (j *Jobs) timeoutToFailed(ctx context.Context, jobID model.JobID, from model.JobStatus) (Outcome, error) {
	ok, err := j.conditionalTransition(ctx, jobID, from, model.JobFailed, "", nil)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return j.classifyRace(ctx, jobID)
	}
	return Outcome{Reply: EventCancel, CloseReason: "heartbeat timeout", NewStatus: model.JobFailed}, nil
}

// HandleDeadlineTimeout applies the B1/B2/S3 deadline criterion when a
// heartbeat-timeout task fires without an explicit Heartbeat message
// having arrived (the in-loop read-deadline path in channel.go, and the
// detached post-disconnect task in heartbeat.go): a job that never
// started, or started but hasn't yet exceeded timeout+grace, is Failed
// with reason "heartbeat timeout"; only once elapsed exceeds timeout+grace
// does it become Canceled with reason "job timeout exceeded". Unlike
// HandleHeartbeat, this never just ACKs — the deadline firing is itself
// the signal that the runner went silent.
func (j *Jobs) HandleDeadlineTimeout(ctx context.Context, jobID model.JobID, timeout, grace time.Duration) (Outcome, error) {
	job, err := readJob(ctx, j.Store, jobID)
	if err != nil {
		return Outcome{}, err
	}
	if job.Status.IsTerminal() {
		return Outcome{Reply: EventAck, NewStatus: job.Status}, nil
	}
	if job.Started != nil && time.Since(*job.Started) > timeout+grace {
		return j.timeoutToCanceled(ctx, jobID, job.Status)
	}
	return j.timeoutToFailed(ctx, jobID, job.Status)
}

// HandleFailed implements spec.md §4.5's Failed handler.
func (j *Jobs) HandleFailed(ctx context.Context, jobID model.JobID) (Outcome, error) {
	for _, from := range []model.JobStatus{model.JobClaimed, model.JobRunning} {
		ok, err := j.conditionalTransition(ctx, jobID, from, model.JobFailed, "", nil)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			return Outcome{Reply: EventAck, CloseReason: "job failed", NewStatus: model.JobFailed}, nil
		}
	}
	return j.classifyRace(ctx, jobID)
}

// HandleCanceled implements spec.md §4.5's Canceled handler: idempotent
// if already Canceled.
func (j *Jobs) HandleCanceled(ctx context.Context, jobID model.JobID) (Outcome, error) {
	for _, from := range []model.JobStatus{model.JobClaimed, model.JobRunning} {
		ok, err := j.conditionalTransition(ctx, jobID, from, model.JobCanceled, "", nil)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			return Outcome{Reply: EventAck, CloseReason: "job canceled", NewStatus: model.JobCanceled}, nil
		}
	}
	outcome, err := j.classifyRace(ctx, jobID)
	if err != nil {
		return Outcome{}, err
	}
	if outcome.NewStatus == model.JobCanceled {
		outcome.CloseReason = "job canceled"
	}
	return outcome, nil
}

// HandleCompletedTransition performs only the job status transition half
// of spec.md §4.5's Completed handler (Running->Completed); storing the
// output blob and invoking ingestion are the caller's responsibility
// (channel.go), since a best-effort-logged ingestion failure must never
// revert this transition (Open Question #1, SPEC_FULL.md §4.5/§9).
func (j *Jobs) HandleCompletedTransition(ctx context.Context, jobID model.JobID) (Outcome, error) {
	ok, err := j.conditionalTransition(ctx, jobID, model.JobRunning, model.JobCompleted, "", nil)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		return Outcome{Reply: EventAck, CloseReason: "job completed", NewStatus: model.JobCompleted}, nil
	}
	return j.classifyRace(ctx, jobID)
}

// MarkIngestionFailed sets job.ingestion_failed without touching status
// (Open Question #1): a failed best-effort re-ingestion of a Completed
// job's results never reverts the terminal status.
func (j *Jobs) MarkIngestionFailed(ctx context.Context, jobID model.JobID) error {
	return j.Store.WriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE job SET ingestion_failed = 1, modified = CURRENT_TIMESTAMP WHERE id = ?`, int64(jobID))
		return store.ClassifyError(err)
	})
}

// ScanNonTerminal returns every job not yet in a terminal state, used on
// process start to re-arm heartbeat-timeout tasks (spec.md §3 "recovery
// on server start scans for non-terminal jobs").
func ScanNonTerminal(ctx context.Context, s *store.Store) ([]model.Job, error) {
	conn, err := s.Reader(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `SELECT id, uuid, project_id, runner_id, status, config_json, started, last_heartbeat, ingestion_failed, created, modified
		FROM job WHERE status IN (?, ?, ?)`, string(model.JobCreated), string(model.JobClaimed), string(model.JobRunning))
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		var idStr string
		var runnerID sql.NullInt64
		var status string
		var started, lastHeartbeat sql.NullTime
		if err := rows.Scan(&j.ID, &idStr, &j.ProjectID, &runnerID, &status, &j.ConfigJSON, &started, &lastHeartbeat, &j.IngestionFailed, &j.Created, &j.Modified); err != nil {
			return nil, store.ClassifyError(err)
		}
		u, err := uuid.Parse(idStr)
		if err != nil {
			return nil, apierrors.Internal(err, "corrupt job uuid")
		}
		j.UUID = u
		j.Status = model.JobStatus(status)
		if runnerID.Valid {
			r := model.RunnerID(runnerID.Int64)
			j.RunnerID = &r
		}
		if started.Valid {
			v := started.Time
			j.Started = &v
		}
		if lastHeartbeat.Valid {
			v := lastHeartbeat.Time
			j.LastHeartbeat = &v
		}
		jobs = append(jobs, j)
	}
	return jobs, store.ClassifyError(rows.Err())
}
