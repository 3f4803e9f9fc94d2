package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"bencher/internal/apierrors"
	"bencher/internal/model"
	"bencher/internal/runner"
)

// runnerTokenTTL bounds how long a freshly issued runner bearer token
// stays valid before the runner must request a new one.
const runnerTokenTTL = 24 * time.Hour

type issueTokenResponse struct {
	Token string `json:"token"`
}

// IssueRunnerToken handles POST /v0/runners/{runner}/token
// (SPEC_FULL.md §6 expansion): mints a fresh bearer token for an
// already-registered runner, returning the plaintext once. Only its
// bcrypt hash is ever persisted elsewhere.
func (a *API) IssueRunnerToken(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	runnerUUID := ps.ByName("runner")

	conn, err := a.Store.Reader(ctx)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	var runnerID int64
	scanErr := conn.QueryRowContext(ctx, `SELECT id FROM runner WHERE uuid = ?`, runnerUUID).Scan(&runnerID)
	conn.Close()
	if scanErr == sql.ErrNoRows {
		writeError(w, a.Log, apierrors.NotFound("runner %q", runnerUUID))
		return
	}
	if scanErr != nil {
		writeError(w, a.Log, apierrors.Internal(scanErr, "looking up runner"))
		return
	}

	token, err := runner.IssueToken(a.HMACKey, model.RunnerID(runnerID), runnerUUID, runnerTokenTTL)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	hash, err := runner.HashSecret(token, a.BcryptCost)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if err := a.Store.WriteTx(ctx, func(tx *sql.Tx) error {
		_, uerr := tx.ExecContext(ctx, `UPDATE runner SET token_hash = ? WHERE id = ?`, hash, runnerID)
		if uerr != nil {
			return apierrors.Internal(uerr, "storing runner token hash")
		}
		return nil
	}); err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, issueTokenResponse{Token: token})
}

type claimResponse struct {
	Job    string `json:"job"`
	Config string `json:"config"`
}

// ClaimJob handles POST /v0/projects/{project}/runners/{r}/jobs/claim:
// runner polling for work ahead of opening the WebSocket channel
// (spec.md §6).
func (a *API) ClaimJob(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	runnerUUID := ps.ByName("runner")
	conn, err := a.Store.Reader(ctx)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	var runnerID int64
	scanErr := conn.QueryRowContext(ctx, `SELECT id FROM runner WHERE project_id = ? AND uuid = ?`, int64(p.ID), runnerUUID).Scan(&runnerID)
	conn.Close()
	if scanErr == sql.ErrNoRows {
		writeError(w, a.Log, apierrors.NotFound("runner %q", runnerUUID))
		return
	}
	if scanErr != nil {
		writeError(w, a.Log, apierrors.Internal(scanErr, "looking up runner"))
		return
	}

	job, err := a.Jobs.ClaimJob(ctx, p.ID, model.RunnerID(runnerID))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if job == nil {
		writeJSON(w, http.StatusNoContent, nil)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Job: job.UUID.String(), Config: job.ConfigJSON})
}

type createRunnerRequest struct {
	Name string `json:"name"`
}

type createRunnerResponse struct {
	Runner string `json:"runner"`
	Token  string `json:"token"`
}

// CreateRunner handles POST /v0/projects/{project}/runners
// (SPEC_FULL.md §6 expansion, the natural registration complement to
// claim/token): registers a runner and issues its first token in one
// call, since a runner can't call IssueRunnerToken before it exists.
func (a *API) CreateRunner(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	var req createRunnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}

	now := time.Now().UTC()
	id := model.NewUUID()
	var runnerID int64
	err = a.Store.WriteTx(ctx, func(tx *sql.Tx) error {
		res, insertErr := tx.ExecContext(ctx, `INSERT INTO runner (uuid, project_id, name, token_hash, created) VALUES (?, ?, ?, ?, ?)`,
			id.String(), int64(p.ID), req.Name, "", now)
		if insertErr != nil {
			return apierrors.Wrap(apierrors.KindConflict, insertErr, "creating runner")
		}
		rowID, lerr := res.LastInsertId()
		if lerr != nil {
			return apierrors.Internal(lerr, "reading new runner id")
		}
		runnerID = rowID
		return nil
	})
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	token, err := runner.IssueToken(a.HMACKey, model.RunnerID(runnerID), id.String(), runnerTokenTTL)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	hash, err := runner.HashSecret(token, a.BcryptCost)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if err := a.Store.WriteTx(ctx, func(tx *sql.Tx) error {
		_, uerr := tx.ExecContext(ctx, `UPDATE runner SET token_hash = ? WHERE id = ?`, hash, runnerID)
		if uerr != nil {
			return apierrors.Internal(uerr, "storing runner token hash")
		}
		return nil
	}); err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRunnerResponse{Runner: id.String(), Token: token})
}

type createJobRequest struct {
	Branch     string `json:"branch"`
	Testbed    string `json:"testbed"`
	AdapterTag string `json:"adapter"`
}

type createJobResponse struct {
	Job string `json:"job"`
}

// CreateJob handles POST /v0/projects/{project}/jobs (SPEC_FULL.md §6
// expansion): enqueues a Created job for a runner to later claim. The
// distilled spec names the claim/channel endpoints but not how a job
// first comes into existence; this is the natural producer side.
func (a *API) CreateJob(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}

	configJSON, err := runner.EncodeJobConfig(runner.JobConfig{
		ProjectID:  p.ID,
		Branch:     req.Branch,
		Testbed:    req.Testbed,
		AdapterTag: req.AdapterTag,
	})
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	job, err := a.Jobs.CreateJob(ctx, p.ID, configJSON)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, createJobResponse{Job: job.UUID.String()})
}

type debugFieldResponse struct {
	Value string `json:"value"`
}

// DebugJobConfigField handles GET /v0/projects/{project}/jobs/{job}/debug?path=<jsonpath>
// (SPEC_FULL.md §6 expansion): lets an operator inspect a single field of
// a job's opaque config_json by JSONPath, for adapter-specific extensions
// JobConfig's typed surface doesn't cover.
func (a *API) DebugJobConfigField(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, a.Log, apierrors.BadRequest("path query parameter is required"))
		return
	}

	conn, err := a.Store.Reader(ctx)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	var configJSON string
	scanErr := conn.QueryRowContext(ctx, `SELECT config_json FROM job WHERE project_id = ? AND uuid = ?`, int64(p.ID), ps.ByName("job")).Scan(&configJSON)
	conn.Close()
	if scanErr == sql.ErrNoRows {
		writeError(w, a.Log, apierrors.NotFound("job %q", ps.ByName("job")))
		return
	}
	if scanErr != nil {
		writeError(w, a.Log, apierrors.Internal(scanErr, "looking up job"))
		return
	}

	value, err := runner.DebugField(configJSON, path)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, debugFieldResponse{Value: value})
}

// resolveRunnerAndJob is the WebSocket handshake precondition from
// spec.md §4.5: "job must exist, belong to this runner, and be in
// {Claimed, Running}".
func (a *API) resolveRunnerAndJob(ctx context.Context, runnerUUID, jobUUID string) (model.JobID, error) {
	conn, err := a.Store.Reader(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var jid int64
	var status string
	err = conn.QueryRowContext(ctx, `SELECT job.id, job.status FROM job
		JOIN runner ON runner.id = job.runner_id
		WHERE runner.uuid = ? AND job.uuid = ?`, runnerUUID, jobUUID).Scan(&jid, &status)
	if err == sql.ErrNoRows {
		return 0, apierrors.NotFound("job %q for runner %q", jobUUID, runnerUUID)
	}
	if err != nil {
		return 0, apierrors.Internal(err, "resolving runner job")
	}
	if status != string(model.JobClaimed) && status != string(model.JobRunning) {
		return 0, apierrors.New(apierrors.KindConflict, "job is not claimed or running")
	}
	return model.JobID(jid), nil
}
