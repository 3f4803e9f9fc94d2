package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"bencher/internal/alerts"
	"bencher/internal/apierrors"
	"bencher/internal/model"
)

type silenceRequest struct {
	Head string `json:"head"` // branch head UUID
}

type silenceResponse struct {
	Silenced []string `json:"silenced"`
}

// SilenceAlerts handles POST /v0/projects/{project}/alerts/silence: bulk
// silences every Active alert on the named head (I6, P7).
func (a *API) SilenceAlerts(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	var req silenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}

	headID, err := a.resolveHead(ctx, p.ID, req.Head)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	silenced, err := alerts.SilenceHead(ctx, a.Store, headID)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, silenceResponse{Silenced: silenced})
}

// resolveHead verifies headUUID names a head belonging (via its branch)
// to project, per §4.2's parentage-assertion rule for every cross-entity
// translation.
func (a *API) resolveHead(ctx context.Context, projectID model.ProjectID, headUUID string) (model.HeadID, error) {
	conn, err := a.Store.Reader(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	row := conn.QueryRowContext(ctx, `SELECT head.id FROM head
		JOIN branch ON branch.id = head.branch_id
		WHERE head.uuid = ? AND branch.project_id = ?`, headUUID, int64(projectID))
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, apierrors.NotFound("head %q", headUUID)
	}
	return model.HeadID(id), nil
}
