package api

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"bencher/internal/apierrors"
)

type thresholdSummary struct {
	UUID          string    `json:"uuid"`
	Branch        string    `json:"branch"`
	Testbed       string    `json:"testbed"`
	Measure       string    `json:"measure"`
	ModelKind     *string   `json:"model_kind,omitempty"`
	WindowSize    *int      `json:"window_size,omitempty"`
	MinSampleSize *int      `json:"min_sample_size,omitempty"`
	Created       time.Time `json:"created"`
	Modified      time.Time `json:"modified"`
}

// ListThresholds handles GET /v0/projects/{project}/thresholds.
func (a *API) ListThresholds(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, _, err := a.resolveProject(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	conn, err := a.Store.Reader(ctx)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `SELECT threshold.uuid, branch.name, testbed.name, measure.name,
			threshold_model.kind, threshold_model.window_size, threshold_model.min_sample_size,
			threshold.created, threshold.modified
		FROM threshold
		JOIN branch ON branch.id = threshold.branch_id
		JOIN testbed ON testbed.id = threshold.testbed_id
		JOIN measure ON measure.id = threshold.measure_id
		LEFT JOIN threshold_model ON threshold_model.id = threshold.model_id
		WHERE threshold.project_id = ?
		ORDER BY threshold.id ASC`, int64(p.ID))
	if err != nil {
		writeError(w, a.Log, apierrors.Internal(err, "listing thresholds"))
		return
	}
	defer rows.Close()

	out := []thresholdSummary{}
	for rows.Next() {
		var ts thresholdSummary
		var kind, windowSize, minSample interface{}
		if err := rows.Scan(&ts.UUID, &ts.Branch, &ts.Testbed, &ts.Measure, &kind, &windowSize, &minSample, &ts.Created, &ts.Modified); err != nil {
			writeError(w, a.Log, apierrors.Internal(err, "scanning threshold row"))
			return
		}
		if k, ok := kind.(string); ok {
			ts.ModelKind = &k
		}
		if n, ok := asInt(windowSize); ok {
			ts.WindowSize = &n
		}
		if n, ok := asInt(minSample); ok {
			ts.MinSampleSize = &n
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		writeError(w, a.Log, apierrors.Internal(err, "iterating threshold rows"))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
