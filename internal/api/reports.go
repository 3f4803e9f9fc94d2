package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"bencher/internal/apierrors"
	"bencher/internal/ingest"
	"bencher/internal/model"
)

type thresholdUpsertRequest struct {
	Kind          string          `json:"kind"`
	Config        json.RawMessage `json:"config"`
	WindowSize    int             `json:"window_size"`
	MinSampleSize int             `json:"min_sample_size"`
}

type startPointRequest struct {
	Branch          string `json:"branch"`
	Hash            string `json:"hash"`
	CloneThresholds bool   `json:"clone_thresholds"`
	ResetBranch     bool   `json:"reset_branch"`
}

// submitReportRequest is the POST .../reports payload (spec.md §4.3).
type submitReportRequest struct {
	Branch     string             `json:"branch"`
	Testbed    string             `json:"testbed"`
	StartPoint *startPointRequest `json:"start_point,omitempty"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    time.Time          `json:"end_time"`
	Adapter    string             `json:"adapter"`
	Iterations []string           `json:"iterations"`
	Thresholds *struct {
		Models map[string]thresholdUpsertRequest `json:"models"`
		Reset  bool                               `json:"reset"`
	} `json:"thresholds,omitempty"`
}

type alertResponse struct {
	AlertUUID      string `json:"alert"`
	Benchmark      string `json:"benchmark"`
	Measure        string `json:"measure"`
	Classification string `json:"classification"`
}

type submitReportResponse struct {
	ReportID string          `json:"report"`
	Alerts   []alertResponse `json:"alerts"`
}

// SubmitReport handles POST /v0/projects/{project}/reports.
func (a *API) SubmitReport(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	var req submitReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}

	in := ingest.Input{
		ProjectID:  p.ID,
		Branch:     req.Branch,
		Testbed:    req.Testbed,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		AdapterTag: req.Adapter,
	}
	if req.StartPoint != nil {
		in.StartPoint = &ingest.StartPoint{
			Branch:          req.StartPoint.Branch,
			Hash:            req.StartPoint.Hash,
			CloneThresholds: req.StartPoint.CloneThresholds,
			ResetBranch:     req.StartPoint.ResetBranch,
		}
	}
	in.Iterations = make([][]byte, len(req.Iterations))
	for i, raw := range req.Iterations {
		in.Iterations[i] = []byte(raw)
	}
	if req.Thresholds != nil {
		in.ResetUnlisted = req.Thresholds.Reset
		in.ThresholdsByMeasure = make(map[string]ingest.ThresholdUpsert, len(req.Thresholds.Models))
		for measure, up := range req.Thresholds.Models {
			in.ThresholdsByMeasure[measure] = ingest.ThresholdUpsert{
				Kind:          model.ThresholdModelKind(up.Kind),
				ConfigJSON:    string(up.Config),
				WindowSize:    up.WindowSize,
				MinSampleSize: up.MinSampleSize,
			}
		}
	}

	result, err := a.Ingester.SubmitReport(ctx, in)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	resp := submitReportResponse{ReportID: strconv.FormatInt(int64(result.ReportID), 10)}
	for _, al := range result.Alerts {
		resp.Alerts = append(resp.Alerts, alertResponse{
			AlertUUID:      strconv.FormatInt(int64(al.AlertID), 10),
			Benchmark:      al.BenchmarkName,
			Measure:        al.MeasureName,
			Classification: string(al.Classification),
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

type reportSummary struct {
	UUID      string    `json:"uuid"`
	Branch    string    `json:"branch"`
	Testbed   string    `json:"testbed"`
	Adapter   string    `json:"adapter"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Created   time.Time `json:"created"`
}

// ListReports handles GET /v0/projects/{project}/reports, filtered by
// the optional {branch, testbed, start_time, end_time, archived} query
// params (spec.md §6).
func (a *API) ListReports(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, _, err := a.resolveProject(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	q := r.URL.Query()
	query := `SELECT report.uuid, branch.name, testbed.name, report.adapter, report.start_time, report.end_time, report.created
		FROM report
		JOIN head ON head.id = report.head_id
		JOIN branch ON branch.id = head.branch_id
		JOIN testbed ON testbed.id = report.testbed_id
		WHERE report.project_id = ?`
	args := []interface{}{int64(p.ID)}

	if branch := q.Get("branch"); branch != "" {
		query += " AND branch.name = ?"
		args = append(args, branch)
	}
	if testbed := q.Get("testbed"); testbed != "" {
		query += " AND testbed.name = ?"
		args = append(args, testbed)
	}
	if start := q.Get("start_time"); start != "" {
		t, perr := time.Parse(time.RFC3339, start)
		if perr != nil {
			writeError(w, a.Log, apierrors.BadRequest("invalid start_time: %v", perr))
			return
		}
		query += " AND report.start_time >= ?"
		args = append(args, t)
	}
	if end := q.Get("end_time"); end != "" {
		t, perr := time.Parse(time.RFC3339, end)
		if perr != nil {
			writeError(w, a.Log, apierrors.BadRequest("invalid end_time: %v", perr))
			return
		}
		query += " AND report.end_time <= ?"
		args = append(args, t)
	}
	if q.Get("archived") != "true" {
		query += " AND branch.archived IS NULL AND testbed.archived IS NULL"
	}
	query += " ORDER BY report.id DESC"

	conn, err := a.Store.Reader(ctx)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		writeError(w, a.Log, apierrors.Internal(err, "listing reports"))
		return
	}
	defer rows.Close()

	reports := []reportSummary{}
	for rows.Next() {
		var rs reportSummary
		if err := rows.Scan(&rs.UUID, &rs.Branch, &rs.Testbed, &rs.Adapter, &rs.StartTime, &rs.EndTime, &rs.Created); err != nil {
			writeError(w, a.Log, apierrors.Internal(err, "scanning report row"))
			return
		}
		reports = append(reports, rs)
	}
	if err := rows.Err(); err != nil {
		writeError(w, a.Log, apierrors.Internal(err, "iterating report rows"))
		return
	}

	writeJSON(w, http.StatusOK, reports)
}

// GetReport handles GET /v0/projects/{project}/reports/{report}
// (SPEC_FULL.md §6 expansion: the natural complement to the listing
// endpoint).
func (a *API) GetReport(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
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

	row := conn.QueryRowContext(ctx, `SELECT report.uuid, branch.name, testbed.name, report.adapter, report.start_time, report.end_time, report.created
		FROM report
		JOIN head ON head.id = report.head_id
		JOIN branch ON branch.id = head.branch_id
		JOIN testbed ON testbed.id = report.testbed_id
		WHERE report.project_id = ? AND report.uuid = ?`, int64(p.ID), ps.ByName("report"))

	var rs reportSummary
	if err := row.Scan(&rs.UUID, &rs.Branch, &rs.Testbed, &rs.Adapter, &rs.StartTime, &rs.EndTime, &rs.Created); err != nil {
		if err == sql.ErrNoRows {
			writeError(w, a.Log, apierrors.NotFound("report %q", ps.ByName("report")))
			return
		}
		writeError(w, a.Log, apierrors.Internal(err, "fetching report"))
		return
	}
	writeJSON(w, http.StatusOK, rs)
}
