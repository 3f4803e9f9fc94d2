package ingest

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"bencher/internal/apierrors"
	"bencher/internal/model"
	"bencher/internal/store"
	"bencher/internal/threshold"
)

// resolveOrCreateBranch implements spec.md §4.3 step 1. When a start point
// is supplied and no existing branch matches it exactly, a shallow copy of
// the start point's (head, version) history is made; ResetBranch controls
// whether that rewrite happens in place (same branch row, old head
// replaced) or on a freshly uniquified sibling branch. See DESIGN.md for
// why ResetBranch was resolved this way.
func resolveOrCreateBranch(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, nameOrID string, sp *StartPoint, now time.Time) (*model.Branch, error) {
	existing, err := findBranchByNameOrID(ctx, tx, projectID, nameOrID)
	if err != nil {
		return nil, err
	}

	if sp == nil {
		if existing != nil {
			return existing, nil
		}
		return createPlainBranch(ctx, tx, projectID, nameOrID, now)
	}

	spBranch, err := findBranchByNameOrID(ctx, tx, projectID, sp.Branch)
	if err != nil {
		return nil, err
	}
	if spBranch == nil {
		return nil, apierrors.NotFound("start point branch %q", sp.Branch)
	}

	if existing != nil {
		sameStartPoint := existing.StartPointBranchID != nil && *existing.StartPointBranchID == spBranch.ID &&
			existing.StartPointHash != nil && *existing.StartPointHash == sp.Hash
		if sameStartPoint {
			return existing, nil
		}
		if sp.ResetBranch {
			return resetBranchFromStartPoint(ctx, tx, existing, spBranch, sp, now)
		}
	}

	name := nameOrID
	if existing != nil {
		existingNames, err := allBranchNames(ctx, tx, projectID)
		if err != nil {
			return nil, err
		}
		name = model.Uniquify(name, existingNames)
	}
	return cloneBranchFromStartPoint(ctx, tx, projectID, name, spBranch, sp, now)
}

func findBranchByNameOrID(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, nameOrID string) (*model.Branch, error) {
	var row *sql.Row
	if id, err := uuid.Parse(nameOrID); err == nil {
		row = tx.QueryRowContext(ctx, `SELECT id, uuid, project_id, slug, name, start_point_branch_id, start_point_hash, archived, created, modified
			FROM branch WHERE project_id = ? AND uuid = ?`, int64(projectID), id.String())
	} else {
		row = tx.QueryRowContext(ctx, `SELECT id, uuid, project_id, slug, name, start_point_branch_id, start_point_hash, archived, created, modified
			FROM branch WHERE project_id = ? AND name = ?`, int64(projectID), nameOrID)
	}
	b, err := scanBranch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	return b, nil
}

func scanBranch(row *sql.Row) (*model.Branch, error) {
	var (
		b                     model.Branch
		idStr                 string
		startPointBranchID    sql.NullInt64
		startPointHash        sql.NullString
		archived              sql.NullTime
	)
	if err := row.Scan(&b.ID, &idStr, &b.ProjectID, &b.Slug, &b.Name, &startPointBranchID, &startPointHash, &archived, &b.Created, &b.Modified); err != nil {
		return nil, err
	}
	u, err := uuid.Parse(idStr)
	if err != nil {
		return nil, apierrors.Internal(err, "corrupt branch uuid")
	}
	b.UUID = u
	if startPointBranchID.Valid {
		v := model.BranchID(startPointBranchID.Int64)
		b.StartPointBranchID = &v
	}
	if startPointHash.Valid {
		v := startPointHash.String
		b.StartPointHash = &v
	}
	if archived.Valid {
		v := archived.Time
		b.Archived = &v
	}
	return &b, nil
}

func allBranchNames(ctx context.Context, tx *sql.Tx, projectID model.ProjectID) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM branch WHERE project_id = ?`, int64(projectID))
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, store.ClassifyError(err)
		}
		out[name] = true
	}
	return out, store.ClassifyError(rows.Err())
}

func createPlainBranch(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, name string, now time.Time) (*model.Branch, error) {
	id := model.NewUUID()
	res, err := tx.ExecContext(ctx, `INSERT INTO branch (uuid, project_id, slug, name, created, modified) VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), int64(projectID), slugify(name), name, now, now)
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	branchID, err := res.LastInsertId()
	if err != nil {
		return nil, apierrors.Internal(err, "reading new branch id")
	}
	if err := insertHead(ctx, tx, model.BranchID(branchID), now); err != nil {
		return nil, err
	}
	return &model.Branch{ID: model.BranchID(branchID), UUID: id, ProjectID: projectID, Slug: slugify(name), Name: name, Created: now, Modified: now}, nil
}

func insertHead(ctx context.Context, tx *sql.Tx, branchID model.BranchID, now time.Time) error {
	id := model.NewUUID()
	_, err := tx.ExecContext(ctx, `INSERT INTO head (uuid, branch_id, created) VALUES (?, ?, ?)`, id.String(), int64(branchID), now)
	return store.ClassifyError(err)
}

func currentHead(ctx context.Context, tx *sql.Tx, branchID model.BranchID) (*model.Head, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, uuid, branch_id, replaced, created FROM head
		WHERE branch_id = ? AND replaced IS NULL`, int64(branchID))
	var h model.Head
	var idStr string
	var replaced sql.NullTime
	if err := row.Scan(&h.ID, &idStr, &h.BranchID, &replaced, &h.Created); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierrors.Internal(nil, "branch has no current head")
		}
		return nil, store.ClassifyError(err)
	}
	u, err := uuid.Parse(idStr)
	if err != nil {
		return nil, apierrors.Internal(err, "corrupt head uuid")
	}
	h.UUID = u
	return &h, nil
}

// cloneBranchFromStartPoint creates a brand new branch row and shallow-copies
// the start point's history up to (and including) sp.Hash.
func cloneBranchFromStartPoint(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, name string, spBranch *model.Branch, sp *StartPoint, now time.Time) (*model.Branch, error) {
	id := model.NewUUID()
	res, err := tx.ExecContext(ctx, `INSERT INTO branch (uuid, project_id, slug, name, start_point_branch_id, start_point_hash, created, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), int64(projectID), slugify(name), name, int64(spBranch.ID), sp.Hash, now, now)
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	branchID, err := res.LastInsertId()
	if err != nil {
		return nil, apierrors.Internal(err, "reading new branch id")
	}
	if err := insertHead(ctx, tx, model.BranchID(branchID), now); err != nil {
		return nil, err
	}
	if err := copyHistory(ctx, tx, spBranch.ID, model.BranchID(branchID), sp.Hash, now); err != nil {
		return nil, err
	}
	if sp.CloneThresholds {
		if err := cloneThresholds(ctx, tx, spBranch.ID, model.BranchID(branchID), now); err != nil {
			return nil, err
		}
	}
	hash := sp.Hash
	return &model.Branch{
		ID: model.BranchID(branchID), UUID: id, ProjectID: projectID, Slug: slugify(name), Name: name,
		StartPointBranchID: &spBranch.ID, StartPointHash: &hash, Created: now, Modified: now,
	}, nil
}

// resetBranchFromStartPoint replaces an existing branch's current head with
// a freshly cloned one, keeping the same branch row and name (I2: the old
// head's Replaced timestamp is set).
func resetBranchFromStartPoint(ctx context.Context, tx *sql.Tx, existing, spBranch *model.Branch, sp *StartPoint, now time.Time) (*model.Branch, error) {
	oldHead, err := currentHead(ctx, tx, existing.ID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE head SET replaced = ? WHERE id = ? AND replaced IS NULL`, now, int64(oldHead.ID)); err != nil {
		return nil, store.ClassifyError(err)
	}
	if err := insertHead(ctx, tx, existing.ID, now); err != nil {
		return nil, err
	}
	if err := copyHistory(ctx, tx, spBranch.ID, existing.ID, sp.Hash, now); err != nil {
		return nil, err
	}
	if sp.CloneThresholds {
		if err := cloneThresholds(ctx, tx, spBranch.ID, existing.ID, now); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE branch SET start_point_branch_id = ?, start_point_hash = ?, modified = ? WHERE id = ?`,
		int64(spBranch.ID), sp.Hash, now, int64(existing.ID)); err != nil {
		return nil, store.ClassifyError(err)
	}
	existing.StartPointBranchID = &spBranch.ID
	hash := sp.Hash
	existing.StartPointHash = &hash
	existing.Modified = now
	return existing, nil
}

// copyHistory links destBranch's current head to every version that was
// reachable from srcBranch's current head up to and including the version
// whose hash matches upToHash (or all of them, if upToHash is empty).
func copyHistory(ctx context.Context, tx *sql.Tx, srcBranch, destBranch model.BranchID, upToHash string, now time.Time) error {
	srcHead, err := currentHead(ctx, tx, srcBranch)
	if err != nil {
		return err
	}
	destHead, err := currentHead(ctx, tx, destBranch)
	if err != nil {
		return err
	}

	var cutoff sql.NullInt64
	if upToHash != "" {
		row := tx.QueryRowContext(ctx, `SELECT version.number FROM version
			JOIN head_version ON head_version.version_id = version.id
			WHERE head_version.head_id = ? AND version.hash = ?`, int64(srcHead.ID), upToHash)
		var n int64
		if err := row.Scan(&n); err != nil {
			if err == sql.ErrNoRows {
				return apierrors.NotFound("start point hash %q not found on branch history", upToHash)
			}
			return store.ClassifyError(err)
		}
		cutoff = sql.NullInt64{Int64: n, Valid: true}
	}

	query := `SELECT version.id FROM version
		JOIN head_version ON head_version.version_id = version.id
		WHERE head_version.head_id = ?`
	args := []interface{}{int64(srcHead.ID)}
	if cutoff.Valid {
		query += ` AND version.number <= ?`
		args = append(args, cutoff.Int64)
	}
	query += ` ORDER BY version.number ASC`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return store.ClassifyError(err)
	}
	defer rows.Close()

	var versionIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return store.ClassifyError(err)
		}
		versionIDs = append(versionIDs, id)
	}
	if err := rows.Err(); err != nil {
		return store.ClassifyError(err)
	}

	for _, vid := range versionIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO head_version (head_id, version_id, created) VALUES (?, ?, ?)`,
			int64(destHead.ID), vid, now); err != nil {
			return store.ClassifyError(err)
		}
	}
	return nil
}

// cloneThresholds deep-copies every threshold (and its current model, if
// any) from srcBranch to destBranch (spec.md §4.3 step 1 "If thresholds=true,
// deep-copy the start point's thresholds including their current models").
func cloneThresholds(ctx context.Context, tx *sql.Tx, srcBranch, destBranch model.BranchID, now time.Time) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, project_id, testbed_id, measure_id, model_id FROM threshold WHERE branch_id = ?`, int64(srcBranch))
	if err != nil {
		return store.ClassifyError(err)
	}
	type src struct {
		id        int64
		projectID int64
		testbedID int64
		measureID int64
		modelID   sql.NullInt64
	}
	var srcThresholds []src
	for rows.Next() {
		var s src
		if err := rows.Scan(&s.id, &s.projectID, &s.testbedID, &s.measureID, &s.modelID); err != nil {
			rows.Close()
			return store.ClassifyError(err)
		}
		srcThresholds = append(srcThresholds, s)
	}
	rows.Close()
	if err := store.ClassifyError(rows.Err()); err != nil {
		return err
	}

	for _, s := range srcThresholds {
		newThresholdID := model.NewUUID()
		res, err := tx.ExecContext(ctx, `INSERT INTO threshold (uuid, project_id, branch_id, testbed_id, measure_id, created, modified)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newThresholdID.String(), s.projectID, int64(destBranch), s.testbedID, s.measureID, now, now)
		if err != nil {
			return store.ClassifyError(err)
		}
		thID, err := res.LastInsertId()
		if err != nil {
			return apierrors.Internal(err, "reading new threshold id")
		}

		if !s.modelID.Valid {
			continue
		}
		var kind, configJSON string
		var windowSize, minSampleSize int
		row := tx.QueryRowContext(ctx, `SELECT kind, config_json, window_size, min_sample_size FROM threshold_model WHERE id = ?`, s.modelID.Int64)
		if err := row.Scan(&kind, &configJSON, &windowSize, &minSampleSize); err != nil {
			return store.ClassifyError(err)
		}
		newModelID := model.NewUUID()
		modelRes, err := tx.ExecContext(ctx, `INSERT INTO threshold_model (uuid, threshold_id, kind, config_json, window_size, min_sample_size, created)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, newModelID.String(), thID, kind, configJSON, windowSize, minSampleSize, now)
		if err != nil {
			return store.ClassifyError(err)
		}
		newModelRowID, err := modelRes.LastInsertId()
		if err != nil {
			return apierrors.Internal(err, "reading new threshold model id")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE threshold SET model_id = ? WHERE id = ?`, newModelRowID, thID); err != nil {
			return store.ClassifyError(err)
		}
	}
	return nil
}

func getOrCreateTestbed(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, name string, now time.Time) (*model.Testbed, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, uuid, project_id, slug, name, archived, created, modified FROM testbed WHERE project_id = ? AND name = ?`, int64(projectID), name)
	t, err := scanTestbed(row)
	if err == nil {
		return t, nil
	}
	if err != sql.ErrNoRows {
		return nil, store.ClassifyError(err)
	}

	id := model.NewUUID()
	res, insertErr := tx.ExecContext(ctx, `INSERT INTO testbed (uuid, project_id, slug, name, created, modified) VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), int64(projectID), slugify(name), name, now, now)
	if insertErr != nil {
		classified := store.ClassifyError(insertErr)
		if e, ok := apierrors.As(classified); ok && e.Kind == apierrors.KindConflict {
			row := tx.QueryRowContext(ctx, `SELECT id, uuid, project_id, slug, name, archived, created, modified FROM testbed WHERE project_id = ? AND name = ?`, int64(projectID), name)
			return scanTestbed(row)
		}
		return nil, classified
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return nil, apierrors.Internal(err, "reading new testbed id")
	}
	return &model.Testbed{ID: model.TestbedID(rowID), UUID: id, ProjectID: projectID, Slug: slugify(name), Name: name, Created: now, Modified: now}, nil
}

func scanTestbed(row *sql.Row) (*model.Testbed, error) {
	var t model.Testbed
	var idStr string
	var archived sql.NullTime
	if err := row.Scan(&t.ID, &idStr, &t.ProjectID, &t.Slug, &t.Name, &archived, &t.Created, &t.Modified); err != nil {
		return nil, err
	}
	u, err := uuid.Parse(idStr)
	if err != nil {
		return nil, apierrors.Internal(err, "corrupt testbed uuid")
	}
	t.UUID = u
	if archived.Valid {
		v := archived.Time
		t.Archived = &v
	}
	return &t, nil
}

func getOrCreateBenchmark(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, name string, now time.Time) (*model.Benchmark, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, uuid, project_id, slug, name, archived, created, modified FROM benchmark WHERE project_id = ? AND name = ?`, int64(projectID), name)
	b, err := scanBenchmark(row)
	if err == nil {
		return b, nil
	}
	if err != sql.ErrNoRows {
		return nil, store.ClassifyError(err)
	}

	id := model.NewUUID()
	res, insertErr := tx.ExecContext(ctx, `INSERT INTO benchmark (uuid, project_id, slug, name, created, modified) VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), int64(projectID), slugify(name), name, now, now)
	if insertErr != nil {
		classified := store.ClassifyError(insertErr)
		if e, ok := apierrors.As(classified); ok && e.Kind == apierrors.KindConflict {
			row := tx.QueryRowContext(ctx, `SELECT id, uuid, project_id, slug, name, archived, created, modified FROM benchmark WHERE project_id = ? AND name = ?`, int64(projectID), name)
			return scanBenchmark(row)
		}
		return nil, classified
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return nil, apierrors.Internal(err, "reading new benchmark id")
	}
	return &model.Benchmark{ID: model.BenchmarkID(rowID), UUID: id, ProjectID: projectID, Slug: slugify(name), Name: name, Created: now, Modified: now}, nil
}

func scanBenchmark(row *sql.Row) (*model.Benchmark, error) {
	var b model.Benchmark
	var idStr string
	var archived sql.NullTime
	if err := row.Scan(&b.ID, &idStr, &b.ProjectID, &b.Slug, &b.Name, &archived, &b.Created, &b.Modified); err != nil {
		return nil, err
	}
	u, err := uuid.Parse(idStr)
	if err != nil {
		return nil, apierrors.Internal(err, "corrupt benchmark uuid")
	}
	b.UUID = u
	if archived.Valid {
		v := archived.Time
		b.Archived = &v
	}
	return &b, nil
}

func getOrCreateMeasure(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, name, units string, now time.Time) (*model.Measure, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, uuid, project_id, slug, name, units, archived, created, modified FROM measure WHERE project_id = ? AND name = ?`, int64(projectID), name)
	m, err := scanMeasure(row)
	if err == nil {
		return m, nil
	}
	if err != sql.ErrNoRows {
		return nil, store.ClassifyError(err)
	}

	id := model.NewUUID()
	res, insertErr := tx.ExecContext(ctx, `INSERT INTO measure (uuid, project_id, slug, name, units, created, modified) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), int64(projectID), slugify(name), name, units, now, now)
	if insertErr != nil {
		classified := store.ClassifyError(insertErr)
		if e, ok := apierrors.As(classified); ok && e.Kind == apierrors.KindConflict {
			row := tx.QueryRowContext(ctx, `SELECT id, uuid, project_id, slug, name, units, archived, created, modified FROM measure WHERE project_id = ? AND name = ?`, int64(projectID), name)
			return scanMeasure(row)
		}
		return nil, classified
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return nil, apierrors.Internal(err, "reading new measure id")
	}
	return &model.Measure{ID: model.MeasureID(rowID), UUID: id, ProjectID: projectID, Slug: slugify(name), Name: name, Units: units, Created: now, Modified: now}, nil
}

func scanMeasure(row *sql.Row) (*model.Measure, error) {
	var m model.Measure
	var idStr string
	var archived sql.NullTime
	if err := row.Scan(&m.ID, &idStr, &m.ProjectID, &m.Slug, &m.Name, &m.Units, &archived, &m.Created, &m.Modified); err != nil {
		return nil, err
	}
	u, err := uuid.Parse(idStr)
	if err != nil {
		return nil, apierrors.Internal(err, "corrupt measure uuid")
	}
	m.UUID = u
	if archived.Valid {
		v := archived.Time
		m.Archived = &v
	}
	return &m, nil
}

func appendVersion(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, headID model.HeadID, hash string, now time.Time) (*model.Version, error) {
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(number), 0) + 1 FROM version WHERE project_id = ?`, int64(projectID))
	var number int64
	if err := row.Scan(&number); err != nil {
		return nil, store.ClassifyError(err)
	}

	id := model.NewUUID()
	var hashArg interface{}
	if hash != "" {
		hashArg = hash
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO version (uuid, project_id, number, hash, created) VALUES (?, ?, ?, ?, ?)`,
		id.String(), int64(projectID), number, hashArg, now)
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	versionID, err := res.LastInsertId()
	if err != nil {
		return nil, apierrors.Internal(err, "reading new version id")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO head_version (head_id, version_id, created) VALUES (?, ?, ?)`, int64(headID), versionID, now); err != nil {
		return nil, store.ClassifyError(err)
	}

	v := &model.Version{ID: model.VersionID(versionID), UUID: id, ProjectID: projectID, Number: number, Created: now}
	if hash != "" {
		v.Hash = &hash
	}
	return v, nil
}

func insertReport(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, headID model.HeadID, versionID model.VersionID, testbedID model.TestbedID, adapterTag string, start, end, now time.Time) (*model.Report, error) {
	id := model.NewUUID()
	res, err := tx.ExecContext(ctx, `INSERT INTO report (uuid, project_id, head_id, version_id, testbed_id, adapter, start_time, end_time, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, id.String(), int64(projectID), int64(headID), int64(versionID), int64(testbedID), adapterTag, start, end, now)
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	reportID, err := res.LastInsertId()
	if err != nil {
		return nil, apierrors.Internal(err, "reading new report id")
	}
	return &model.Report{
		ID: model.ReportID(reportID), UUID: id, ProjectID: projectID, HeadID: headID, VersionID: versionID,
		TestbedID: testbedID, Adapter: adapterTag, StartTime: start, EndTime: end, Created: now,
	}, nil
}

func insertReportBenchmark(ctx context.Context, tx *sql.Tx, reportID model.ReportID, benchmarkID model.BenchmarkID, iteration int64, now time.Time) (*model.ReportBenchmark, error) {
	id := model.NewUUID()
	res, err := tx.ExecContext(ctx, `INSERT INTO report_benchmark (uuid, report_id, benchmark_id, iteration, created) VALUES (?, ?, ?, ?, ?)`,
		id.String(), int64(reportID), int64(benchmarkID), iteration, now)
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	rbID, err := res.LastInsertId()
	if err != nil {
		return nil, apierrors.Internal(err, "reading new report_benchmark id")
	}
	return &model.ReportBenchmark{ID: model.ReportBenchID(rbID), UUID: id, ReportID: reportID, BenchmarkID: benchmarkID, Iteration: iteration, Created: now}, nil
}

// insertMetric enforces I3 (a duplicate (report_benchmark, measure) pair is
// a Conflict, not an overwrite) via the table's UNIQUE constraint. It
// returns the new row's id so the caller can evaluate a threshold against
// this specific metric rather than whatever happens to be newest overall.
func insertMetric(ctx context.Context, tx *sql.Tx, rbID model.ReportBenchID, measureID model.MeasureID, value float64, now time.Time) (model.MetricID, error) {
	id := model.NewUUID()
	res, err := tx.ExecContext(ctx, `INSERT INTO metric (uuid, report_benchmark_id, measure_id, value, created) VALUES (?, ?, ?, ?, ?)`,
		id.String(), int64(rbID), int64(measureID), value, now)
	if err != nil {
		return 0, store.ClassifyError(err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, store.ClassifyError(err)
	}
	return model.MetricID(rowID), nil
}

// currentThresholdModel returns the (threshold, current model) pair for a
// (branch, testbed, measure) tuple, or (nil, nil, nil) if no threshold or
// no current model exists.
func currentThresholdModel(ctx context.Context, tx *sql.Tx, branchID model.BranchID, testbedID model.TestbedID, measureID model.MeasureID) (*model.Threshold, *model.ThresholdModel, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, uuid, project_id, branch_id, testbed_id, measure_id, model_id, created, modified
		FROM threshold WHERE branch_id = ? AND testbed_id = ? AND measure_id = ?`, int64(branchID), int64(testbedID), int64(measureID))

	var th model.Threshold
	var idStr string
	var modelID sql.NullInt64
	if err := row.Scan(&th.ID, &idStr, &th.ProjectID, &th.BranchID, &th.TestbedID, &th.MeasureID, &modelID, &th.Created, &th.Modified); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil
		}
		return nil, nil, store.ClassifyError(err)
	}
	u, err := uuid.Parse(idStr)
	if err != nil {
		return nil, nil, apierrors.Internal(err, "corrupt threshold uuid")
	}
	th.UUID = u
	if !modelID.Valid {
		return &th, nil, nil
	}
	th.CurrentModelID = ptrThresholdModelID(model.ThresholdModelID(modelID.Int64))

	mrow := tx.QueryRowContext(ctx, `SELECT id, uuid, threshold_id, kind, config_json, window_size, min_sample_size, replaced, created
		FROM threshold_model WHERE id = ?`, modelID.Int64)
	mdl, err := scanThresholdModel(mrow)
	if err != nil {
		return nil, nil, err
	}
	return &th, mdl, nil
}

func ptrThresholdModelID(id model.ThresholdModelID) *model.ThresholdModelID { return &id }

func scanThresholdModel(row *sql.Row) (*model.ThresholdModel, error) {
	var mdl model.ThresholdModel
	var idStr string
	var replaced sql.NullTime
	var kind string
	if err := row.Scan(&mdl.ID, &idStr, &mdl.ThresholdID, &kind, &mdl.ConfigJSON, &mdl.WindowSize, &mdl.MinSampleSize, &replaced, &mdl.Created); err != nil {
		return nil, store.ClassifyError(err)
	}
	u, err := uuid.Parse(idStr)
	if err != nil {
		return nil, apierrors.Internal(err, "corrupt threshold model uuid")
	}
	mdl.UUID = u
	mdl.Kind = model.ThresholdModelKind(kind)
	if replaced.Valid {
		v := replaced.Time
		mdl.Replaced = &v
	}
	return &mdl, nil
}

// recentMetricValuesForMeasure returns, in chronological order, up to
// windowSize+1 most recent metric values for (branch, testbed, measure) at
// or before uptoMetricID — windowSize historical values plus the metric
// being evaluated, so the caller can split window = all-but-last and
// value = last. The uptoMetricID bound is what lets a report with several
// new metrics for the same measure (one per iteration) evaluate each
// against the window as it stood for that metric, instead of all of them
// sharing the single globally-newest value.
func recentMetricValuesForMeasure(ctx context.Context, tx *sql.Tx, branchID model.BranchID, testbedID model.TestbedID, measureID model.MeasureID, uptoMetricID model.MetricID, windowSize int) ([]float64, []model.MetricID, error) {
	limit := windowSize + 1
	rows, err := tx.QueryContext(ctx, `SELECT metric.id, metric.value FROM metric
		JOIN report_benchmark ON metric.report_benchmark_id = report_benchmark.id
		JOIN report ON report_benchmark.report_id = report.id
		JOIN head ON report.head_id = head.id
		WHERE head.branch_id = ? AND report.testbed_id = ? AND metric.measure_id = ? AND metric.id <= ?
		ORDER BY report.created DESC, metric.id DESC
		LIMIT ?`, int64(branchID), int64(testbedID), int64(measureID), int64(uptoMetricID), limit)
	if err != nil {
		return nil, nil, store.ClassifyError(err)
	}
	defer rows.Close()

	var ids []model.MetricID
	var values []float64
	for rows.Next() {
		var id int64
		var v float64
		if err := rows.Scan(&id, &v); err != nil {
			return nil, nil, store.ClassifyError(err)
		}
		ids = append(ids, model.MetricID(id))
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, store.ClassifyError(err)
	}

	// Reverse to chronological order (oldest first, newest last).
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
		ids[i], ids[j] = ids[j], ids[i]
	}
	return values, ids, nil
}

func insertBoundary(ctx context.Context, tx *sql.Tx, metricID model.MetricID, thresholdID model.ThresholdID, modelID model.ThresholdModelID, r *threshold.Result, now time.Time) (model.BoundaryID, error) {
	id := model.NewUUID()
	res, err := tx.ExecContext(ctx, `INSERT INTO boundary (uuid, metric_id, threshold_id, model_id, lower_limit, upper_limit, baseline, classification, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), int64(metricID), int64(thresholdID), int64(modelID), r.LowerLimit, r.UpperLimit, r.Baseline, string(r.Classification), now)
	if err != nil {
		return 0, store.ClassifyError(err)
	}
	boundaryID, err := res.LastInsertId()
	if err != nil {
		return 0, apierrors.Internal(err, "reading new boundary id")
	}
	return model.BoundaryID(boundaryID), nil
}

func insertAlert(ctx context.Context, tx *sql.Tx, boundaryID model.BoundaryID, now time.Time) (model.AlertID, error) {
	id := model.NewUUID()
	res, err := tx.ExecContext(ctx, `INSERT INTO alert (uuid, boundary_id, status, created, modified) VALUES (?, ?, ?, ?, ?)`,
		id.String(), int64(boundaryID), string(model.AlertActive), now, now)
	if err != nil {
		return 0, store.ClassifyError(err)
	}
	alertID, err := res.LastInsertId()
	if err != nil {
		return 0, apierrors.Internal(err, "reading new alert id")
	}
	return model.AlertID(alertID), nil
}

// applyThresholdUpserts implements spec.md §4.3 step 7: upsert thresholds
// from the payload's map, then (if resetUnlisted) replace the model of any
// threshold for this (branch, testbed) not present in the map with no
// model (I4: the old model is retained, only Replaced is stamped).
func applyThresholdUpserts(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, branchID model.BranchID, testbedID model.TestbedID, upserts map[string]ThresholdUpsert, resetUnlisted bool, now time.Time) error {
	touchedMeasures := make(map[model.MeasureID]bool)

	for measureName, up := range upserts {
		measure, err := getOrCreateMeasure(ctx, tx, projectID, measureName, "", now)
		if err != nil {
			return err
		}
		touchedMeasures[measure.ID] = true

		thresholdID, currentModelID, err := ensureThreshold(ctx, tx, projectID, branchID, testbedID, measure.ID, now)
		if err != nil {
			return err
		}
		if currentModelID != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE threshold_model SET replaced = ? WHERE id = ?`, now, int64(*currentModelID)); err != nil {
				return store.ClassifyError(err)
			}
		}

		newModelID := model.NewUUID()
		res, err := tx.ExecContext(ctx, `INSERT INTO threshold_model (uuid, threshold_id, kind, config_json, window_size, min_sample_size, created)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, newModelID.String(), int64(thresholdID), string(up.Kind), up.ConfigJSON, up.WindowSize, up.MinSampleSize, now)
		if err != nil {
			return store.ClassifyError(err)
		}
		newModelRowID, err := res.LastInsertId()
		if err != nil {
			return apierrors.Internal(err, "reading new threshold model id")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE threshold SET model_id = ?, modified = ? WHERE id = ?`, newModelRowID, now, int64(thresholdID)); err != nil {
			return store.ClassifyError(err)
		}
	}

	if !resetUnlisted {
		return nil
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, measure_id, model_id FROM threshold WHERE branch_id = ? AND testbed_id = ?`, int64(branchID), int64(testbedID))
	if err != nil {
		return store.ClassifyError(err)
	}
	type row struct {
		id        int64
		measureID int64
		modelID   sql.NullInt64
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.measureID, &r.modelID); err != nil {
			rows.Close()
			return store.ClassifyError(err)
		}
		all = append(all, r)
	}
	rows.Close()
	if err := store.ClassifyError(rows.Err()); err != nil {
		return err
	}

	for _, r := range all {
		if touchedMeasures[model.MeasureID(r.measureID)] {
			continue
		}
		if !r.modelID.Valid {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE threshold_model SET replaced = ? WHERE id = ?`, now, r.modelID.Int64); err != nil {
			return store.ClassifyError(err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE threshold SET model_id = NULL, modified = ? WHERE id = ?`, now, r.id); err != nil {
			return store.ClassifyError(err)
		}
	}
	return nil
}

// ensureThreshold returns the (threshold id, current model id) for a
// (branch, testbed, measure) tuple, creating an empty threshold row if
// none exists yet.
func ensureThreshold(ctx context.Context, tx *sql.Tx, projectID model.ProjectID, branchID model.BranchID, testbedID model.TestbedID, measureID model.MeasureID, now time.Time) (model.ThresholdID, *model.ThresholdModelID, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, model_id FROM threshold WHERE branch_id = ? AND testbed_id = ? AND measure_id = ?`, int64(branchID), int64(testbedID), int64(measureID))
	var id int64
	var modelID sql.NullInt64
	err := row.Scan(&id, &modelID)
	if err == nil {
		if modelID.Valid {
			m := model.ThresholdModelID(modelID.Int64)
			return model.ThresholdID(id), &m, nil
		}
		return model.ThresholdID(id), nil, nil
	}
	if err != sql.ErrNoRows {
		return 0, nil, store.ClassifyError(err)
	}

	newID := model.NewUUID()
	res, insertErr := tx.ExecContext(ctx, `INSERT INTO threshold (uuid, project_id, branch_id, testbed_id, measure_id, created, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, newID.String(), int64(projectID), int64(branchID), int64(testbedID), int64(measureID), now, now)
	if insertErr != nil {
		classified := store.ClassifyError(insertErr)
		if e, ok := apierrors.As(classified); ok && e.Kind == apierrors.KindConflict {
			return ensureThreshold(ctx, tx, projectID, branchID, testbedID, measureID, now)
		}
		return 0, nil, classified
	}
	thresholdID, err := res.LastInsertId()
	if err != nil {
		return 0, nil, apierrors.Internal(err, "reading new threshold id")
	}
	return model.ThresholdID(thresholdID), nil, nil
}
