package ingest

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"bencher/internal/store"
)

// TestSubmitReportPlainPath drives the no-start-point, no-threshold happy
// path through a sqlmock-backed store, matching the teacher corpus's own
// go-sqlmock usage for DB-layer tests (see internal/store/store_test.go).
func TestSubmitReportPlainPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()

	// resolveOrCreateBranch: not found, then created.
	mock.ExpectQuery("FROM branch WHERE project_id = \\? AND name = \\?").WillReturnError(sqlErrNoRows())
	mock.ExpectExec("INSERT INTO branch").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO head").WillReturnResult(sqlmock.NewResult(1, 1))

	// currentHead.
	headRows := sqlmock.NewRows([]string{"id", "uuid", "branch_id", "replaced", "created"}).
		AddRow(1, testUUID(1), 1, nil, time.Now())
	mock.ExpectQuery("FROM head").WillReturnRows(headRows)

	// getOrCreateTestbed: not found, then created.
	mock.ExpectQuery("FROM testbed WHERE project_id = \\? AND name = \\?").WillReturnError(sqlErrNoRows())
	mock.ExpectExec("INSERT INTO testbed").WillReturnResult(sqlmock.NewResult(1, 1))

	// appendVersion: max number, insert version, insert head_version.
	numberRows := sqlmock.NewRows([]string{"number"}).AddRow(1)
	mock.ExpectQuery("FROM version WHERE project_id = ?").WillReturnRows(numberRows)
	mock.ExpectExec("INSERT INTO version").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO head_version").WillReturnResult(sqlmock.NewResult(1, 1))

	// insertReport.
	mock.ExpectExec("INSERT INTO report ").WillReturnResult(sqlmock.NewResult(1, 1))

	// getOrCreateBenchmark: not found, then created.
	mock.ExpectQuery("FROM benchmark WHERE project_id = \\? AND name = \\?").WillReturnError(sqlErrNoRows())
	mock.ExpectExec("INSERT INTO benchmark").WillReturnResult(sqlmock.NewResult(1, 1))

	// insertReportBenchmark.
	mock.ExpectExec("INSERT INTO report_benchmark").WillReturnResult(sqlmock.NewResult(1, 1))

	// getOrCreateMeasure: not found, then created.
	mock.ExpectQuery("FROM measure WHERE project_id = \\? AND name = \\?").WillReturnError(sqlErrNoRows())
	mock.ExpectExec("INSERT INTO measure").WillReturnResult(sqlmock.NewResult(1, 1))

	// insertMetric.
	mock.ExpectExec("INSERT INTO metric").WillReturnResult(sqlmock.NewResult(1, 1))

	// currentThresholdModel: no threshold configured for this measure.
	mock.ExpectQuery("FROM threshold WHERE branch_id = \\? AND testbed_id = \\? AND measure_id = \\?").WillReturnError(sqlErrNoRows())

	mock.ExpectCommit()

	s := store.NewForTest(db)
	ig := New(s, nil)

	result, err := ig.SubmitReport(context.Background(), Input{
		ProjectID:  1,
		Branch:     "main",
		Testbed:    "linux-x64",
		StartTime:  time.Now(),
		EndTime:    time.Now(),
		AdapterTag: "json",
		Iterations: [][]byte{[]byte(`[{"benchmark":"encode","measure":"latency","value":12.5}]`)},
	})
	if err != nil {
		t.Fatalf("SubmitReport() error = %v", err)
	}
	if result.ReportID == 0 {
		t.Fatalf("expected a non-zero report id")
	}
	if len(result.Alerts) != 0 {
		t.Fatalf("expected no alerts without a threshold, got %d", len(result.Alerts))
	}
	if unmetErr := mock.ExpectationsWereMet(); unmetErr != nil {
		t.Errorf("unmet sqlmock expectations: %v", unmetErr)
	}
}

// TestSubmitReportEvaluatesEveryIterationsMetric covers spec.md §8 S1: three
// iterations reporting the same (benchmark, measure) with a current-model
// threshold configured must each get their own boundary, and each one that
// breaches must open its own alert — not a single evaluation deduplicated
// across the whole report.
func TestSubmitReportEvaluatesEveryIterationsMetric(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()

	mock.ExpectQuery("FROM branch WHERE project_id = \\? AND name = \\?").WillReturnError(sqlErrNoRows())
	mock.ExpectExec("INSERT INTO branch").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO head").WillReturnResult(sqlmock.NewResult(1, 1))

	headRows := sqlmock.NewRows([]string{"id", "uuid", "branch_id", "replaced", "created"}).
		AddRow(1, testUUID(1), 1, nil, time.Now())
	mock.ExpectQuery("FROM head").WillReturnRows(headRows)

	mock.ExpectQuery("FROM testbed WHERE project_id = \\? AND name = \\?").WillReturnError(sqlErrNoRows())
	mock.ExpectExec("INSERT INTO testbed").WillReturnResult(sqlmock.NewResult(1, 1))

	numberRows := sqlmock.NewRows([]string{"number"}).AddRow(1)
	mock.ExpectQuery("FROM version WHERE project_id = ?").WillReturnRows(numberRows)
	mock.ExpectExec("INSERT INTO version").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO head_version").WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec("INSERT INTO report ").WillReturnResult(sqlmock.NewResult(1, 1))

	benchmarkFoundRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "uuid", "project_id", "slug", "name", "archived", "created", "modified"}).
			AddRow(1, testUUID(4), 1, "encode", "encode", nil, time.Now(), time.Now())
	}
	measureFoundRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "uuid", "project_id", "slug", "name", "units", "archived", "created", "modified"}).
			AddRow(1, testUUID(5), 1, "latency", "latency", "", nil, time.Now(), time.Now())
	}

	// The metric insertion loop runs once per iteration: the benchmark and
	// measure are created on the first iteration and found thereafter.
	mock.ExpectQuery("FROM benchmark WHERE project_id = \\? AND name = \\?").WillReturnError(sqlErrNoRows())
	mock.ExpectExec("INSERT INTO benchmark").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO report_benchmark").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("FROM measure WHERE project_id = \\? AND name = \\?").WillReturnError(sqlErrNoRows())
	mock.ExpectExec("INSERT INTO measure").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO metric").WillReturnResult(sqlmock.NewResult(1, 1))

	for i := int64(2); i <= 3; i++ {
		mock.ExpectQuery("FROM benchmark WHERE project_id = \\? AND name = \\?").WillReturnRows(benchmarkFoundRow())
		mock.ExpectExec("INSERT INTO report_benchmark").WillReturnResult(sqlmock.NewResult(i, 1))
		mock.ExpectQuery("FROM measure WHERE project_id = \\? AND name = \\?").WillReturnRows(measureFoundRow())
		mock.ExpectExec("INSERT INTO metric").WillReturnResult(sqlmock.NewResult(i, 1))
	}

	thresholdModelRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "uuid", "project_id", "branch_id", "testbed_id", "measure_id", "model_id", "created", "modified"}).
			AddRow(1, testUUID(2), 1, 1, 1, 1, 1, time.Now(), time.Now())
	}
	modelRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "uuid", "threshold_id", "kind", "config_json", "window_size", "min_sample_size", "replaced", "created"}).
			AddRow(1, testUUID(3), 1, "static", `{"upper":50}`, 5, 1, nil, time.Now())
	}

	// Once per touched metric: each of the three just-inserted metrics
	// gets its own threshold lookup, window fetch, boundary, and alert.
	for i := int64(1); i <= 3; i++ {
		mock.ExpectQuery("FROM threshold WHERE branch_id = \\? AND testbed_id = \\? AND measure_id = \\?").WillReturnRows(thresholdModelRow())
		mock.ExpectQuery("FROM threshold_model WHERE id = ?").WillReturnRows(modelRow())

		metricRows := sqlmock.NewRows([]string{"id", "value"}).AddRow(i, 100.0)
		mock.ExpectQuery("FROM metric").WillReturnRows(metricRows)

		mock.ExpectExec("INSERT INTO boundary").WillReturnResult(sqlmock.NewResult(i, 1))
		mock.ExpectExec("INSERT INTO alert").WillReturnResult(sqlmock.NewResult(i, 1))
	}

	mock.ExpectCommit()

	s := store.NewForTest(db)
	ig := New(s, nil)

	iteration := []byte(`[{"benchmark":"encode","measure":"latency","value":100}]`)
	result, err := ig.SubmitReport(context.Background(), Input{
		ProjectID:  1,
		Branch:     "main",
		Testbed:    "linux-x64",
		StartTime:  time.Now(),
		EndTime:    time.Now(),
		AdapterTag: "json",
		Iterations: [][]byte{iteration, iteration, iteration},
	})
	if err != nil {
		t.Fatalf("SubmitReport() error = %v", err)
	}
	if len(result.Alerts) != 3 {
		t.Fatalf("expected 3 alerts (one per iteration's breach), got %d", len(result.Alerts))
	}
	if unmetErr := mock.ExpectationsWereMet(); unmetErr != nil {
		t.Errorf("unmet sqlmock expectations: %v", unmetErr)
	}
}

func TestSubmitReportUnknownAdapterIsBadRequest(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	s := store.NewForTest(db)
	ig := New(s, nil)

	_, err = ig.SubmitReport(context.Background(), Input{
		ProjectID:  1,
		Branch:     "main",
		Testbed:    "linux-x64",
		AdapterTag: "bogus",
	})
	if err == nil {
		t.Fatalf("expected error for unknown adapter tag")
	}
}
