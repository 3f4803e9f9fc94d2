// Package ingest implements submit_report, spec.md §4.3's single public
// ingestion operation: resolve or create a branch/testbed/measures/
// benchmarks, append a version, record metrics, and evaluate thresholds.
package ingest

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"bencher/internal/ingest/adapter"
	"bencher/internal/model"
	"bencher/internal/store"
	"bencher/internal/threshold"
)

// StartPoint carries the optional branch-cloning parameters from spec.md
// §4.3 step 1.
type StartPoint struct {
	Branch          string // name or UUID of the branch to clone from
	Hash            string // clone history up to (and including) this hash
	CloneThresholds bool
	ResetBranch     bool
}

// ThresholdUpsert is one entry of the payload's `thresholds.models` map
// (spec.md §4.3 step 7), keyed by measure name in the caller.
type ThresholdUpsert struct {
	Kind          model.ThresholdModelKind
	ConfigJSON    string
	WindowSize    int
	MinSampleSize int
}

// Input is submit_report's payload (spec.md §4.3).
type Input struct {
	ProjectID  model.ProjectID
	Branch     string // name or UUID
	Testbed    string // name or UUID
	StartPoint *StartPoint
	StartTime  time.Time
	EndTime    time.Time
	AdapterTag string
	Iterations [][]byte // one raw adapter output per iteration

	// Thresholds upserts/resets, keyed by measure name (step 7).
	ThresholdsByMeasure map[string]ThresholdUpsert
	ResetUnlisted       bool
}

// Alert is one alert opened during this submission, returned so the
// caller (API layer) can report them in the response.
type Alert struct {
	AlertID        model.AlertID
	BoundaryID     model.BoundaryID
	MeasureName    string
	BenchmarkName  string
	Classification model.BoundaryClassification
}

// Result is submit_report's output: the created report plus any alerts
// opened while evaluating thresholds.
type Result struct {
	ReportID model.ReportID
	Alerts   []Alert
}

// Ingester runs submit_report against a Store.
type Ingester struct {
	Store *store.Store
	Log   *logrus.Entry
}

func New(s *store.Store, log *logrus.Entry) *Ingester {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ingester{Store: s, Log: log}
}

// SubmitReport runs the full pipeline in a single write transaction
// (spec.md §4.3 "steps 5-7 run in a single transaction"; steps 1-3 are
// resolved inline here too, since the whole operation is one logical
// write under the writer mutex per §4.1).
func (ig *Ingester) SubmitReport(ctx context.Context, in Input) (*Result, error) {
	a, err := adapter.Lookup(in.AdapterTag)
	if err != nil {
		return nil, err
	}

	// Step 4 is pure and can run before the transaction opens (spec.md
	// §4.3 "Ordering: ... step 4 is pure").
	type iterationTriples struct {
		iteration int64
		triples   []adapter.Measurement
	}
	parsed := make([]iterationTriples, 0, len(in.Iterations))
	for i, raw := range in.Iterations {
		triples, err := a.Parse(raw)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, iterationTriples{iteration: int64(i), triples: triples})
	}

	var result Result
	err = ig.Store.WriteTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		branch, err := resolveOrCreateBranch(ctx, tx, in.ProjectID, in.Branch, in.StartPoint, now)
		if err != nil {
			return err
		}
		head, err := currentHead(ctx, tx, branch.ID)
		if err != nil {
			return err
		}
		testbed, err := getOrCreateTestbed(ctx, tx, in.ProjectID, in.Testbed, now)
		if err != nil {
			return err
		}
		version, err := appendVersion(ctx, tx, in.ProjectID, head.ID, "", now)
		if err != nil {
			return err
		}

		report, err := insertReport(ctx, tx, in.ProjectID, head.ID, version.ID, testbed.ID, in.AdapterTag, in.StartTime, in.EndTime, now)
		if err != nil {
			return err
		}

		type affected struct {
			benchmarkName string
			measureID     model.MeasureID
			measureName   string
			metricID      model.MetricID
		}
		var touched []affected

		for _, it := range parsed {
			byBenchmark := make(map[string][]adapter.Measurement)
			order := make([]string, 0)
			for _, trip := range it.triples {
				if _, ok := byBenchmark[trip.Benchmark]; !ok {
					order = append(order, trip.Benchmark)
				}
				byBenchmark[trip.Benchmark] = append(byBenchmark[trip.Benchmark], trip)
			}

			for _, benchmarkName := range order {
				triples := byBenchmark[benchmarkName]
				benchmark, err := getOrCreateBenchmark(ctx, tx, in.ProjectID, benchmarkName, now)
				if err != nil {
					return err
				}
				rb, err := insertReportBenchmark(ctx, tx, report.ID, benchmark.ID, it.iteration, now)
				if err != nil {
					return err
				}
				for _, trip := range triples {
					measure, err := getOrCreateMeasure(ctx, tx, in.ProjectID, trip.Measure, "", now)
					if err != nil {
						return err
					}
					metricID, err := insertMetric(ctx, tx, rb.ID, measure.ID, trip.Value, now)
					if err != nil {
						return err
					}
					touched = append(touched, affected{benchmarkName: benchmarkName, measureID: measure.ID, measureName: trip.Measure, metricID: metricID})
				}
			}
		}

		// Step 6: evaluate a boundary for every metric this report inserted
		// that has a current-model threshold on its (branch, testbed,
		// measure) — one per metric, not deduplicated per measure, so N
		// iterations reporting the same measure yield N boundaries (spec.md
		// §8 S1; §3's "a boundary references exactly one metric").
		for _, t := range touched {
			th, mdl, err := currentThresholdModel(ctx, tx, branch.ID, testbed.ID, t.measureID)
			if err != nil {
				return err
			}
			if th == nil || mdl == nil {
				continue
			}

			metricValues, metricIDs, err := recentMetricValuesForMeasure(ctx, tx, branch.ID, testbed.ID, t.measureID, t.metricID, mdl.WindowSize)
			if err != nil {
				return err
			}
			if len(metricIDs) == 0 {
				continue
			}
			newMetricID := metricIDs[len(metricIDs)-1]
			newValue := metricValues[len(metricValues)-1]
			window := metricValues[:len(metricValues)-1]

			engineModel, err := threshold.Decode(mdl.Kind, mdl.ConfigJSON)
			if err != nil {
				return err
			}
			evalResult, err := engineModel.Evaluate(threshold.Inputs{
				Window:        window,
				MinSampleSize: mdl.MinSampleSize,
				Value:         newValue,
			})
			if err != nil {
				return err
			}

			boundaryID, err := insertBoundary(ctx, tx, newMetricID, th.ID, mdl.ID, evalResult, now)
			if err != nil {
				return err
			}

			if evalResult.Classification != model.WithinBounds {
				alertID, err := insertAlert(ctx, tx, boundaryID, now)
				if err != nil {
					return err
				}
				result.Alerts = append(result.Alerts, Alert{
					AlertID:        alertID,
					BoundaryID:     boundaryID,
					MeasureName:    t.measureName,
					BenchmarkName:  t.benchmarkName,
					Classification: evalResult.Classification,
				})
			}
		}

		// Step 7: upsert/reset thresholds from the payload.
		if err := applyThresholdUpserts(ctx, tx, in.ProjectID, branch.ID, testbed.ID, in.ThresholdsByMeasure, in.ResetUnlisted, now); err != nil {
			return err
		}

		result.ReportID = report.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
