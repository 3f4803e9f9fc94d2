// Package alerts implements the bulk alert-silencing operation from
// spec.md §4.4 "Silencing" and I6: silencing every alert on a head is a
// single conditional UPDATE, and applying it twice yields the same row
// set (P7).
package alerts

import (
	"context"
	"database/sql"

	"bencher/internal/model"
	"bencher/internal/store"
)

// SilenceHead silences every Active alert whose boundary traces back to
// headID, via the join spec.md §4.4 names explicitly: "alert IDs joined
// through report_benchmark -> report.head_id = target". It returns the
// UUIDs of the alerts it silenced (empty, not an error, if there were
// none — idempotent per P7/I6).
func SilenceHead(ctx context.Context, s *store.Store, headID model.HeadID) ([]string, error) {
	var silenced []string
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT alert.uuid
			FROM alert
			JOIN boundary ON boundary.id = alert.boundary_id
			JOIN metric ON metric.id = boundary.metric_id
			JOIN report_benchmark ON report_benchmark.id = metric.report_benchmark_id
			JOIN report ON report.id = report_benchmark.report_id
			WHERE report.head_id = ? AND alert.status = ?`,
			int64(headID), string(model.AlertActive))
		if err != nil {
			return store.ClassifyError(err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return store.ClassifyError(err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return store.ClassifyError(err)
		}
		rows.Close()

		if len(ids) == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE alert SET status = ?, modified = CURRENT_TIMESTAMP
			WHERE status = ? AND id IN (
				SELECT alert.id
				FROM alert
				JOIN boundary ON boundary.id = alert.boundary_id
				JOIN metric ON metric.id = boundary.metric_id
				JOIN report_benchmark ON report_benchmark.id = metric.report_benchmark_id
				JOIN report ON report.id = report_benchmark.report_id
				WHERE report.head_id = ?
			)`, string(model.AlertSilenced), string(model.AlertActive), int64(headID))
		if err != nil {
			return store.ClassifyError(err)
		}
		silenced = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return silenced, nil
}
