package api

import (
	"database/sql"
	"net/http"
	"sort"
	"time"

	"github.com/julienschmidt/httprouter"

	"bencher/internal/apierrors"
	"bencher/internal/model"
)

type plotSummary struct {
	UUID     string    `json:"uuid"`
	Title    string    `json:"title"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// ListPlots handles GET /v0/projects/{project}/plots.
func (a *API) ListPlots(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
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

	rows, err := conn.QueryContext(ctx, `SELECT uuid, title, created, modified FROM plot WHERE project_id = ? ORDER BY id ASC`, int64(p.ID))
	if err != nil {
		writeError(w, a.Log, apierrors.Internal(err, "listing plots"))
		return
	}
	defer rows.Close()

	out := []plotSummary{}
	for rows.Next() {
		var ps plotSummary
		var title sql.NullString
		if err := rows.Scan(&ps.UUID, &title, &ps.Created, &ps.Modified); err != nil {
			writeError(w, a.Log, apierrors.Internal(err, "scanning plot row"))
			return
		}
		ps.Title = title.String
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		writeError(w, a.Log, apierrors.Internal(err, "iterating plot rows"))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type insertBranchRequest struct {
	BranchUUID string `json:"branch"`
	Index      int    `json:"index"`
}

// InsertPlotBranch handles inserting a branch into a plot's ordered
// child list at a given index (spec.md §4.2 rank redistribution, I7,
// P6, S6). It is the one write path that exercises model.InsertRank and
// model.Redistribute against a live table, rather than just the pure
// rank-arithmetic covered by internal/model's own unit tests.
func (a *API) InsertPlotBranch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	p, err := a.requirePush(ctx, r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	var req insertBranchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}

	err = a.Store.WriteTx(ctx, func(tx *sql.Tx) error {
		var plotID, branchID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM plot WHERE project_id = ? AND uuid = ?`, int64(p.ID), ps.ByName("plot")).Scan(&plotID); err != nil {
			return apierrors.NotFound("plot %q", ps.ByName("plot"))
		}
		if err := tx.QueryRowContext(ctx, `SELECT id FROM branch WHERE project_id = ? AND uuid = ?`, int64(p.ID), req.BranchUUID).Scan(&branchID); err != nil {
			return apierrors.NotFound("branch %q", req.BranchUUID)
		}

		rows, qerr := tx.QueryContext(ctx, `SELECT branch_id, rank FROM plot_branch WHERE plot_id = ? ORDER BY rank ASC`, plotID)
		if qerr != nil {
			return apierrors.Internal(qerr, "reading plot_branch ranks")
		}
		type child struct {
			branchID int64
			rank     int64
		}
		var children []child
		for rows.Next() {
			var c child
			if err := rows.Scan(&c.branchID, &c.rank); err != nil {
				rows.Close()
				return apierrors.Internal(err, "scanning plot_branch row")
			}
			children = append(children, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return apierrors.Internal(err, "iterating plot_branch rows")
		}
		sort.Slice(children, func(i, j int) bool { return children[i].rank < children[j].rank })

		ranks := make([]int64, len(children))
		for i, c := range children {
			ranks[i] = c.rank
		}

		rank, needsRedistribution := model.InsertRank(ranks, req.Index)
		if needsRedistribution {
			existingRanks, insertedRank := model.Redistribute(len(children), req.Index)
			for i, c := range children {
				if _, err := tx.ExecContext(ctx, `UPDATE plot_branch SET rank = ? WHERE plot_id = ? AND branch_id = ?`, existingRanks[i], plotID, c.branchID); err != nil {
					return apierrors.Internal(err, "redistributing plot_branch ranks")
				}
			}
			rank = insertedRank
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO plot_branch (plot_id, branch_id, rank) VALUES (?, ?, ?)`, plotID, branchID, rank); err != nil {
			return apierrors.Internal(err, "inserting plot_branch row")
		}
		return nil
	})
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
