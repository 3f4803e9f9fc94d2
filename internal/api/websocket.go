package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"bencher/internal/apierrors"
)

// ServeJobChannel handles GET /v0/runners/{runner}/jobs/{job}: the
// WebSocket upgrade a runner uses to stream heartbeats and iteration
// output for a job it already claimed (spec.md §4.5).
func (a *API) ServeJobChannel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	token := bearerToken(r)
	if token == "" {
		writeError(w, a.Log, apierrors.New(apierrors.KindUnauthorized, "missing runner bearer token"))
		return
	}

	jobID, err := a.resolveRunnerAndJob(ctx, ps.ByName("runner"), ps.ByName("job"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	if err := a.Channel.ServeJob(w, r, jobID, token); err != nil {
		// ServeJob may fail after already hijacking the connection for the
		// WebSocket upgrade; writeError is a best-effort fallback for the
		// cases where it fails before that point.
		writeError(w, a.Log, err)
	}
}
