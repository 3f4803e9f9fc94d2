package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"bencher/internal/apierrors"
)

// NewRouter assembles the full REST + OCI Distribution + WebSocket surface
// from spec.md §6 over a.'s handlers, wrapped in CORS and a panic recovery
// layer that turns a model.AssertParent violation (an *apierrors.Error
// panic, per spec.md §4.2) into a proper 500 instead of crashing the
// server.
func (a *API) NewRouter() http.Handler {
	r := httprouter.New()
	r.PanicHandler = a.recoverPanic

	r.POST("/v0/organizations", a.CreateOrganization)
	r.POST("/v0/organizations/:organization/projects", a.CreateProject)
	r.GET("/v0/projects/:project", a.GetProject)

	r.POST("/v0/projects/:project/reports", a.SubmitReport)
	r.GET("/v0/projects/:project/reports", a.ListReports)
	r.GET("/v0/projects/:project/reports/:report", a.GetReport)

	r.GET("/v0/projects/:project/thresholds", a.ListThresholds)

	r.POST("/v0/projects/:project/alerts/silence", a.SilenceAlerts)

	r.GET("/v0/projects/:project/plots", a.ListPlots)
	r.POST("/v0/projects/:project/plots/:plot/branches", a.InsertPlotBranch)

	r.POST("/v0/projects/:project/runners", a.CreateRunner)
	r.POST("/v0/runners/:runner/token", a.IssueRunnerToken)
	r.POST("/v0/projects/:project/runners/:runner/jobs/claim", a.ClaimJob)
	r.POST("/v0/projects/:project/jobs", a.CreateJob)
	r.GET("/v0/projects/:project/jobs/:job/debug", a.DebugJobConfigField)
	r.GET("/v0/runners/:runner/jobs/:job", a.ServeJobChannel)

	r.GET("/v2/", a.V2Check)
	r.POST("/v2/:project/blobs/uploads", a.StartUpload)
	r.PATCH("/v2/:project/blobs/uploads/:sid", a.AppendUpload)
	r.PUT("/v2/:project/blobs/uploads/:sid", a.CommitUpload)
	r.DELETE("/v2/:project/blobs/uploads/:sid", a.CancelUpload)
	r.GET("/v2/:project/blobs/uploads/:sid", a.UploadStatus)
	r.HEAD("/v2/:project/blobs/:digest", a.HeadBlob)
	r.GET("/v2/:project/blobs/:digest", a.GetBlob)
	r.PUT("/v2/:project/manifests/:ref", a.PutManifest)
	r.HEAD("/v2/:project/manifests/:ref", a.HeadManifest)
	r.GET("/v2/:project/manifests/:ref", a.GetManifest)
	r.GET("/v2/:project/tags/list", a.ListTags)
	r.GET("/v2/:project/referrers/:digest", a.ListReferrers)

	return withCORS(r)
}

// recoverPanic implements httprouter's PanicHandler signature, converting
// a recovered *apierrors.Error (the shape model.AssertParent panics with)
// into its mapped status code, and anything else into a bare 500.
func (a *API) recoverPanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	var err error
	switch v := recovered.(type) {
	case *apierrors.Error:
		err = v
	case error:
		err = apierrors.Internal(v, "panic handling request")
	default:
		err = apierrors.Internal(nil, "panic handling request")
	}
	a.Log.WithField("path", r.URL.Path).WithField("recovered", recovered).Error("recovered panic")
	writeError(w, a.Log, err)
}
