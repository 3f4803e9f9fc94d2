// Package api exposes the REST + OCI HTTP surface from spec.md §6 over
// github.com/julienschmidt/httprouter, translating apierrors.Kind into
// the 1:1 HTTP status mapping §7 requires.
package api

import (
	"github.com/sirupsen/logrus"

	"bencher/internal/ingest"
	"bencher/internal/oci"
	"bencher/internal/runner"
	"bencher/internal/store"
)

// API bundles every dependency the HTTP handlers close over. It holds no
// request-scoped state; one instance is built at server startup and
// shared across all goroutines handling requests.
type API struct {
	Store    *store.Store
	Ingester *ingest.Ingester
	Jobs     *runner.Jobs
	Channel  *runner.Channel
	Registry *oci.Registry
	HMACKey  []byte

	BcryptCost int

	Log *logrus.Entry
}

func New(s *store.Store, ig *ingest.Ingester, jobs *runner.Jobs, ch *runner.Channel, reg *oci.Registry, hmacKey []byte, bcryptCost int, log *logrus.Entry) *API {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &API{Store: s, Ingester: ig, Jobs: jobs, Channel: ch, Registry: reg, HMACKey: hmacKey, BcryptCost: bcryptCost, Log: log}
}
