// Package api exposes the REST + OCI HTTP surface from spec.md §6 over
// github.com/julienschmidt/httprouter, translating apierrors.Kind into
// the 1:1 HTTP status mapping §7 requires.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"bencher/internal/apierrors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	kind := apierrors.KindOf(err)
	entry := log.WithField("kind", kind.String())
	if kind == apierrors.KindInternal {
		entry.WithError(err).Error("internal error handling request")
	} else {
		entry.WithError(err).Debug("request failed")
	}
	writeJSON(w, kind.HTTPStatus(), errorBody{Error: err.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierrors.BadRequest("decoding request body: %v", err)
	}
	return nil
}

// withCORS is applied once at the router's root, matching spec.md §4.8's
// external-interfaces surface being consumed by a separate browser UI
// origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Content-Range")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
