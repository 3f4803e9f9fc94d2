package api

import (
	"context"
	"net/http"
	"strings"

	"bencher/internal/apierrors"
	"bencher/internal/model"
	"bencher/internal/project"
)

// bearerToken extracts the "Bearer <token>" credential from the
// Authorization header, if any.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// resolveProject loads the project named by the "project" path param and
// applies the read-visibility rule from §4.6/§4.7: a private project
// resolves as NotFound (not Forbidden) to a caller without a valid push
// token, matching the "hide private resources" policy everywhere else in
// the API.
func (a *API) resolveProject(ctx context.Context, r *http.Request, ref string) (*model.Project, bool, error) {
	p, err := project.GetBySlugOrUUID(ctx, a.Store, ref)
	if err != nil {
		return nil, false, err
	}
	pushAuthorized := project.PushAuthorized(p, bearerToken(r))
	if !project.ReadAuthorized(p, pushAuthorized) {
		return nil, false, apierrors.NotFound("project %q", ref)
	}
	return p, pushAuthorized, nil
}

// requirePush is resolveProject plus the stricter write-path check: a
// caller without a valid push token gets Forbidden (the project's
// existence is already established by the time a write is attempted, so
// there is nothing left to hide).
func (a *API) requirePush(ctx context.Context, r *http.Request, ref string) (*model.Project, error) {
	p, pushAuthorized, err := a.resolveProject(ctx, r, ref)
	if err != nil {
		return nil, err
	}
	if !pushAuthorized {
		return nil, apierrors.New(apierrors.KindForbidden, "push token required for project "+ref)
	}
	return p, nil
}
