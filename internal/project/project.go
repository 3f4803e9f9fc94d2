// Package project resolves and manages the top of Bencher's ownership
// hierarchy: organizations and projects (spec.md §3). It owns I1's
// name-uniquification on project creation and the push-token/visibility
// checks the REST and OCI surfaces use to decide whether a caller may
// read or write a given project (spec.md §4.7).
package project

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"bencher/internal/apierrors"
	"bencher/internal/model"
	"bencher/internal/runner"
	"bencher/internal/store"
)

// slugify mirrors internal/ingest's resource-name-to-slug derivation; it
// is duplicated rather than exported from ingest to keep that package's
// surface scoped to submit_report (see DESIGN.md).
func slugify(name string) string {
	out := make([]rune, 0, len(name))
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
			lastDash = false
		default:
			if !lastDash && len(out) > 0 {
				out = append(out, '-')
				lastDash = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return "n"
	}
	return string(out)
}

// CreateOrganization inserts a new organization row.
func CreateOrganization(ctx context.Context, s *store.Store, name string) (*model.Organization, error) {
	now := time.Now().UTC()
	id := model.NewUUID()
	var org model.Organization
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO organization (uuid, slug, name, created, modified) VALUES (?, ?, ?, ?, ?)`,
			id.String(), slugify(name), name, now, now)
		if err != nil {
			return store.ClassifyError(err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return apierrors.Internal(err, "reading new organization id")
		}
		org = model.Organization{ID: model.OrgID(rowID), UUID: id, Slug: slugify(name), Name: name, Created: now, Modified: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// GetOrganizationBySlug resolves an organization by its URL slug.
func GetOrganizationBySlug(ctx context.Context, s *store.Store, slug string) (*model.Organization, error) {
	conn, err := s.Reader(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	row := conn.QueryRowContext(ctx, `SELECT id, uuid, slug, name, created, modified FROM organization WHERE slug = ?`, slug)
	return scanOrganization(row)
}

func scanOrganization(row *sql.Row) (*model.Organization, error) {
	var o model.Organization
	var idStr string
	if err := row.Scan(&o.ID, &idStr, &o.Slug, &o.Name, &o.Created, &o.Modified); err != nil {
		return nil, store.ClassifyError(err)
	}
	u, err := uuid.Parse(idStr)
	if err != nil {
		return nil, apierrors.Internal(err, "corrupt organization uuid")
	}
	o.UUID = u
	return &o, nil
}

// CreateProject inserts a new project under org, uniquifying name within
// the organization per I1. public controls anonymous-pull visibility
// (§4.6 "pulls may be anonymous for public projects"); pushTokenSecret, if
// non-empty, is hashed and stored so PushAuthorized can later verify it.
func CreateProject(ctx context.Context, s *store.Store, bcryptCost int, orgID model.OrgID, name string, public bool, pushTokenSecret string) (*model.Project, error) {
	now := time.Now().UTC()
	id := model.NewUUID()

	var tokenHash sql.NullString
	if pushTokenSecret != "" {
		h, err := runner.HashSecret(pushTokenSecret, bcryptCost)
		if err != nil {
			return nil, err
		}
		tokenHash = sql.NullString{String: h, Valid: true}
	}

	var proj model.Project
	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		existing, err := existingProjectNames(ctx, tx, orgID)
		if err != nil {
			return err
		}
		uniqueName := model.Uniquify(name, existing)

		res, insertErr := tx.ExecContext(ctx,
			`INSERT INTO project (uuid, organization_id, slug, name, public, push_token_hash, created, modified) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id.String(), int64(orgID), slugify(uniqueName), uniqueName, public, tokenHash, now, now)
		if insertErr != nil {
			return store.ClassifyError(insertErr)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return apierrors.Internal(err, "reading new project id")
		}
		proj = model.Project{
			ID: model.ProjectID(rowID), UUID: id, OrganizationID: orgID,
			Slug: slugify(uniqueName), Name: uniqueName, Public: public,
			Created: now, Modified: now,
		}
		if tokenHash.Valid {
			proj.PushTokenHash = tokenHash.String
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &proj, nil
}

func existingProjectNames(ctx context.Context, tx *sql.Tx, orgID model.OrgID) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM project WHERE organization_id = ?`, int64(orgID))
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	defer rows.Close()
	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, store.ClassifyError(err)
		}
		existing[name] = true
	}
	return existing, store.ClassifyError(rows.Err())
}

// GetBySlugOrUUID resolves a project by its path segment, which may be
// either its slug or its external UUID (spec.md §6 "{project}" path
// params). A project archived (soft-deleted) is still resolvable by
// direct lookup; only default listings hide it.
func GetBySlugOrUUID(ctx context.Context, s *store.Store, ref string) (*model.Project, error) {
	conn, err := s.Reader(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var row *sql.Row
	if id, err := uuid.Parse(ref); err == nil {
		row = conn.QueryRowContext(ctx, `SELECT id, uuid, organization_id, slug, name, public, push_token_hash, archived, created, modified FROM project WHERE uuid = ?`, id.String())
	} else {
		row = conn.QueryRowContext(ctx, `SELECT id, uuid, organization_id, slug, name, public, push_token_hash, archived, created, modified FROM project WHERE slug = ?`, ref)
	}
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		// Per §4.7 "private-resource lookups return NotFound rather than
		// Forbidden to avoid leaking existence" — an unknown slug looks
		// identical to a private project a caller can't see.
		return nil, apierrors.NotFound("project %q", ref)
	}
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	return p, nil
}

func scanProject(row *sql.Row) (*model.Project, error) {
	var p model.Project
	var idStr string
	var tokenHash sql.NullString
	var archived sql.NullTime
	if err := row.Scan(&p.ID, &idStr, &p.OrganizationID, &p.Slug, &p.Name, &p.Public, &tokenHash, &archived, &p.Created, &p.Modified); err != nil {
		return nil, err
	}
	u, err := uuid.Parse(idStr)
	if err != nil {
		return nil, apierrors.Internal(err, "corrupt project uuid")
	}
	p.UUID = u
	if tokenHash.Valid {
		p.PushTokenHash = tokenHash.String
	}
	if archived.Valid {
		v := archived.Time
		p.Archived = &v
	}
	return &p, nil
}

// ReadAuthorized implements §4.6's "pulls may be anonymous for public
// projects": a private project requires a caller who already resolved a
// valid push token (callers pass the same bool they got from
// PushAuthorized to avoid hashing twice).
func ReadAuthorized(p *model.Project, alreadyPushAuthorized bool) bool {
	return p.Public || alreadyPushAuthorized
}

// PushAuthorized checks a presented bearer token against the project's
// stored push-token hash. A project with no push token configured can
// never be pushed to by anyone (not "anyone may push").
func PushAuthorized(p *model.Project, presentedToken string) bool {
	if p.PushTokenHash == "" || presentedToken == "" {
		return false
	}
	return runner.CheckSecret(p.PushTokenHash, presentedToken)
}
