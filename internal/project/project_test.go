package project

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"

	"bencher/internal/apierrors"
	"bencher/internal/model"
	"bencher/internal/runner"
	"bencher/internal/store"
)

func TestCreateOrganization(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	s := store.NewForTest(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO organization").
		WithArgs(sqlmock.AnyArg(), "widgets-inc", "Widgets Inc", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	org, err := CreateOrganization(context.Background(), s, "Widgets Inc")
	if err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}
	if org.Slug != "widgets-inc" || org.Name != "Widgets Inc" {
		t.Fatalf("CreateOrganization() = %+v, unexpected slug/name", org)
	}
	if org.ID != model.OrgID(1) {
		t.Fatalf("CreateOrganization() ID = %v, want 1", org.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestCreateProjectUniquifies covers I1: a second project named "bench"
// under the same organization is renamed "bench (2)" rather than rejected.
func TestCreateProjectUniquifies(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	s := store.NewForTest(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT name FROM project WHERE organization_id = \\?").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("bench"))
	mock.ExpectExec("INSERT INTO project").
		WithArgs(sqlmock.AnyArg(), int64(3), "bench-2", "bench (2)", true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectCommit()

	p, err := CreateProject(context.Background(), s, bcrypt.MinCost, model.OrgID(3), "bench", true, "")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if p.Name != "bench (2)" {
		t.Fatalf("CreateProject() Name = %q, want %q", p.Name, "bench (2)")
	}
	if p.PushTokenHash != "" {
		t.Fatalf("CreateProject() PushTokenHash = %q, want empty for no secret supplied", p.PushTokenHash)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestCreateProjectHashesPushSecret covers §4.7: a caller-supplied push
// secret is stored only as a bcrypt hash, never in the clear.
func TestCreateProjectHashesPushSecret(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	s := store.NewForTest(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT name FROM project WHERE organization_id = \\?").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectExec("INSERT INTO project").
		WithArgs(sqlmock.AnyArg(), int64(3), "bench", "bench", false, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectCommit()

	p, err := CreateProject(context.Background(), s, bcrypt.MinCost, model.OrgID(3), "bench", false, "s3cr3t")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if p.PushTokenHash == "" || p.PushTokenHash == "s3cr3t" {
		t.Fatalf("CreateProject() PushTokenHash = %q, want a bcrypt hash", p.PushTokenHash)
	}
	if !runner.CheckSecret(p.PushTokenHash, "s3cr3t") {
		t.Fatalf("stored hash does not verify against the original secret")
	}
}

// TestGetBySlugOrUUIDNotFound covers §4.7: an unknown slug returns
// NotFound rather than surfacing the bare sql.ErrNoRows.
func TestGetBySlugOrUUIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	s := store.NewForTest(db)

	mock.ExpectQuery("SELECT id, uuid, organization_id, slug, name, public, push_token_hash, archived, created, modified FROM project WHERE slug = \\?").
		WithArgs("nonexistent").
		WillReturnError(sql.ErrNoRows)

	_, err = GetBySlugOrUUID(context.Background(), s, "nonexistent")
	if apierrors.KindOf(err) != apierrors.KindNotFound {
		t.Fatalf("GetBySlugOrUUID() error kind = %v, want KindNotFound", apierrors.KindOf(err))
	}
}

func TestReadAuthorized(t *testing.T) {
	if !ReadAuthorized(&model.Project{Public: true}, false) {
		t.Error("ReadAuthorized() = false for a public project, want true")
	}
	if ReadAuthorized(&model.Project{Public: false}, false) {
		t.Error("ReadAuthorized() = true for a private project with no push auth, want false")
	}
	if !ReadAuthorized(&model.Project{Public: false}, true) {
		t.Error("ReadAuthorized() = false for a private project the caller already push-authorized against, want true")
	}
}

func TestPushAuthorized(t *testing.T) {
	hash, err := runner.HashSecret("correct-secret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	p := &model.Project{PushTokenHash: hash}

	if !PushAuthorized(p, "correct-secret") {
		t.Error("PushAuthorized() = false for the correct secret, want true")
	}
	if PushAuthorized(p, "wrong-secret") {
		t.Error("PushAuthorized() = true for an incorrect secret, want false")
	}
	if PushAuthorized(&model.Project{}, "anything") {
		t.Error("PushAuthorized() = true for a project with no push token configured, want false")
	}
}
