package alerts

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"bencher/internal/model"
	"bencher/internal/store"
)

// TestSilenceHeadIdempotent covers P7: applying SilenceHead twice yields
// the same row set on the first call and a no-op on the second.
func TestSilenceHeadIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	s := store.NewForTest(db)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"uuid"}).AddRow("alert-uuid-1").AddRow("alert-uuid-2")
	mock.ExpectQuery("SELECT alert.uuid").WithArgs(int64(7), string(model.AlertActive)).WillReturnRows(rows)
	mock.ExpectExec("UPDATE alert SET status = \\?, modified = CURRENT_TIMESTAMP").
		WithArgs(string(model.AlertSilenced), string(model.AlertActive), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ids, err := SilenceHead(context.Background(), s, model.HeadID(7))
	if err != nil {
		t.Fatalf("SilenceHead() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("SilenceHead() returned %d ids, want 2", len(ids))
	}

	// Second call: no Active alerts remain, so no UPDATE is issued.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT alert.uuid").WithArgs(int64(7), string(model.AlertActive)).WillReturnRows(sqlmock.NewRows([]string{"uuid"}))
	mock.ExpectCommit()

	ids, err = SilenceHead(context.Background(), s, model.HeadID(7))
	if err != nil {
		t.Fatalf("SilenceHead() second call error = %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("SilenceHead() second call returned %d ids, want 0", len(ids))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
