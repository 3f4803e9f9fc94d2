package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"bencher/internal/apierrors"
)

func TestClampPoolSize(t *testing.T) {
	cases := []struct {
		requested int
		want      int
	}{
		{requested: 0, want: clampPoolSize(0)}, // GOMAXPROCS-derived; just check bounds below
		{requested: 1, want: 2},
		{requested: 4, want: 4},
		{requested: 100, want: 8},
	}
	for _, tc := range cases {
		got := clampPoolSize(tc.requested)
		if got < 2 || got > 8 {
			t.Errorf("clampPoolSize(%d) = %d, out of [2,8]", tc.requested, got)
		}
		if tc.requested != 0 && got != tc.want {
			t.Errorf("clampPoolSize(%d) = %d, want %d", tc.requested, got, tc.want)
		}
	}
}

func TestClassifyErrorNoRows(t *testing.T) {
	err := ClassifyError(sql.ErrNoRows)
	if apierrors.KindOf(err) != apierrors.KindNotFound {
		t.Errorf("expected NotFound, got %s", apierrors.KindOf(err))
	}
}

func TestClassifyErrorBusyString(t *testing.T) {
	err := ClassifyError(errors.New("database is locked"))
	if apierrors.KindOf(err) != apierrors.KindStorageBusy {
		t.Errorf("expected StorageBusy, got %s", apierrors.KindOf(err))
	}
}

func TestClassifyErrorConstraint(t *testing.T) {
	err := ClassifyError(errors.New("UNIQUE constraint failed: project.name"))
	if apierrors.KindOf(err) != apierrors.KindConflict {
		t.Errorf("expected Conflict, got %s", apierrors.KindOf(err))
	}
}

func TestRetryOnceIfBusyRetriesExactlyOnce(t *testing.T) {
	attempts := 0
	err := RetryOnceIfBusy(func() error {
		attempts++
		if attempts < 2 {
			return apierrors.New(apierrors.KindStorageBusy, "busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on second attempt, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestRetryOnceIfBusyDoesNotRetryOtherKinds(t *testing.T) {
	attempts := 0
	err := RetryOnceIfBusy(func() error {
		attempts++
		return apierrors.New(apierrors.KindConflict, "nope")
	})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for non-busy errors, got %d", attempts)
	}
}

// TestWriteTxRollsBackOnError exercises WriteTx against a sqlmock-backed
// *sql.DB so the transaction/rollback contract can be asserted without a
// real SQLite file, matching the teacher corpus's own go-sqlmock usage.
func TestWriteTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	s := &Store{writePool: db}
	wantErr := errors.New("boom")
	err = s.WriteTx(context.TODO(), func(tx *sql.Tx) error {
		return wantErr
	})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
	if unmetErr := mock.ExpectationsWereMet(); unmetErr != nil {
		t.Errorf("unmet sqlmock expectations: %v", unmetErr)
	}
}

func TestWriteTxCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	s := &Store{writePool: db}
	err = s.WriteTx(context.TODO(), func(tx *sql.Tx) error {
		return nil
	})
	if err != nil {
		t.Fatalf("WriteTx() error = %v", err)
	}
	if unmetErr := mock.ExpectationsWereMet(); unmetErr != nil {
		t.Errorf("unmet sqlmock expectations: %v", unmetErr)
	}
}
