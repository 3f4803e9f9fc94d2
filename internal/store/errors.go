package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"bencher/internal/apierrors"
)

// ClassifyError maps a raw database/sql or mattn/go-sqlite3 error into the
// taxonomy from spec.md §4.1/§7: StorageBusy, NotFound, Conflict, or
// Internal. Integrity failures are fatal to the request, never to the
// process — callers simply propagate the returned *apierrors.Error.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apierrors.NotFound("row not found")
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return apierrors.Wrap(apierrors.KindStorageBusy, err, "database busy")
		case sqlite3.ErrConstraint:
			return apierrors.Wrap(apierrors.KindConflict, err, "constraint violation")
		}
		return apierrors.Internal(err, "sqlite integrity error")
	}

	// mattn/go-sqlite3 sometimes surfaces busy/locked as a plain string
	// from older driver paths (e.g. during Exec on a locked DB); fall
	// back to a substring check rather than silently calling it Internal.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") {
		return apierrors.Wrap(apierrors.KindStorageBusy, err, "database busy")
	}
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "foreign key constraint") {
		return apierrors.Wrap(apierrors.KindConflict, err, "constraint violation")
	}

	return apierrors.Internal(err, "storage error")
}

// RetryOnceIfBusy retries fn exactly once if its first attempt returns
// KindStorageBusy, per §4.1 ("StorageBusy is retried once within the
// busy-timeout").
func RetryOnceIfBusy(fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if apierrors.KindOf(err) != apierrors.KindStorageBusy {
		return err
	}
	return fn()
}
