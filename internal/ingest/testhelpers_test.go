package ingest

import (
	"database/sql"

	"github.com/google/uuid"
)

func sqlErrNoRows() error { return sql.ErrNoRows }

func testUUID(seed byte) string {
	var b [16]byte
	b[0] = seed
	u, err := uuid.FromBytes(b[:])
	if err != nil {
		panic(err)
	}
	return u.String()
}
