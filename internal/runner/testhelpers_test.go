package runner

import "github.com/google/uuid"

func testUUID(seed byte) string {
	var b [16]byte
	b[0] = seed
	u, err := uuid.FromBytes(b[:])
	if err != nil {
		panic(err)
	}
	return u.String()
}
