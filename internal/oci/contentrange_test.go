package oci

import "testing"

func TestParseContentRangeVariants(t *testing.T) {
	cases := []struct {
		header    string
		wantStart int64
		wantEnd   int64
	}{
		{"5-9", 5, 9},
		{"bytes 10-14/*", 10, 14},
		{"bytes 0-99/200", 0, 99},
	}
	for _, c := range cases {
		start, end, err := ParseContentRange(c.header)
		if err != nil {
			t.Fatalf("ParseContentRange(%q) error = %v", c.header, err)
		}
		if start != c.wantStart || end != c.wantEnd {
			t.Errorf("ParseContentRange(%q) = (%d, %d), want (%d, %d)", c.header, start, end, c.wantStart, c.wantEnd)
		}
	}
}

func TestParseContentRangeRejectsMalformed(t *testing.T) {
	for _, header := range []string{"", "garbage", "5", "bytes"} {
		if _, _, err := ParseContentRange(header); err == nil {
			t.Errorf("ParseContentRange(%q) error = nil, want an error", header)
		}
	}
}
