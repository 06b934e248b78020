package storage

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		spec       string
		size       int64
		start, end int64
		wantErr    bool
	}{
		{"", 10, 0, 9, false},
		{"bytes=0-4", 10, 0, 4, false},
		{"bytes=5-", 10, 5, 9, false},
		{"bytes=-3", 10, 7, 9, false},
		{"bytes=-20", 10, 0, 9, false},
		{"bytes=0-100", 10, 0, 9, false},
		{"bytes=10-12", 10, 0, 0, true},
		{"bytes=4-2", 10, 0, 0, true},
		{"bytes=0-1,3-4", 10, 0, 0, true},
		{"items=0-1", 10, 0, 0, true},
		{"bytes=-0", 10, 0, 0, true},
		{"bytes=a-b", 10, 0, 0, true},
	}
	for _, tc := range cases {
		start, end, err := ParseRange(tc.spec, tc.size)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidRange) {
				t.Errorf("ParseRange(%q) error = %v, want ErrInvalidRange", tc.spec, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRange(%q) error: %v", tc.spec, err)
			continue
		}
		if start != tc.start || end != tc.end {
			t.Errorf("ParseRange(%q) = [%d,%d], want [%d,%d]", tc.spec, start, end, tc.start, tc.end)
		}
	}
}

func TestContentRange(t *testing.T) {
	t.Parallel()
	if got := ContentRange(2, 5, 10); got != "bytes 2-5/10" {
		t.Fatalf("ContentRange = %q", got)
	}
}
