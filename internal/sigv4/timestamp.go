package sigv4

import (
	"errors"
	"strings"
	"time"
)

const (
	// BasicTimeFormat is the compact AWS timestamp, e.g. 20230101T120000Z.
	BasicTimeFormat = "20060102T150405Z"
)

var (
	ErrInvalidTimestamp = errors.New("invalid request timestamp")
	ErrClockSkew        = errors.New("request time skew too large")
)

// ParseTimestamp accepts both timestamp formats S3 clients send: the AWS
// basic format (20230101T120000Z) and ISO-8601 (2023-01-01T12:00:00Z,
// fractional seconds allowed).
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrMissingTimestamp
	}
	if !strings.Contains(value, "-") && len(value) <= 16 {
		t, err := time.Parse(BasicTimeFormat, value)
		if err != nil {
			return time.Time{}, ErrInvalidTimestamp
		}
		return t, nil
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// ValidateClock checks the request time against now with the given tolerance
// in either direction. A request exactly at the tolerance boundary is valid.
func ValidateClock(requestTime, now time.Time, tolerance time.Duration) error {
	if tolerance <= 0 {
		return nil
	}
	delta := now.Sub(requestTime)
	if delta < 0 {
		delta = -delta
	}
	if delta > tolerance {
		return ErrClockSkew
	}
	return nil
}
