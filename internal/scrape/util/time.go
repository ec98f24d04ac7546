package util

import (
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the date shapes seen across platform payloads: RFC3339
// variants, plain dates, and epoch seconds or milliseconds as strings.
// Unparseable input yields nil (unknown).
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return EpochTime(n)
	}
	return nil
}

// EpochTime treats values >= 1e12 as milliseconds, else seconds.
func EpochTime(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	var t time.Time
	if n >= 1_000_000_000_000 {
		t = time.UnixMilli(n)
	} else {
		t = time.Unix(n, 0)
	}
	t = t.UTC()
	return &t
}
