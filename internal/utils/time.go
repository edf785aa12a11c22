package utils

import (
	"fmt"
	"time"
)

// ParseInstant accepts an RFC3339 timestamp or a plain date, read as midnight UTC.
func ParseInstant(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor a 2006-01-02 date", raw)
	}
	return t, nil
}
