package countdown

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTarget is matched by every error ParseTarget returns.
var ErrInvalidTarget = errors.New("invalid countdown target")

// TargetError describes which field of a target failed to parse.
type TargetError struct {
	Field string // "start" or "end"
	Value string
	Err   error
}

func (e *TargetError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("countdown: invalid %s %q", e.Field, e.Value)
	}
	return fmt.Sprintf("countdown: invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }

func (e *TargetError) Is(target error) bool { return target == ErrInvalidTarget }

// Target is the instant a countdown runs toward, plus an optional end.
// A zero End means there is no end time. A zero Start makes the target
// invalid; engines report invalid targets as zeroed state.
type Target struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the target has a start time.
func (t Target) Valid() bool {
	return !t.Start.IsZero()
}

// HasEnd reports whether the target carries an end time after its start.
// An end at or before the start is ignored.
func (t Target) HasEnd() bool {
	return !t.End.IsZero() && t.End.After(t.Start)
}

// Equal compares instants, ignoring location.
func (t Target) Equal(o Target) bool {
	return t.Start.Equal(o.Start) && t.End.Equal(o.End)
}

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTarget parses ISO-8601 start and end strings. Timestamps without an
// offset are read in loc (time.Local if nil). An empty end means no end.
func ParseTarget(start, end string, loc *time.Location) (Target, error) {
	if loc == nil {
		loc = time.Local
	}
	s, err := parseTime(start, loc)
	if err != nil {
		return Target{}, &TargetError{Field: "start", Value: start, Err: err}
	}
	t := Target{Start: s}
	if strings.TrimSpace(end) == "" {
		return t, nil
	}
	e, err := parseTime(end, loc)
	if err != nil {
		return Target{}, &TargetError{Field: "end", Value: end, Err: err}
	}
	if e.Before(s) {
		return Target{}, &TargetError{Field: "end", Value: end, Err: errors.New("end is before start")}
	}
	t.End = e
	return t, nil
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty value")
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, v, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
