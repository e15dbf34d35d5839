package types

import (
	"strconv"
	"strings"
	"time"
)

// Revision is a REVISIONDATE value. Revisions are compared for equality
// only; an invalid revision is never equal to anything, itself included.
type Revision struct {
	Time  time.Time
	Valid bool
	Raw   string
}

// revisionLayouts are tried in order for text revisions.
var revisionLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// NewRevision wraps a time as a valid revision.
func NewRevision(t time.Time) Revision {
	return Revision{Time: t.UTC(), Valid: true, Raw: t.UTC().Format(time.RFC3339Nano)}
}

// ParseRevision converts a source or store value into a Revision. It accepts
// time.Time, epoch milliseconds as integers, floats or digit strings, DBF
// dates (YYYYMMDD) and the common text layouts. Anything else yields an
// invalid revision rather than an error.
func ParseRevision(v any) Revision {
	switch x := v.(type) {
	case nil:
		return Revision{}
	case time.Time:
		if x.IsZero() {
			return Revision{}
		}
		return NewRevision(x)
	case *time.Time:
		if x == nil {
			return Revision{}
		}
		return ParseRevision(*x)
	case int64:
		return NewRevision(time.UnixMilli(x))
	case int:
		return NewRevision(time.UnixMilli(int64(x)))
	case float64:
		return NewRevision(time.UnixMilli(int64(x)))
	case []byte:
		return ParseRevision(string(x))
	case string:
		return parseRevisionText(x)
	default:
		return Revision{}
	}
}

func parseRevisionText(s string) Revision {
	s = strings.TrimSpace(s)
	if s == "" {
		return Revision{}
	}
	if isDigits(s) {
		if len(s) == 8 {
			if t, err := time.Parse("20060102", s); err == nil {
				return withRaw(NewRevision(t), s)
			}
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Revision{Raw: s}
		}
		return withRaw(NewRevision(time.UnixMilli(ms)), s)
	}
	for _, layout := range revisionLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return withRaw(NewRevision(t), s)
		}
	}
	return Revision{Raw: s}
}

func withRaw(r Revision, raw string) Revision {
	r.Raw = raw
	return r
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Same reports whether both revisions are valid and denote the same instant.
// Sub-second differences count.
func (r Revision) Same(o Revision) bool {
	return r.Valid && o.Valid && r.Time.Equal(o.Time)
}

// String returns the RFC 3339 form of a valid revision or the raw text.
func (r Revision) String() string {
	if !r.Valid {
		return r.Raw
	}
	return r.Time.Format(time.RFC3339Nano)
}
