package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRevision(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		in    any
		valid bool
		want  time.Time
	}{
		{name: "time value", in: ts, valid: true, want: ts},
		{name: "epoch millis int64", in: ts.UnixMilli(), valid: true, want: ts},
		{name: "epoch millis float", in: float64(ts.UnixMilli()), valid: true, want: ts},
		{name: "epoch millis text", in: "1705314600000", valid: true, want: ts},
		{name: "dbf date", in: "20240115", valid: true, want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{name: "rfc3339", in: "2024-01-15T10:30:00Z", valid: true, want: ts},
		{name: "sql text", in: "2024-01-15 10:30:00", valid: true, want: ts},
		{name: "bytes", in: []byte("2024-01-15"), valid: true, want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{name: "nil", in: nil},
		{name: "empty", in: "  "},
		{name: "garbage", in: "last tuesday"},
		{name: "zero time", in: time.Time{}},
		{name: "unsupported type", in: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseRevision(tt.in)
			assert.Equal(t, tt.valid, r.Valid)
			if tt.valid {
				assert.True(t, tt.want.Equal(r.Time), "got %s", r.Time)
			}
		})
	}
}

func TestRevisionSame(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	assert.True(t, NewRevision(ts).Same(NewRevision(ts.In(time.FixedZone("EST", -5*3600)))))
	assert.False(t, NewRevision(ts).Same(NewRevision(ts.Add(time.Millisecond))), "sub-second change must differ")
	assert.False(t, Revision{}.Same(Revision{}), "two missing revisions are not the same")
	assert.False(t, NewRevision(ts).Same(ParseRevision("garbage")))
}

func TestRowGet(t *testing.T) {
	r := Row{"pnum": " 70-15-17-600123 ", "relatedpnum": "", "blank": "   "}

	v, ok := r.Get("pnum")
	assert.True(t, ok)
	assert.Equal(t, "70-15-17-600123", v)

	_, ok = r.Get("relatedpnum")
	assert.False(t, ok)
	_, ok = r.Get("blank")
	assert.False(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)
}
