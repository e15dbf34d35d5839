package main

import (
	"testing"
	"time"

	"parcelsync/internal/diff"
	"parcelsync/internal/pipeline"
	"parcelsync/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanEntries(t *testing.T) {
	rep := &pipeline.Report{Batch: diff.Batch{
		Adds:    []types.Record{{PIN: "15-17-600123"}},
		Updates: []diff.Update{{GlobalID: "{B}", Record: types.Record{PIN: "00-00-999"}}},
		Deletes: []string{"{Z}"},
	}}

	entries := planEntries(rep)
	require.Len(t, entries, 3)
	assert.Equal(t, "+ 15-17-600123", entries[0].line)
	assert.Equal(t, "~ 00-00-999 {B}", entries[1].line)
	assert.Equal(t, "- {Z}", entries[2].line)
	assert.Same(t, &rep.Batch.Adds[0], entries[0].record)
	assert.Nil(t, entries[2].record)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "<null>"},
		{"SMITH JOHN", "SMITH JOHN"},
		{2.5, "2.5000"},
		{int64(401), "401"},
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "2024-01-15T00:00:00Z"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatValue(tt.in))
	}
}
