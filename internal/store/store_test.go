package store

import (
	"testing"

	"github.com/jonathan/resume-ranker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Valid(t *testing.T) {
	s, err := New([]types.ResumeRecord{
		{ID: "b", Document: "java developer"},
		{ID: "a", Document: "python developer", Skills: []string{"Python"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a", "b"}, s.IDs())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))

	rec, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "python developer", rec.Document)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		records []types.ResumeRecord
		field   string
	}{
		{name: "empty set", records: nil, field: "records"},
		{name: "blank id", records: []types.ResumeRecord{{ID: "  ", Document: "x"}}, field: "records[0].resume_id"},
		{name: "blank document", records: []types.ResumeRecord{{ID: "a", Document: "  "}}, field: "records[a].resume_text"},
		{
			name:    "duplicate id",
			records: []types.ResumeRecord{{ID: "a", Document: "x"}, {ID: "a", Document: "y"}},
			field:   "records[1].resume_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.records)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, types.IsInputError(err))

			var inputErr *types.InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
		})
	}
}

func TestStore_RecordsAreCopies(t *testing.T) {
	input := []types.ResumeRecord{{ID: "a", Document: "go", Skills: []string{"Go"}}}
	s, err := New(input)
	require.NoError(t, err)

	input[0].Skills[0] = "mutated"
	rec, _ := s.Get("a")
	assert.Equal(t, "Go", rec.Skills[0])

	rec.Skills[0] = "mutated again"
	again, _ := s.Get("a")
	assert.Equal(t, "Go", again.Skills[0])

	all := s.Records()
	all[0].Skills[0] = "x"
	assert.Equal(t, "Go", s.Records()[0].Skills[0])

	ids := s.IDs()
	ids[0] = "z"
	assert.Equal(t, []string{"a"}, s.IDs())
}
