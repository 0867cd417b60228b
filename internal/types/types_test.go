package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		record  ResumeRecord
		wantErr bool
	}{
		{name: "valid", record: ResumeRecord{ID: "a", Document: "python"}},
		{name: "missing id", record: ResumeRecord{Document: "python"}, wantErr: true},
		{name: "blank id", record: ResumeRecord{ID: "  ", Document: "python"}, wantErr: true},
		{name: "missing document", record: ResumeRecord{ID: "a"}, wantErr: true},
		{name: "blank document", record: ResumeRecord{ID: "a", Document: "\n\t"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInputError(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResumeRecord_CloneIsDeep(t *testing.T) {
	orig := ResumeRecord{
		ID:         "a",
		Document:   "doc",
		Skills:     []string{"go"},
		Education:  []Education{{School: "MIT", Degree: "BSc"}},
		Experience: []Experience{{Company: "Acme"}},
	}
	clone := orig.Clone()
	clone.Skills[0] = "rust"
	clone.Education[0].School = "CMU"
	clone.Experience[0].Company = "Initech"

	assert.Equal(t, "go", orig.Skills[0])
	assert.Equal(t, "MIT", orig.Education[0].School)
	assert.Equal(t, "Acme", orig.Experience[0].Company)
}

func TestEducation_String(t *testing.T) {
	assert.Equal(t, "MIT - BSc (2020)", Education{School: "MIT", Degree: "BSc", Year: "2020"}.String())
	assert.Equal(t, "MIT - BSc", Education{School: "MIT", Degree: "BSc"}.String())
}

func TestRankingResult_Helpers(t *testing.T) {
	var nilResult *RankingResult
	assert.Equal(t, 0, nilResult.Len())
	assert.Nil(t, nilResult.IDs())
	assert.Nil(t, nilResult.Clone())

	r := &RankingResult{Stage: StageBM25, Candidates: []ScoredCandidate{{ID: "a", Score: 2}, {ID: "b", Score: 1}}}
	assert.Equal(t, []string{"a", "b"}, r.IDs())

	c := r.Clone()
	c.Candidates[0].ID = "z"
	assert.Equal(t, "a", r.Candidates[0].ID)
}

func TestErrors(t *testing.T) {
	cause := errors.New("timeout")
	oerr := &OracleError{CandidateIDs: []string{"a", "b"}, Message: "request failed", Cause: cause}
	assert.Equal(t, "oracle error [a,b]: request failed: timeout", oerr.Error())
	assert.ErrorIs(t, oerr, cause)
	assert.True(t, IsOracleError(fmt.Errorf("wrapped: %w", oerr)))

	ierr := &InputError{Field: "query", Message: "must not be empty"}
	assert.Equal(t, "input error in query: must not be empty", ierr.Error())
	assert.Equal(t, "input error: bad", (&InputError{Message: "bad"}).Error())
	assert.True(t, IsInputError(fmt.Errorf("wrapped: %w", ierr)))
	assert.False(t, IsInputError(oerr))

	eerr := &EvaluationInputError{Message: "reference is empty"}
	assert.True(t, IsEvaluationInputError(eerr))
	assert.Contains(t, eerr.Error(), "reference is empty")
}

func TestParseReferenceFormat(t *testing.T) {
	f, err := ParseReferenceFormat(" Graded ")
	require.NoError(t, err)
	assert.Equal(t, ReferenceGraded, f)

	_, err = ParseReferenceFormat("stars")
	assert.Error(t, err)
}

func TestReference_Size(t *testing.T) {
	var nilRef *Reference
	assert.Equal(t, 0, nilRef.Size())
	assert.Equal(t, 2, (&Reference{Format: ReferenceOrder, Order: []string{"a", "b"}}).Size())
	assert.Equal(t, 1, (&Reference{Format: ReferenceGraded, Grades: map[string]float64{"a": 1}}).Size())

	r := &RankingResult{Candidates: []ScoredCandidate{{ID: "x"}, {ID: "y"}}}
	assert.Equal(t, []string{"x", "y"}, ReferenceFromRanking(r).Order)
}

func TestEvaluationReport_Metric(t *testing.T) {
	report := &EvaluationReport{Metrics: map[string]float64{MetricMRR: 0.5}}
	v, ok := report.Metric(MetricMRR)
	assert.True(t, ok)
	assert.Equal(t, 0.5, v)
	_, ok = report.Metric(MetricSpearman)
	assert.False(t, ok)
}
