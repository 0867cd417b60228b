package ingestion

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonathan/resume-ranker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRecords_CSV(t *testing.T) {
	records, err := LoadRecords(filepath.Join("testdata", "resumes.csv"))
	require.NoError(t, err)
	require.Len(t, records, 3)

	a := records[0]
	assert.Equal(t, "A", a.ID)
	assert.Equal(t, "Backend engineer with 3 years of Python experience", a.Document)
	assert.Equal(t, []string{"python", "django"}, a.Skills)
	assert.Equal(t, "Berlin", a.Location)
	require.Len(t, a.Education, 1)
	assert.Equal(t, "State University - BSc Computer Science (2019)", a.Education[0].String())

	// malformed JSON columns degrade to empty lists
	assert.Empty(t, records[1].Education)
	assert.Equal(t, []string{"react"}, records[1].Skills)
	assert.Empty(t, records[2].Location)
}

func TestLoadRecords_JSON(t *testing.T) {
	records, err := LoadRecords(filepath.Join("testdata", "resumes.json"))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{records[0].ID, records[1].ID, records[2].ID})
	assert.Equal(t, "2021", records[2].Education[0].Year)
}

func TestLoadRecords_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadRecords(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")

	txt := filepath.Join(dir, "records.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = LoadRecords(txt)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	bad := filepath.Join(dir, "records.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"resume_id": "A"}]`), 0o644))
	_, err = LoadRecords(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid records file")
}

func TestParseRecordsCSV_Header(t *testing.T) {
	_, err := ParseRecordsCSV(strings.NewReader(""))
	assert.True(t, types.IsInputError(err))

	_, err = ParseRecordsCSV(strings.NewReader("id,text\n1,hello\n"))
	assert.True(t, types.IsInputError(err))

	_, err = ParseRecordsCSV(strings.NewReader("resume_id,location\n1,Berlin\n"))
	assert.True(t, types.IsInputError(err))
}

func TestParseRecordsCSV_ResumeTextColumn(t *testing.T) {
	records, err := ParseRecordsCSV(strings.NewReader("\ufeffresume_id,resume_text\nX,go developer\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "X", records[0].ID)
	assert.Equal(t, "go developer", records[0].Document)
}

func TestLoadReference(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	ref, err := LoadReference(write("order.json", `["A", "C", "B"]`), types.ReferenceGraded)
	require.NoError(t, err)
	assert.Equal(t, types.ReferenceOrder, ref.Format)
	assert.Equal(t, []string{"A", "C", "B"}, ref.Order)

	ref, err = LoadReference(write("graded.json", `{"grades": {"A": 90, "B": 10}}`), types.ReferenceOrder)
	require.NoError(t, err)
	assert.Equal(t, types.ReferenceGraded, ref.Format)
	assert.Equal(t, 90.0, ref.Grades["A"])

	ref, err = LoadReference(write("explicit.json", `{"format": "order", "order": ["B"]}`), types.ReferenceGraded)
	require.NoError(t, err)
	assert.Equal(t, types.ReferenceOrder, ref.Format)

	_, err = LoadReference(write("bad.json", `{"format": "stars"}`), types.ReferenceOrder)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid reference file")
}

func TestLoadRanking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranking.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stage": "bm25", "candidates": [
		{"candidate_id": "A", "score": 2.5, "source": "bm25"},
		{"candidate_id": "B", "score": 0, "source": "bm25"}]}`), 0o644))

	result, err := LoadRanking(path)
	require.NoError(t, err)
	assert.Equal(t, types.StageBM25, result.Stage)
	assert.Equal(t, []string{"A", "B"}, result.IDs())
}
