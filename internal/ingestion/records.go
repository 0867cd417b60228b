// Package ingestion loads resume records, reference rankings and job descriptions from files
// and URLs.
package ingestion

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/resume-ranker/internal/schemas"
	"github.com/jonathan/resume-ranker/internal/types"
)

// CSV column names. The text column is accepted under both names.
const (
	colID         = "resume_id"
	colText       = "resume_text"
	colAnonText   = "anonResumeText"
	colEducation  = "education"
	colSkills     = "skills"
	colLocation   = "location"
	colExperience = "experience"
)

// ErrUnsupportedFormat is returned for files that are neither JSON nor CSV.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// LoadRecords reads resume records from a .json or .csv file.
func LoadRecords(path string) ([]types.ResumeRecord, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseRecordsJSON(data)
	case ".csv":
		return ParseRecordsCSV(strings.NewReader(string(data)))
	default:
		return nil, fmt.Errorf("%w: %s (want .json or .csv)", ErrUnsupportedFormat, path)
	}
}

// ParseRecordsJSON decodes a JSON array of records after checking it against the records schema.
func ParseRecordsJSON(data []byte) ([]types.ResumeRecord, error) {
	if err := schemas.Validate(schemas.Records, data); err != nil {
		return nil, fmt.Errorf("invalid records file: %w", err)
	}
	var records []types.ResumeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal records: %w", err)
	}
	return records, nil
}

// ParseRecordsCSV reads records from CSV with a header row. The education, experience and
// skills columns hold JSON; malformed JSON in those columns yields an empty list.
func ParseRecordsCSV(r io.Reader) ([]types.ResumeRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &types.InputError{Field: "records", Message: "CSV file is empty"}
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if _, ok := cols[colID]; !ok {
		return nil, &types.InputError{Field: "records", Message: "CSV header has no resume_id column"}
	}
	_, hasText := cols[colText]
	_, hasAnon := cols[colAnonText]
	if !hasText && !hasAnon {
		return nil, &types.InputError{Field: "records", Message: "CSV header has no resume_text or anonResumeText column"}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []types.ResumeRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		text := field(row, colAnonText)
		if text == "" {
			text = field(row, colText)
		}
		records = append(records, types.ResumeRecord{
			ID:         strings.TrimSpace(field(row, colID)),
			Document:   text,
			Skills:     parseSkills(field(row, colSkills)),
			Education:  parseEducation(field(row, colEducation)),
			Experience: parseExperience(field(row, colExperience)),
			Location:   strings.Trim(strings.TrimSpace(field(row, colLocation)), `"`),
		})
	}
	return records, nil
}

func parseSkills(raw string) []string {
	var skills []string
	if err := json.Unmarshal([]byte(raw), &skills); err != nil {
		return nil
	}
	return skills
}

// parseEducation accepts entries whose year is a string or a number.
func parseEducation(raw string) []types.Education {
	var entries []map[string]any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}
	out := make([]types.Education, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.Education{
			School: stringField(e, "school"),
			Degree: stringField(e, "degree"),
			Year:   stringField(e, "year"),
		})
	}
	return out
}

func parseExperience(raw string) []types.Experience {
	var entries []map[string]any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}
	out := make([]types.Experience, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.Experience{
			Company: stringField(e, "company"),
			Title:   stringField(e, "title"),
			Summary: stringField(e, "summary"),
			Years:   stringField(e, "years"),
		})
	}
	return out
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %w", err)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}
