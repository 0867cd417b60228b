package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/jonathan/resume-ranker/internal/schemas"
	"github.com/jonathan/resume-ranker/internal/types"
)

// LoadReference reads a reference ranking from a JSON file.
//
// The file holds either a bare array of IDs (an order reference) or an object with
// format, order and grades fields. An object without a format takes defaultFormat.
func LoadReference(path string, defaultFormat types.ReferenceFormat) (*types.Reference, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseReference(data, defaultFormat)
}

// ParseReference decodes reference JSON; see LoadReference.
func ParseReference(data []byte, defaultFormat types.ReferenceFormat) (*types.Reference, error) {
	if err := schemas.Validate(schemas.Reference, data); err != nil {
		return nil, fmt.Errorf("invalid reference file: %w", err)
	}

	var order []string
	if err := json.Unmarshal(data, &order); err == nil {
		return &types.Reference{Format: types.ReferenceOrder, Order: order}, nil
	}

	var ref types.Reference
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reference: %w", err)
	}
	if ref.Format == "" {
		ref.Format = defaultFormat
		// an object carrying only grades is graded whatever the default says
		if len(ref.Order) == 0 && len(ref.Grades) > 0 {
			ref.Format = types.ReferenceGraded
		}
	}
	return &ref, nil
}

// LoadRanking reads a ranking previously written by the rank command.
func LoadRanking(path string) (*types.RankingResult, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := schemas.Validate(schemas.Ranking, data); err != nil {
		return nil, fmt.Errorf("invalid ranking file: %w", err)
	}
	var result types.RankingResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ranking: %w", err)
	}
	return &result, nil
}
