package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSchemasCompile(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			_, err := schema(name)
			require.NoError(t, err)
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("nope", []byte(`{}`))
	require.Error(t, err)
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestValidate_Records(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantError bool
	}{
		{
			name: "valid",
			doc: `[{"resume_id": "A", "resume_text": "python backend", "skills": ["python"],
				"education": [{"school": "MIT", "degree": "BSc", "year": "2019"}], "location": "Boston"}]`,
		},
		{name: "empty list", doc: `[]`},
		{name: "missing id", doc: `[{"resume_text": "python"}]`, wantError: true},
		{name: "empty text", doc: `[{"resume_id": "A", "resume_text": ""}]`, wantError: true},
		{name: "skills wrong type", doc: `[{"resume_id": "A", "resume_text": "x", "skills": "python"}]`, wantError: true},
		{name: "object instead of array", doc: `{"resume_id": "A"}`, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(Records, []byte(tt.doc))
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.NotEmpty(t, validationErr.Errors)
		})
	}
}

func TestValidate_Reference(t *testing.T) {
	assert.NoError(t, Validate(Reference, []byte(`["A", "C", "B"]`)))
	assert.NoError(t, Validate(Reference, []byte(`{"format": "order", "order": ["A"]}`)))
	assert.NoError(t, Validate(Reference, []byte(`{"format": "graded", "grades": {"A": 90, "B": 12.5}}`)))

	assert.Error(t, Validate(Reference, []byte(`{"format": "stars"}`)))
	assert.Error(t, Validate(Reference, []byte(`{"grades": {"A": "high"}}`)))
	assert.Error(t, Validate(Reference, []byte(`[1, 2]`)))
}

func TestValidate_Ranking(t *testing.T) {
	assert.NoError(t, Validate(Ranking, []byte(`{"stage": "llm", "candidates": [{"candidate_id": "A", "score": 91, "source": "llm"}]}`)))
	assert.Error(t, Validate(Ranking, []byte(`{"stage": "llm"}`)))
	assert.Error(t, Validate(Ranking, []byte(`{"candidates": [{"candidate_id": "A", "score": "high"}]}`)))
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(Records, []byte(`{ invalid json }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse records document")
}

func TestValidateJSONString_Valid(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"}
		}
	}`
	assert.NoError(t, ValidateJSONString(schemaContent, `{"name": "test"}`))

	err := ValidateJSONString(schemaContent, `{"age": 30}`)
	require.Error(t, err)
	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "resume_id", Message: "is required"},
			{Field: "score", Message: "must be a number"},
		},
	}

	errorMsg := err.Error()
	assert.Contains(t, errorMsg, "validation failed")
	assert.Contains(t, errorMsg, "resume_id")
	assert.Contains(t, errorMsg, "score")
}
